package promotion

import (
	"context"

	"offerengine/internal/domain/offer"
	"offerengine/pkg/logger"
)

// ItemOfferProcessor qualifies item offers, marks their qualifiers and targets,
// and drives the combined item and order pass.
type ItemOfferProcessor struct {
	cfg            Config
	utils          *Utilities
	rules          RuleEvaluator
	orderProcessor *OrderOfferProcessor
}

// NewItemOfferProcessor creates an ItemOfferProcessor.
func NewItemOfferProcessor(cfg Config, utils *Utilities, rules RuleEvaluator, orderProcessor *OrderOfferProcessor) *ItemOfferProcessor {
	if rules == nil {
		rules = MatchAll
	}
	return &ItemOfferProcessor{cfg: cfg, utils: utils, rules: rules, orderProcessor: orderProcessor}
}

// FilterOffers splits offers into qualified order offers and qualified item offers.
// Fulfillment group offers are ignored here.
func (p *ItemOfferProcessor) FilterOffers(ctx context.Context, po *PromotableOrder, offers []*offer.Offer) ([]*PromotableCandidateOrderOffer, []*PromotableCandidateItemOffer) {
	var orderOffers []*PromotableCandidateOrderOffer
	var itemOffers []*PromotableCandidateItemOffer
	for _, o := range offers {
		switch o.Type {
		case offer.TypeOrder:
			if cand, ok := p.orderProcessor.FilterOrderLevelOffer(ctx, po, o); ok {
				orderOffers = append(orderOffers, cand)
			}
		case offer.TypeOrderItem:
			if cand, ok := p.FilterItemLevelOffer(ctx, po, o); ok {
				itemOffers = append(itemOffers, cand)
			}
		}
	}
	return orderOffers, itemOffers
}

// FilterItemLevelOffer qualifies an item offer: its order rule holds, the order
// and item subtotal minimums are met, and every criteria can find enough units.
func (p *ItemOfferProcessor) FilterItemLevelOffer(ctx context.Context, po *PromotableOrder, o *offer.Offer) (*PromotableCandidateItemOffer, bool) {
	if err := o.Validate(ctx); err != nil {
		logger.Warn(ctx, "invalid item offer ignored", "offer_id", o.ID, "error", err)
		return nil, false
	}
	if len(o.TargetItemCriteria) == 0 {
		logger.Warn(ctx, "item offer without target criteria ignored", "offer_id", o.ID, "offer", o.Name)
		return nil, false
	}
	if !p.rules.Matches(ctx, o.OrderRule, po.ruleVars()) {
		return nil, false
	}
	if !p.utils.OrderMeetsSubtotalRequirements(po, o) {
		return nil, false
	}

	qualifiers, ok := p.utils.matchCriteria(ctx, po, o.QualifyingItemCriteria, false)
	if !ok || !p.utils.OrderMeetsQualifyingSubtotalRequirements(o, qualifiers) {
		return nil, false
	}
	targets, ok := p.utils.matchCriteria(ctx, po, o.TargetItemCriteria, true)
	if !ok || !p.utils.OrderMeetsTargetSubtotalRequirements(o, targets) {
		return nil, false
	}

	cand := &PromotableCandidateItemOffer{offer: o, qualifiers: qualifiers, targets: targets}
	cand.potentialSavings = p.utils.itemSavings(cand)
	return cand, true
}

// ApplyAndCompareOrderAndItemOffers applies item offers, fixes each detail's
// sale or retail basis, then applies order offers on top.
func (p *ItemOfferProcessor) ApplyAndCompareOrderAndItemOffers(ctx context.Context, po *PromotableOrder, orderOffers []*PromotableCandidateOrderOffer, itemOffers []*PromotableCandidateItemOffer) {
	if len(itemOffers) > 0 {
		po.ResetPriceDetails()
		p.ApplyAllItemOffers(ctx, po, itemOffers)
	}
	for _, d := range po.AllPriceDetails() {
		d.ChooseSaleOrRetailAdjustments()
	}

	po.RemoveAllCandidateOrderAdjustments()
	if len(orderOffers) > 0 {
		p.orderProcessor.ApplyAllOrderOffers(ctx, po, orderOffers)
	}
}

// ApplyAllItemOffers applies item offers in priority order and returns how many applied.
func (p *ItemOfferProcessor) ApplyAllItemOffers(ctx context.Context, po *PromotableOrder, candidates []*PromotableCandidateItemOffer) int {
	sortItemCandidates(candidates)
	applied := 0
	for _, cand := range candidates {
		if p.applyItemOffer(po, cand) {
			applied++
			logger.Debug(ctx, "item offer applied", "offer_id", cand.offer.ID, "uses", cand.uses)
		}
	}
	return applied
}

func (p *ItemOfferProcessor) applyItemOffer(po *PromotableOrder, cand *PromotableCandidateItemOffer) bool {
	details := po.AllPriceDetails()
	if !itemOfferCanBeApplied(cand, details) {
		return false
	}

	cand.uses = 0
	for cand.offer.IsUnlimitedUsePerOrder() || cand.uses < cand.offer.MaxUsesPerOrder {
		if !p.utils.markQualifiersAndTargets(cand) {
			break
		}
		for _, d := range details {
			d.finalizeQuantities()
		}
		cand.uses++
	}
	for _, d := range details {
		d.clearNonFinalizedQuantities()
	}

	if cand.uses == 0 {
		return false
	}
	p.utils.applyAdjustments(po, cand)
	return true
}

// itemOfferCanBeApplied rejects the offer when a totalitarian or non-combinable
// item adjustment exists, or when the offer itself is exclusive and any item
// adjustment was applied.
func itemOfferCanBeApplied(cand *PromotableCandidateItemOffer, details []*PromotableOrderItemPriceDetail) bool {
	for _, d := range details {
		if len(d.adjustments) == 0 {
			continue
		}
		if cand.offer.Exclusive() {
			return false
		}
		for _, a := range d.adjustments {
			if a.offer.Exclusive() {
				return false
			}
		}
	}
	return true
}
