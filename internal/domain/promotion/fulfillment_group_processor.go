package promotion

import (
	"context"

	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
	"offerengine/pkg/logger"
)

// FulfillmentGroupOfferProcessor qualifies and applies fulfillment group offers.
type FulfillmentGroupOfferProcessor struct {
	cfg   Config
	utils *Utilities
	rules RuleEvaluator
}

// NewFulfillmentGroupOfferProcessor creates a FulfillmentGroupOfferProcessor.
func NewFulfillmentGroupOfferProcessor(cfg Config, utils *Utilities, rules RuleEvaluator) *FulfillmentGroupOfferProcessor {
	if rules == nil {
		rules = MatchAll
	}
	return &FulfillmentGroupOfferProcessor{cfg: cfg, utils: utils, rules: rules}
}

// FilterFulfillmentGroupLevelOffer returns one candidate per group the offer qualifies for.
func (p *FulfillmentGroupOfferProcessor) FilterFulfillmentGroupLevelOffer(ctx context.Context, po *PromotableOrder, o *offer.Offer) []*PromotableCandidateFulfillmentGroupOffer {
	if o.Type != offer.TypeFulfillmentGroup {
		return nil
	}
	if !p.rules.Matches(ctx, o.OrderRule, po.ruleVars()) || !p.utils.OrderMeetsSubtotalRequirements(po, o) {
		return nil
	}

	var out []*PromotableCandidateFulfillmentGroupOffer
	for _, pf := range po.fulfillmentGroups {
		if !p.rules.Matches(ctx, o.FulfillmentGroupRule, pf.ruleVars()) {
			continue
		}
		if !p.groupMeetsQualifyingCriteria(ctx, pf, o) {
			continue
		}
		out = append(out, &PromotableCandidateFulfillmentGroupOffer{
			offer:            o,
			fg:               pf,
			potentialSavings: p.cfg.discountValue(o, pf.fg.RetailPrice),
		})
	}
	if len(out) == 0 {
		logger.Debug(ctx, "fulfillment group offer did not qualify", "offer_id", o.ID)
	}
	return out
}

// groupMeetsQualifyingCriteria checks each qualifying criteria against the
// units shipped in the group and the qualifying subtotal against their value.
func (p *FulfillmentGroupOfferProcessor) groupMeetsQualifyingCriteria(ctx context.Context, pf *PromotableFulfillmentGroup, o *offer.Offer) bool {
	shipped := make(map[id.ID]int, len(pf.fg.Items))
	for _, fi := range pf.fg.Items {
		shipped[fi.ItemID] += fi.Quantity
	}

	matchedValue := types.Zero()
	for _, c := range o.QualifyingItemCriteria {
		qty := 0
		for _, it := range pf.items {
			if !p.rules.Matches(ctx, c.MatchRule, it.ruleVars()) {
				continue
			}
			n := shipped[it.item.ID]
			qty += n
			matchedValue = matchedValue.Add(it.PriceBeforeAdjustments(o.ApplyToSalePrice).Mul(types.Qty(n)))
		}
		if qty < c.Quantity {
			return false
		}
	}
	if o.QualifyingItemMinSubTotal.IsPositive() && matchedValue.LessThan(o.QualifyingItemMinSubTotal) {
		return false
	}
	return true
}

// ApplyAllFulfillmentGroupOffers applies candidates in priority order and
// reports whether any adjustment was attached.
func (p *FulfillmentGroupOfferProcessor) ApplyAllFulfillmentGroupOffers(ctx context.Context, candidates []*PromotableCandidateFulfillmentGroupOffer, po *PromotableOrder) bool {
	sortFulfillmentGroupCandidates(candidates)

	uses := make(map[id.ID]int)
	applied := false
	for _, cand := range candidates {
		o := cand.offer
		if !o.IsUnlimitedUsePerOrder() && uses[o.ID] >= o.MaxUsesPerOrder {
			continue
		}
		if o.Totalitarian && anyFulfillmentGroupAdjusted(po) {
			continue
		}
		if totalitarianFulfillmentGroupApplied(po) {
			continue
		}
		if !cand.fg.CanApplyOffer(o) {
			continue
		}
		adj := newFulfillmentGroupAdjustment(p.cfg, cand.fg, o)
		if adj.retailValue.IsZero() && adj.saleValue.IsZero() {
			continue
		}
		cand.fg.AddCandidateAdjustment(adj)
		uses[o.ID]++
		applied = true
		logger.Debug(ctx, "fulfillment group offer applied", "offer_id", o.ID, "fulfillment_group_id", cand.fg.fg.ID)
	}
	return applied
}

// CalculateFulfillmentGroupTotal fixes each group's basis and stores its price.
func (p *FulfillmentGroupOfferProcessor) CalculateFulfillmentGroupTotal(po *PromotableOrder) {
	for _, pf := range po.fulfillmentGroups {
		pf.ChooseSaleOrRetailAdjustments()
		pf.fg.Price = pf.FinalizedPrice()
	}
}

func anyFulfillmentGroupAdjusted(po *PromotableOrder) bool {
	for _, pf := range po.fulfillmentGroups {
		if len(pf.adjustments) > 0 {
			return true
		}
	}
	return false
}

func totalitarianFulfillmentGroupApplied(po *PromotableOrder) bool {
	for _, pf := range po.fulfillmentGroups {
		if pf.isTotalitarianOfferApplied() {
			return true
		}
	}
	return false
}
