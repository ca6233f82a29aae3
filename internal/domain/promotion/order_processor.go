package promotion

import (
	"context"
	"time"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
	"offerengine/pkg/logger"
)

// OrderOfferProcessor filters and applies order-level offers and writes the
// outcome of a run back onto the order.
type OrderOfferProcessor struct {
	cfg   Config
	utils *Utilities
	rules RuleEvaluator
	now   func() time.Time
}

// NewOrderOfferProcessor creates an OrderOfferProcessor.
func NewOrderOfferProcessor(cfg Config, utils *Utilities, rules RuleEvaluator, now func() time.Time) *OrderOfferProcessor {
	if rules == nil {
		rules = MatchAll
	}
	if now == nil {
		now = time.Now
	}
	return &OrderOfferProcessor{cfg: cfg, utils: utils, rules: rules, now: now}
}

// FilterOffers drops offers outside their date window or whose customer rule
// rejects the order's customer. Returns a new slice.
func (p *OrderOfferProcessor) FilterOffers(ctx context.Context, offers []*offer.Offer, o *order.Order) []*offer.Offer {
	now := p.now()
	vars := ruleVars(o, nil)
	out := make([]*offer.Offer, 0, len(offers))
	for _, off := range offers {
		if off == nil {
			continue
		}
		if !off.IsActive(now) {
			logger.Debug(ctx, "offer not active", "offer_id", off.ID, "offer", off.Name)
			continue
		}
		if !p.rules.Matches(ctx, off.CustomerRule, vars) {
			logger.Debug(ctx, "offer customer rule rejected", "offer_id", off.ID, "customer_id", o.CustomerID)
			continue
		}
		out = append(out, off)
	}
	return out
}

// FilterOrderLevelOffer qualifies an order offer against po.
func (p *OrderOfferProcessor) FilterOrderLevelOffer(ctx context.Context, po *PromotableOrder, o *offer.Offer) (*PromotableCandidateOrderOffer, bool) {
	if o.DiscountType == offer.DiscountFixedPrice {
		logger.Warn(ctx, "fixed price order offer ignored", "offer_id", o.ID, "offer", o.Name)
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

	return &PromotableCandidateOrderOffer{
		offer:            o,
		qualifiers:       qualifiers,
		potentialSavings: p.cfg.discountValue(o, po.CalculateSubtotalWithoutAdjustments()),
	}, true
}

// ApplyAllOrderOffers applies order offers in priority order against the
// subtotal after item adjustments. Whenever an exclusive offer meets other
// adjustments the order and item totals are compared and the smaller side dropped.
func (p *OrderOfferProcessor) ApplyAllOrderOffers(ctx context.Context, po *PromotableOrder, candidates []*PromotableCandidateOrderOffer) {
	sortOrderCandidates(candidates)
	for _, cand := range candidates {
		if !po.CanApplyOrderOffer(cand.offer) {
			continue
		}
		adj := newOrderAdjustment(p.cfg, po, cand.offer)
		if adj.value.IsZero() {
			continue
		}
		po.AddCandidateOrderAdjustment(adj)

		conflict := (cand.offer.Exclusive() && po.HasItemAdjustments()) ||
			po.IsNonCombinableItemOfferApplied() ||
			po.IsTotalitarianItemOfferApplied()
		if conflict {
			p.compareAndAdjustOrderAndItemOffers(ctx, po)
		}
	}
	po.order.SubTotal = po.CalculateSubtotalWithAdjustments()
}

// compareAndAdjustOrderAndItemOffers keeps whichever of the order and item
// adjustment totals is larger. Equal totals keep the order adjustments.
func (p *OrderOfferProcessor) compareAndAdjustOrderAndItemOffers(ctx context.Context, po *PromotableOrder) {
	orderTotal := po.CalculateOrderAdjustmentTotal()
	itemTotal := po.CalculateItemAdjustmentTotal()
	if orderTotal.GreaterThanOrEqual(itemTotal) {
		logger.Debug(ctx, "order adjustments win over item adjustments",
			"order_total", orderTotal.String(), "item_total", itemTotal.String())
		po.RemoveAllCandidateItemAdjustments()
		return
	}
	logger.Debug(ctx, "item adjustments win over order adjustments",
		"order_total", orderTotal.String(), "item_total", itemTotal.String())
	po.RemoveAllCandidateOrderAdjustments()
}

// SynchronizeAdjustmentsAndPrices copies the run's adjustments onto the order,
// reusing persisted ids where the same offer still applies. Fulfillment groups
// are synchronized only when the run was built from persisted adjustments.
func (p *OrderOfferProcessor) SynchronizeAdjustmentsAndPrices(ctx context.Context, po *PromotableOrder) {
	p.synchronizeOrderAdjustments(po)
	for _, it := range po.items {
		it.MergeLikeDetails()
		synchronizeItemPriceDetails(it)
		synchronizeItemQualifiers(po, it)
	}
	if po.IncludesAdjustments() {
		for _, pf := range po.fulfillmentGroups {
			synchronizeFulfillmentGroupAdjustments(pf)
		}
	}
	logger.Debug(ctx, "adjustments synchronized",
		"order_id", po.order.ID, "order_adjustments", len(po.order.Adjustments))
}

func (p *OrderOfferProcessor) synchronizeOrderAdjustments(po *PromotableOrder) {
	existing := make(map[id.ID]*order.Adjustment, len(po.order.Adjustments))
	for _, a := range po.order.Adjustments {
		existing[a.OfferID] = a
	}
	out := make([]*order.Adjustment, 0, len(po.orderAdjustments))
	for _, ca := range po.orderAdjustments {
		adjID := ca.persistedID
		if prev, ok := existing[ca.offer.ID]; ok {
			adjID = prev.ID
		}
		if id.IsNil(adjID) {
			adjID = id.New()
		}
		out = append(out, &order.Adjustment{
			ID:           adjID,
			OfferID:      ca.offer.ID,
			OfferName:    ca.offer.Name,
			Value:        ca.value,
			FutureCredit: ca.offer.FutureCredit,
		})
	}
	po.order.Adjustments = out
}

func persistedDetailKey(pd *order.PriceDetail) string {
	ids := make([]id.ID, 0, len(pd.Adjustments))
	for _, a := range pd.Adjustments {
		ids = append(ids, a.OfferID)
	}
	return detailKey(ids, pd.UseSalePrice)
}

// synchronizeItemPriceDetails rewrites the item's persisted details. A promotable
// detail reuses the persisted detail it was built from, else one with the same
// key, else any leftover one, else a new id.
func synchronizeItemPriceDetails(it *PromotableOrderItem) {
	persisted := it.item.PriceDetails
	byID := make(map[id.ID]*order.PriceDetail, len(persisted))
	byKey := make(map[string][]*order.PriceDetail)
	for _, pd := range persisted {
		byID[pd.ID] = pd
		k := persistedDetailKey(pd)
		byKey[k] = append(byKey[k], pd)
	}
	used := make(map[id.ID]bool, len(persisted))

	matched := make([]*order.PriceDetail, len(it.details))
	for i, d := range it.details {
		if pd, ok := byID[d.persistedID]; ok && !id.IsNil(d.persistedID) && !used[pd.ID] {
			matched[i] = pd
			used[pd.ID] = true
			continue
		}
		for _, pd := range byKey[d.BuildDetailKey()] {
			if !used[pd.ID] {
				matched[i] = pd
				used[pd.ID] = true
				break
			}
		}
	}

	leftovers := make([]*order.PriceDetail, 0, len(persisted))
	for _, pd := range persisted {
		if !used[pd.ID] {
			leftovers = append(leftovers, pd)
		}
	}

	out := make([]*order.PriceDetail, len(it.details))
	for i, d := range it.details {
		pd := matched[i]
		if pd == nil {
			if len(leftovers) > 0 {
				pd, leftovers = leftovers[0], leftovers[1:]
			} else {
				pd = &order.PriceDetail{ID: id.New()}
			}
		}
		updatePriceDetail(pd, d)
		out[i] = pd
	}
	it.item.PriceDetails = out
}

func updatePriceDetail(pd *order.PriceDetail, d *PromotableOrderItemPriceDetail) {
	existing := make(map[id.ID]id.ID, len(pd.Adjustments))
	for _, a := range pd.Adjustments {
		if _, dup := existing[a.OfferID]; !dup {
			existing[a.OfferID] = a.ID
		}
	}

	pd.Quantity = d.quantity
	pd.UseSalePrice = d.useSalePrice
	adjustments := make([]*order.PriceDetailAdjustment, 0, len(d.adjustments))
	for _, a := range d.adjustments {
		adjID, ok := existing[a.offer.ID]
		if !ok {
			adjID = a.persistedID
		}
		if id.IsNil(adjID) {
			adjID = id.New()
		}
		adjustments = append(adjustments, &order.PriceDetailAdjustment{
			ID:                 adjID,
			OfferID:            a.offer.ID,
			OfferName:          a.offer.Name,
			Value:              a.value,
			RetailValue:        a.retailValue,
			SaleValue:          a.saleValue,
			AppliedToSalePrice: a.appliedToSalePrice,
			FutureCredit:       a.offer.FutureCredit,
		})
	}
	pd.Adjustments = adjustments
}

// synchronizeItemQualifiers persists qualifier usage for offers that ended up
// discounting something in the order.
func synchronizeItemQualifiers(po *PromotableOrder, it *PromotableOrderItem) {
	applied := make(map[id.ID]bool)
	for _, d := range po.AllPriceDetails() {
		for _, a := range d.adjustments {
			applied[a.offer.ID] = true
		}
	}

	existing := make(map[id.ID]id.ID, len(it.item.Qualifiers))
	for _, q := range it.item.Qualifiers {
		existing[q.OfferID] = q.ID
	}

	totals := make(map[id.ID]int)
	var offerOrder []id.ID
	for _, d := range it.details {
		for _, q := range d.qualifiers {
			if !applied[q.Offer.ID] || q.FinalizedQuantity == 0 {
				continue
			}
			if _, seen := totals[q.Offer.ID]; !seen {
				offerOrder = append(offerOrder, q.Offer.ID)
			}
			totals[q.Offer.ID] += q.FinalizedQuantity
		}
	}

	out := make([]*order.ItemQualifier, 0, len(offerOrder))
	for _, offerID := range offerOrder {
		qID, ok := existing[offerID]
		if !ok {
			qID = id.New()
		}
		out = append(out, &order.ItemQualifier{ID: qID, OfferID: offerID, Quantity: min(totals[offerID], it.item.Quantity)})
	}
	it.item.Qualifiers = out
}

func synchronizeFulfillmentGroupAdjustments(pf *PromotableFulfillmentGroup) {
	existing := make(map[id.ID]id.ID, len(pf.fg.Adjustments))
	for _, a := range pf.fg.Adjustments {
		existing[a.OfferID] = a.ID
	}
	out := make([]*order.FulfillmentGroupAdjustment, 0, len(pf.adjustments))
	for _, a := range pf.adjustments {
		adjID, ok := existing[a.offer.ID]
		if !ok {
			adjID = id.New()
		}
		out = append(out, &order.FulfillmentGroupAdjustment{
			ID:           adjID,
			OfferID:      a.offer.ID,
			OfferName:    a.offer.Name,
			Value:        a.value,
			FutureCredit: a.offer.FutureCredit,
		})
	}
	pf.fg.Adjustments = out
	pf.fg.Price = pf.FinalizedPrice()
}
