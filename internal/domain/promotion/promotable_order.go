package promotion

import (
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

// PromotableOrder mirrors an order for one pricing run. It is never persisted;
// SynchronizeAdjustmentsAndPrices copies its outcome onto the order.
type PromotableOrder struct {
	order              *order.Order
	items              []*PromotableOrderItem
	fulfillmentGroups  []*PromotableFulfillmentGroup
	orderAdjustments   []*PromotableOrderAdjustment
	includeAdjustments bool
}

// Order returns the wrapped order.
func (po *PromotableOrder) Order() *order.Order { return po.order }

func (po *PromotableOrder) Items() []*PromotableOrderItem { return po.items }

func (po *PromotableOrder) FulfillmentGroups() []*PromotableFulfillmentGroup {
	return po.fulfillmentGroups
}

// IncludesAdjustments reports whether the mirror was rebuilt from persisted adjustments.
func (po *PromotableOrder) IncludesAdjustments() bool { return po.includeAdjustments }

// DiscountableItems returns items that accept discounts.
func (po *PromotableOrder) DiscountableItems() []*PromotableOrderItem {
	out := make([]*PromotableOrderItem, 0, len(po.items))
	for _, it := range po.items {
		if it.IsDiscountingAllowed() {
			out = append(out, it)
		}
	}
	return out
}

// AllPriceDetails returns every price detail of every item.
func (po *PromotableOrder) AllPriceDetails() []*PromotableOrderItemPriceDetail {
	var out []*PromotableOrderItemPriceDetail
	for _, it := range po.items {
		out = append(out, it.details...)
	}
	return out
}

func (po *PromotableOrder) CandidateOrderAdjustments() []*PromotableOrderAdjustment {
	return po.orderAdjustments
}

func (po *PromotableOrder) AddCandidateOrderAdjustment(a *PromotableOrderAdjustment) {
	po.orderAdjustments = append(po.orderAdjustments, a)
}

func (po *PromotableOrder) RemoveAllCandidateOrderAdjustments() {
	po.orderAdjustments = nil
}

// RemoveAllCandidateItemAdjustments collapses every item back to one clean detail.
func (po *PromotableOrder) RemoveAllCandidateItemAdjustments() {
	for _, it := range po.items {
		it.RemoveAllItemAdjustments()
		for _, d := range it.details {
			d.ChooseSaleOrRetailAdjustments()
		}
	}
}

// ResetPriceDetails discards all item detail state.
func (po *PromotableOrder) ResetPriceDetails() {
	for _, it := range po.items {
		it.ResetPriceDetails()
	}
}

func (po *PromotableOrder) CalculateSubtotalWithoutAdjustments() types.Money {
	total := types.Zero()
	for _, it := range po.items {
		total = total.Add(it.CalculateTotalWithoutAdjustments())
	}
	return total
}

func (po *PromotableOrder) CalculateSubtotalWithAdjustments() types.Money {
	total := types.Zero()
	for _, it := range po.items {
		total = total.Add(it.CalculateTotalWithAdjustments())
	}
	return total
}

func (po *PromotableOrder) CalculateOrderAdjustmentTotal() types.Money {
	total := types.Zero()
	for _, a := range po.orderAdjustments {
		if !a.offer.FutureCredit {
			total = total.Add(a.value)
		}
	}
	return total
}

func (po *PromotableOrder) CalculateItemAdjustmentTotal() types.Money {
	total := types.Zero()
	for _, it := range po.items {
		total = total.Add(it.CalculateTotalAdjustmentValue())
	}
	return total
}

// HasItemAdjustments reports whether any detail carries an adjustment.
func (po *PromotableOrder) HasItemAdjustments() bool {
	for _, it := range po.items {
		for _, d := range it.details {
			if d.HasAdjustments() {
				return true
			}
		}
	}
	return false
}

func (po *PromotableOrder) IsTotalitarianOrderOfferApplied() bool {
	for _, a := range po.orderAdjustments {
		if a.offer.Totalitarian {
			return true
		}
	}
	return false
}

func (po *PromotableOrder) IsNonCombinableOrderOfferApplied() bool {
	for _, a := range po.orderAdjustments {
		if !a.offer.Combinable {
			return true
		}
	}
	return false
}

func (po *PromotableOrder) IsTotalitarianItemOfferApplied() bool {
	for _, d := range po.AllPriceDetails() {
		if d.IsTotalitarianOfferApplied() {
			return true
		}
	}
	return false
}

func (po *PromotableOrder) IsNonCombinableItemOfferApplied() bool {
	for _, d := range po.AllPriceDetails() {
		if d.IsNonCombinableOfferApplied() {
			return true
		}
	}
	return false
}

// CanApplyOrderOffer reports whether o may join the order adjustments already
// chosen. An exclusive offer only applies as the first order adjustment, and
// nothing joins an exclusive one.
func (po *PromotableOrder) CanApplyOrderOffer(o *offer.Offer) bool {
	if po.IsTotalitarianOrderOfferApplied() || po.IsNonCombinableOrderOfferApplied() {
		return false
	}
	if o.Exclusive() {
		return len(po.orderAdjustments) == 0
	}
	return true
}

func (po *PromotableOrder) ruleVars() map[string]any {
	return ruleVars(po.order, nil)
}
