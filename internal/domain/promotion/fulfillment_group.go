package promotion

import (
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

// PromotableFulfillmentGroup mirrors a fulfillment group for one pricing run.
type PromotableFulfillmentGroup struct {
	order       *PromotableOrder
	fg          *order.FulfillmentGroup
	items       []*PromotableOrderItem
	adjustments []*PromotableFulfillmentGroupAdjustment

	useSalePrice bool
}

func (pf *PromotableFulfillmentGroup) FulfillmentGroup() *order.FulfillmentGroup { return pf.fg }

// Items returns the promotable items shipped in the group.
func (pf *PromotableFulfillmentGroup) Items() []*PromotableOrderItem { return pf.items }

func (pf *PromotableFulfillmentGroup) Adjustments() []*PromotableFulfillmentGroupAdjustment {
	return pf.adjustments
}

func (pf *PromotableFulfillmentGroup) AddCandidateAdjustment(a *PromotableFulfillmentGroupAdjustment) {
	a.fg = pf
	pf.adjustments = append(pf.adjustments, a)
}

func (pf *PromotableFulfillmentGroup) RemoveAllAdjustments() {
	pf.adjustments = nil
	pf.useSalePrice = false
}

func (pf *PromotableFulfillmentGroup) isTotalitarianOfferApplied() bool {
	for _, a := range pf.adjustments {
		if a.offer.Totalitarian {
			return true
		}
	}
	return false
}

func (pf *PromotableFulfillmentGroup) isNonCombinableOfferApplied() bool {
	for _, a := range pf.adjustments {
		if !a.offer.Combinable {
			return true
		}
	}
	return false
}

func (pf *PromotableFulfillmentGroup) hasAdjustmentFor(o *offer.Offer) bool {
	for _, a := range pf.adjustments {
		if a.offer.ID == o.ID {
			return true
		}
	}
	return false
}

// CanApplyOffer reports whether o may join the group's adjustments.
func (pf *PromotableFulfillmentGroup) CanApplyOffer(o *offer.Offer) bool {
	if pf.hasAdjustmentFor(o) || pf.isTotalitarianOfferApplied() || pf.isNonCombinableOfferApplied() {
		return false
	}
	if o.Exclusive() {
		return len(pf.adjustments) == 0
	}
	return true
}

func (pf *PromotableFulfillmentGroup) currentRetailPrice() types.Money {
	price := pf.fg.RetailPrice
	for _, a := range pf.adjustments {
		price = price.Sub(a.retailValue)
	}
	return types.NonNegative(price)
}

func (pf *PromotableFulfillmentGroup) currentSalePrice() types.Money {
	if pf.fg.SalePrice == nil {
		return pf.currentRetailPrice()
	}
	price := *pf.fg.SalePrice
	for _, a := range pf.adjustments {
		if a.offer.ApplyToSalePrice {
			price = price.Sub(a.saleValue)
		}
	}
	return types.NonNegative(price)
}

func (pf *PromotableFulfillmentGroup) isOnSale() bool {
	return pf.fg.SalePrice != nil && pf.fg.SalePrice.LessThan(pf.fg.RetailPrice)
}

// ChooseSaleOrRetailAdjustments fixes adjustments to whichever basis is cheaper.
func (pf *PromotableFulfillmentGroup) ChooseSaleOrRetailAdjustments() {
	if !pf.isOnSale() || pf.currentSalePrice().GreaterThan(pf.currentRetailPrice()) {
		pf.useSalePrice = false
		for _, a := range pf.adjustments {
			a.finalize(false)
		}
		return
	}
	pf.useSalePrice = true
	kept := make([]*PromotableFulfillmentGroupAdjustment, 0, len(pf.adjustments))
	for _, a := range pf.adjustments {
		if a.offer.ApplyToSalePrice {
			a.finalize(true)
			kept = append(kept, a)
		}
	}
	pf.adjustments = kept
}

// FinalizedPrice is the group's price after adjustments.
func (pf *PromotableFulfillmentGroup) FinalizedPrice() types.Money {
	price := pf.fg.RetailPrice
	if pf.useSalePrice && pf.fg.SalePrice != nil {
		price = *pf.fg.SalePrice
	}
	for _, a := range pf.adjustments {
		if !a.offer.FutureCredit {
			price = price.Sub(a.value)
		}
	}
	return types.NonNegative(price)
}

// ItemSubtotal is the post-adjustment value of the group's share of items.
func (pf *PromotableFulfillmentGroup) ItemSubtotal() types.Money {
	total := types.Zero()
	for _, fi := range pf.fg.Items {
		for _, it := range pf.items {
			if it.item.ID != fi.ItemID || it.item.Quantity == 0 {
				continue
			}
			share := it.CalculateTotalWithAdjustments().Mul(types.Qty(fi.Quantity)).Div(types.Qty(it.item.Quantity))
			total = total.Add(share)
		}
	}
	return total
}

func (pf *PromotableFulfillmentGroup) ruleVars() map[string]any {
	vars := fulfillmentGroupVars(pf.fg)
	vars["itemSubTotal"] = pf.ItemSubtotal().InexactFloat64()
	return ruleVars(pf.order.order, map[string]any{"fulfillmentGroup": vars})
}
