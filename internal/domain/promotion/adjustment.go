package promotion

import (
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
)

// discountValue computes the discount offer o gives against current, never
// negative and never more than current.
func (c Config) discountValue(o *offer.Offer, current types.Money) types.Money {
	current = types.NonNegative(current)
	var v types.Money
	switch o.DiscountType {
	case offer.DiscountAmountOff:
		v = o.Value
	case offer.DiscountPercentOff:
		v = c.percentOff(current, o.Value)
	case offer.DiscountFixedPrice:
		v = current.Sub(o.Value)
	default:
		v = types.Zero()
	}
	return types.MinMoney(types.NonNegative(v), current)
}

// PromotableOrderItemPriceDetailAdjustment is a candidate per-unit discount on a price detail.
// Both the retail and the sale based value are kept until the detail picks one basis.
type PromotableOrderItemPriceDetailAdjustment struct {
	detail *PromotableOrderItemPriceDetail
	offer  *offer.Offer

	// persistedID is set when rebuilt from an existing adjustment.
	persistedID id.ID

	retailValue types.Money
	saleValue   types.Money
	value       types.Money

	appliedToSalePrice bool
	finalized          bool
}

func newItemAdjustment(cfg Config, d *PromotableOrderItemPriceDetail, o *offer.Offer) *PromotableOrderItemPriceDetailAdjustment {
	a := &PromotableOrderItemPriceDetailAdjustment{detail: d, offer: o}
	a.retailValue = cfg.discountValue(o, d.currentRetailUnitPrice())
	if o.ApplyToSalePrice && d.item.item.SalePrice != nil {
		a.saleValue = cfg.discountValue(o, d.currentSaleUnitPrice())
	}
	a.value = a.retailValue
	return a
}

// Offer returns the offer that produced the adjustment.
func (a *PromotableOrderItemPriceDetailAdjustment) Offer() *offer.Offer { return a.offer }

// Value is the per-unit discount for the chosen price basis.
func (a *PromotableOrderItemPriceDetailAdjustment) Value() types.Money { return a.value }

func (a *PromotableOrderItemPriceDetailAdjustment) RetailValue() types.Money { return a.retailValue }

func (a *PromotableOrderItemPriceDetailAdjustment) SaleValue() types.Money { return a.saleValue }

// AppliedToSalePrice reports whether the sale basis was chosen.
func (a *PromotableOrderItemPriceDetailAdjustment) AppliedToSalePrice() bool {
	return a.appliedToSalePrice
}

func (a *PromotableOrderItemPriceDetailAdjustment) finalize(useSalePrice bool) {
	a.appliedToSalePrice = useSalePrice
	if useSalePrice {
		a.value = a.saleValue
	} else {
		a.value = a.retailValue
	}
	a.finalized = true
}

func (a *PromotableOrderItemPriceDetailAdjustment) copyTo(d *PromotableOrderItemPriceDetail) *PromotableOrderItemPriceDetailAdjustment {
	c := *a
	c.detail = d
	c.persistedID = id.Nil()
	return &c
}

// PromotableOrderAdjustment is a candidate order-level discount.
type PromotableOrderAdjustment struct {
	offer       *offer.Offer
	value       types.Money
	persistedID id.ID
}

// newOrderAdjustment values the offer against the subtotal after item
// adjustments minus order adjustments already taken.
func newOrderAdjustment(cfg Config, po *PromotableOrder, o *offer.Offer) *PromotableOrderAdjustment {
	current := po.CalculateSubtotalWithAdjustments().Sub(po.CalculateOrderAdjustmentTotal())
	return &PromotableOrderAdjustment{
		offer: o,
		value: cfg.discountValue(o, current),
	}
}

func (a *PromotableOrderAdjustment) Offer() *offer.Offer { return a.offer }

func (a *PromotableOrderAdjustment) Value() types.Money { return a.value }

// IsCombinable reports whether other offers may share the order with this one.
func (a *PromotableOrderAdjustment) IsCombinable() bool { return a.offer.Combinable }

func (a *PromotableOrderAdjustment) IsTotalitarian() bool { return a.offer.Totalitarian }

// PromotableFulfillmentGroupAdjustment is a candidate discount on a fulfillment group.
type PromotableFulfillmentGroupAdjustment struct {
	fg    *PromotableFulfillmentGroup
	offer *offer.Offer

	retailValue types.Money
	saleValue   types.Money
	value       types.Money

	appliedToSalePrice bool
}

func newFulfillmentGroupAdjustment(cfg Config, fg *PromotableFulfillmentGroup, o *offer.Offer) *PromotableFulfillmentGroupAdjustment {
	a := &PromotableFulfillmentGroupAdjustment{fg: fg, offer: o}
	a.retailValue = cfg.discountValue(o, fg.currentRetailPrice())
	if o.ApplyToSalePrice && fg.fg.SalePrice != nil {
		a.saleValue = cfg.discountValue(o, fg.currentSalePrice())
	}
	a.value = a.retailValue
	return a
}

func (a *PromotableFulfillmentGroupAdjustment) Offer() *offer.Offer { return a.offer }

func (a *PromotableFulfillmentGroupAdjustment) Value() types.Money { return a.value }

func (a *PromotableFulfillmentGroupAdjustment) finalize(useSalePrice bool) {
	a.appliedToSalePrice = useSalePrice
	if useSalePrice {
		a.value = a.saleValue
	} else {
		a.value = a.retailValue
	}
}
