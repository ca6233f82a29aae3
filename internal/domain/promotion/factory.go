package promotion

import (
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

// ItemFactory builds the promotable mirror of an order.
type ItemFactory struct{}

// NewItemFactory creates an ItemFactory.
func NewItemFactory() *ItemFactory {
	return &ItemFactory{}
}

// CreatePromotableOrder wraps o. With includeAdjustments the item details, item
// qualifiers and order adjustments are rebuilt from the persisted ones, and each
// detail picks its sale or retail basis once. Without it every item gets one
// clean detail for its whole quantity.
//
// known resolves offers referenced by persisted adjustments; unknown ids become
// placeholder offers that keep the stored values.
func (f *ItemFactory) CreatePromotableOrder(o *order.Order, includeAdjustments bool, known ...*offer.Offer) *PromotableOrder {
	offers := make(map[id.ID]*offer.Offer, len(known))
	for _, k := range known {
		if k != nil {
			offers[k.ID] = k
		}
	}

	po := &PromotableOrder{order: o, includeAdjustments: includeAdjustments}

	byItemID := make(map[id.ID]*PromotableOrderItem, len(o.Items))
	for _, it := range o.Items {
		pi := &PromotableOrderItem{order: po, item: it, includeAdjustments: includeAdjustments}
		pi.initializePriceDetails(offers)
		po.items = append(po.items, pi)
		byItemID[it.ID] = pi
	}

	for _, fg := range o.FulfillmentGroups {
		pf := &PromotableFulfillmentGroup{order: po, fg: fg}
		for _, fi := range fg.Items {
			if pi, ok := byItemID[fi.ItemID]; ok {
				pf.items = append(pf.items, pi)
			}
		}
		po.fulfillmentGroups = append(po.fulfillmentGroups, pf)
	}

	if includeAdjustments {
		for _, adj := range o.Adjustments {
			po.orderAdjustments = append(po.orderAdjustments, &PromotableOrderAdjustment{
				offer:       resolveOffer(offers, adj.OfferID, adj.OfferName, false),
				value:       adj.Value,
				persistedID: adj.ID,
			})
		}
	}

	return po
}

// resolveOffer returns the known offer or a combinable placeholder.
func resolveOffer(offers map[id.ID]*offer.Offer, offerID id.ID, name string, appliedToSale bool) *offer.Offer {
	if o, ok := offers[offerID]; ok {
		return o
	}
	o := &offer.Offer{
		ID:                   offerID,
		Name:                 name,
		Combinable:           true,
		ApplyToSalePrice:     appliedToSale,
		QualifierRestriction: offer.RestrictionNone,
		TargetRestriction:    offer.RestrictionNone,
	}
	offers[offerID] = o
	return o
}
