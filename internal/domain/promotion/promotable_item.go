package promotion

import (
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

// PromotableOrderItem mirrors an order item for the duration of a pricing run.
type PromotableOrderItem struct {
	order              *PromotableOrder
	item               *order.Item
	details            []*PromotableOrderItemPriceDetail
	includeAdjustments bool
}

// Item returns the underlying order item.
func (pi *PromotableOrderItem) Item() *order.Item { return pi.item }

func (pi *PromotableOrderItem) Quantity() int { return pi.item.Quantity }

func (pi *PromotableOrderItem) PriceDetails() []*PromotableOrderItemPriceDetail { return pi.details }

func (pi *PromotableOrderItem) IsDiscountingAllowed() bool { return pi.item.DiscountingAllowed }

func (pi *PromotableOrderItem) IsOnSale() bool { return pi.item.IsOnSale() }

func (pi *PromotableOrderItem) PriceBeforeAdjustments(applyToSalePrice bool) types.Money {
	return pi.item.PriceBeforeAdjustments(applyToSalePrice)
}

func (pi *PromotableOrderItem) CurrentBasePrice() types.Money { return pi.item.CurrentBasePrice() }

// initializePriceDetails rebuilds details from the persisted item when
// adjustments are included, otherwise creates one detail for the full quantity.
func (pi *PromotableOrderItem) initializePriceDetails(offers map[id.ID]*offer.Offer) {
	pi.details = nil
	if !pi.includeAdjustments || len(pi.item.PriceDetails) == 0 {
		pi.details = []*PromotableOrderItemPriceDetail{newPriceDetail(pi, pi.item.Quantity)}
		return
	}

	for _, pd := range pi.item.PriceDetails {
		d := newPriceDetail(pi, pd.Quantity)
		d.persistedID = pd.ID
		for _, adj := range pd.Adjustments {
			a := &PromotableOrderItemPriceDetailAdjustment{
				offer:       resolveOffer(offers, adj.OfferID, adj.OfferName, adj.AppliedToSalePrice),
				persistedID: adj.ID,
				retailValue: adj.RetailValue,
				saleValue:   adj.SaleValue,
				value:       adj.Value,
			}
			d.AddCandidateAdjustment(a)
			d.discounts = addDiscount(d.discounts, marker{
				Offer:             a.offer,
				Quantity:          pd.Quantity,
				FinalizedQuantity: pd.Quantity,
				Price:             pi.item.PriceBeforeAdjustments(a.offer.ApplyToSalePrice),
			})
		}
		d.ChooseSaleOrRetailAdjustments()
		pi.details = append(pi.details, d)
	}

	for _, q := range pi.item.Qualifiers {
		o := resolveOffer(offers, q.OfferID, "", false)
		remaining := q.Quantity
		for _, d := range pi.details {
			if remaining == 0 {
				break
			}
			n := min(remaining, d.quantity)
			d.qualifiers = addQualifier(d.qualifiers, marker{
				Offer:             o,
				Quantity:          n,
				FinalizedQuantity: n,
				Price:             pi.item.PriceBeforeAdjustments(o.ApplyToSalePrice),
			})
			remaining -= n
		}
	}
}

// ResetPriceDetails discards every detail and rebuilds one covering the full quantity.
func (pi *PromotableOrderItem) ResetPriceDetails() {
	pi.details = []*PromotableOrderItemPriceDetail{newPriceDetail(pi, pi.item.Quantity)}
}

// RemoveAllItemAdjustments keeps the first detail at full quantity with no
// adjustments or markers and drops the rest.
func (pi *PromotableOrderItem) RemoveAllItemAdjustments() {
	if len(pi.details) == 0 {
		pi.ResetPriceDetails()
		return
	}
	first := pi.details[0]
	first.RemoveAllAdjustments()
	first.quantity = pi.item.Quantity
	pi.details = []*PromotableOrderItemPriceDetail{first}
}

// MergeLikeDetails merges details that share a detail key, keeping first-seen order.
func (pi *PromotableOrderItem) MergeLikeDetails() {
	if len(pi.details) < 2 {
		return
	}
	byKey := make(map[string]*PromotableOrderItemPriceDetail, len(pi.details))
	merged := make([]*PromotableOrderItemPriceDetail, 0, len(pi.details))
	for _, d := range pi.details {
		key := d.BuildDetailKey()
		if first, ok := byKey[key]; ok {
			first.merge(d)
			continue
		}
		byKey[key] = d
		merged = append(merged, d)
	}
	pi.details = merged
}

// splitDetailsFor separates units discounted by offerID from the rest of each detail.
func (pi *PromotableOrderItem) splitDetailsFor(offerID id.ID) {
	out := make([]*PromotableOrderItemPriceDetail, 0, len(pi.details))
	for _, d := range pi.details {
		out = append(out, d)
		discounted := d.discountQuantity(offerID)
		if discounted > 0 && discounted < d.quantity {
			out = append(out, d.split(d.quantity-discounted, offerID))
		}
	}
	pi.details = out
}

func (pi *PromotableOrderItem) CalculateTotalWithAdjustments() types.Money {
	total := types.Zero()
	for _, d := range pi.details {
		total = total.Add(d.FinalizedTotalWithAdjustments())
	}
	return total
}

func (pi *PromotableOrderItem) CalculateTotalWithoutAdjustments() types.Money {
	return pi.CurrentBasePrice().Mul(types.Qty(pi.item.Quantity))
}

func (pi *PromotableOrderItem) CalculateTotalAdjustmentValue() types.Money {
	total := types.Zero()
	for _, d := range pi.details {
		total = total.Add(d.TotalAdjustmentValue())
	}
	return total
}

func (pi *PromotableOrderItem) ruleVars() map[string]any {
	return ruleVars(pi.order.order, map[string]any{"orderItem": itemVars(pi.item)})
}
