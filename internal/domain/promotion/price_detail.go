package promotion

import (
	"slices"
	"strconv"
	"strings"

	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
)

// PromotableOrderItemPriceDetail is a quantity slice of an item whose units all
// carry the same adjustments.
type PromotableOrderItemPriceDetail struct {
	item     *PromotableOrderItem
	quantity int

	// persistedID is set when rebuilt from an existing price detail.
	persistedID id.ID

	adjustments []*PromotableOrderItemPriceDetailAdjustment
	qualifiers  []*PromotionQualifier
	discounts   []*PromotionDiscount

	useSalePrice         bool
	adjustmentsFinalized bool
}

func newPriceDetail(item *PromotableOrderItem, quantity int) *PromotableOrderItemPriceDetail {
	return &PromotableOrderItemPriceDetail{item: item, quantity: quantity}
}

// Item returns the owning promotable item.
func (d *PromotableOrderItemPriceDetail) Item() *PromotableOrderItem { return d.item }

func (d *PromotableOrderItemPriceDetail) Quantity() int { return d.quantity }

func (d *PromotableOrderItemPriceDetail) Adjustments() []*PromotableOrderItemPriceDetailAdjustment {
	return d.adjustments
}

func (d *PromotableOrderItemPriceDetail) Qualifiers() []*PromotionQualifier { return d.qualifiers }

func (d *PromotableOrderItemPriceDetail) Discounts() []*PromotionDiscount { return d.discounts }

// UseSalePrice reports whether the detail is priced from the sale price.
func (d *PromotableOrderItemPriceDetail) UseSalePrice() bool { return d.useSalePrice }

func (d *PromotableOrderItemPriceDetail) HasAdjustments() bool { return len(d.adjustments) > 0 }

// AddCandidateAdjustment attaches an adjustment.
func (d *PromotableOrderItemPriceDetail) AddCandidateAdjustment(a *PromotableOrderItemPriceDetailAdjustment) {
	a.detail = d
	d.adjustments = append(d.adjustments, a)
	d.adjustmentsFinalized = false
}

// RemoveAllAdjustments drops adjustments and markers.
func (d *PromotableOrderItemPriceDetail) RemoveAllAdjustments() {
	d.adjustments = nil
	d.qualifiers = nil
	d.discounts = nil
	d.useSalePrice = false
	d.adjustmentsFinalized = false
}

// IsTotalitarianOfferApplied reports whether a totalitarian adjustment is attached.
func (d *PromotableOrderItemPriceDetail) IsTotalitarianOfferApplied() bool {
	for _, a := range d.adjustments {
		if a.offer.Totalitarian {
			return true
		}
	}
	return false
}

// IsNonCombinableOfferApplied reports whether a non-combinable adjustment is attached.
func (d *PromotableOrderItemPriceDetail) IsNonCombinableOfferApplied() bool {
	for _, a := range d.adjustments {
		if !a.offer.Combinable {
			return true
		}
	}
	return false
}

func (d *PromotableOrderItemPriceDetail) hasAdjustmentFor(offerID id.ID) bool {
	for _, a := range d.adjustments {
		if a.offer.ID == offerID {
			return true
		}
	}
	return false
}

// reusable reports whether units consumed by other may be reused by candidate.
// Combinable offers share units freely; otherwise the consuming offer's
// restriction rule decides.
func reusable(other, candidate *offer.Offer, rule offer.ItemRestrictionRule, asTarget bool) bool {
	if other.ID == candidate.ID {
		return false
	}
	if !other.Exclusive() && !candidate.Exclusive() {
		return true
	}
	if asTarget {
		return rule.AllowsReuseAsTarget()
	}
	return rule.AllowsReuseAsQualifier()
}

// QuantityAvailableAsQualifier returns how many units may still qualify o.
func (d *PromotableOrderItemPriceDetail) QuantityAvailableAsQualifier(o *offer.Offer) int {
	if !o.Combinable && d.HasAdjustments() {
		return 0
	}
	available := d.quantity
	for _, q := range d.qualifiers {
		if !reusable(q.Offer, o, q.Offer.QualifierRestriction, false) {
			available -= q.Quantity
		}
	}
	for _, t := range d.discounts {
		if !reusable(t.Offer, o, t.Offer.TargetRestriction, false) {
			available -= t.Quantity
		}
	}
	return max(available, 0)
}

// QuantityAvailableAsTarget returns how many units may still receive o's discount.
func (d *PromotableOrderItemPriceDetail) QuantityAvailableAsTarget(o *offer.Offer) int {
	if !o.Combinable && d.HasAdjustments() {
		return 0
	}
	if d.hasAdjustmentFor(o.ID) {
		return 0
	}
	available := d.quantity
	for _, q := range d.qualifiers {
		if !reusable(q.Offer, o, q.Offer.QualifierRestriction, true) {
			available -= q.Quantity
		}
	}
	for _, t := range d.discounts {
		if !reusable(t.Offer, o, t.Offer.TargetRestriction, true) {
			available -= t.Quantity
		}
	}
	return max(available, 0)
}

func (d *PromotableOrderItemPriceDetail) addQualifier(o *offer.Offer, criteriaID id.ID, qty int) {
	d.qualifiers = addQualifier(d.qualifiers, marker{
		Offer:      o,
		CriteriaID: criteriaID,
		Quantity:   qty,
		Price:      d.item.PriceBeforeAdjustments(o.ApplyToSalePrice),
	})
}

func (d *PromotableOrderItemPriceDetail) addDiscount(o *offer.Offer, criteriaID id.ID, qty int) {
	d.discounts = addDiscount(d.discounts, marker{
		Offer:      o,
		CriteriaID: criteriaID,
		Quantity:   qty,
		Price:      d.item.PriceBeforeAdjustments(o.ApplyToSalePrice),
	})
}

func (d *PromotableOrderItemPriceDetail) discountQuantity(offerID id.ID) int {
	n := 0
	for _, t := range d.discounts {
		if t.Offer.ID == offerID {
			n += t.Quantity
		}
	}
	return n
}

func (d *PromotableOrderItemPriceDetail) finalizeQuantities() {
	for _, q := range d.qualifiers {
		q.finalize()
	}
	for _, t := range d.discounts {
		t.finalize()
	}
}

// clearNonFinalizedQuantities rolls back markers of an unfinished attempt.
func (d *PromotableOrderItemPriceDetail) clearNonFinalizedQuantities() {
	qualifiers := make([]*PromotionQualifier, 0, len(d.qualifiers))
	for _, q := range d.qualifiers {
		q.rollback()
		if q.Quantity > 0 {
			qualifiers = append(qualifiers, q)
		}
	}
	d.qualifiers = qualifiers

	discounts := make([]*PromotionDiscount, 0, len(d.discounts))
	for _, t := range d.discounts {
		t.rollback()
		if t.Quantity > 0 {
			discounts = append(discounts, t)
		}
	}
	d.discounts = discounts
}

// split moves restQty units into a new detail. Discount markers of offerID stay
// on d; every other marker gives the new detail as many units as it can hold.
func (d *PromotableOrderItemPriceDetail) split(restQty int, offerID id.ID) *PromotableOrderItemPriceDetail {
	rest := newPriceDetail(d.item, restQty)
	rest.useSalePrice = d.useSalePrice
	rest.adjustmentsFinalized = d.adjustmentsFinalized
	for _, a := range d.adjustments {
		rest.adjustments = append(rest.adjustments, a.copyTo(rest))
	}

	qualifiers := make([]*PromotionQualifier, 0, len(d.qualifiers))
	for _, q := range d.qualifiers {
		if n := q.take(restQty); n > 0 {
			rest.qualifiers = addQualifier(rest.qualifiers, marker{
				Offer: q.Offer, CriteriaID: q.CriteriaID, Quantity: n, FinalizedQuantity: n, Price: q.Price,
			})
		}
		if q.Quantity > 0 {
			qualifiers = append(qualifiers, q)
		}
	}
	d.qualifiers = qualifiers

	discounts := make([]*PromotionDiscount, 0, len(d.discounts))
	for _, t := range d.discounts {
		if t.Offer.ID != offerID {
			if n := t.take(restQty); n > 0 {
				rest.discounts = addDiscount(rest.discounts, marker{
					Offer: t.Offer, CriteriaID: t.CriteriaID, Quantity: n, FinalizedQuantity: n, Price: t.Price,
				})
			}
		}
		if t.Quantity > 0 {
			discounts = append(discounts, t)
		}
	}
	d.discounts = discounts

	d.quantity -= restQty
	return rest
}

// merge folds other into d. Callers ensure both share a detail key.
func (d *PromotableOrderItemPriceDetail) merge(other *PromotableOrderItemPriceDetail) {
	d.quantity += other.quantity
	for _, q := range other.qualifiers {
		d.qualifiers = addQualifier(d.qualifiers, q.marker)
	}
	for _, t := range other.discounts {
		d.discounts = addDiscount(d.discounts, t.marker)
	}
	if id.IsNil(d.persistedID) {
		d.persistedID = other.persistedID
	}
}

func (d *PromotableOrderItemPriceDetail) currentRetailUnitPrice() types.Money {
	price := d.item.item.RetailPrice
	for _, a := range d.adjustments {
		price = price.Sub(a.retailValue)
	}
	return types.NonNegative(price)
}

func (d *PromotableOrderItemPriceDetail) currentSaleUnitPrice() types.Money {
	sale := d.item.item.SalePrice
	if sale == nil {
		return d.currentRetailUnitPrice()
	}
	price := *sale
	for _, a := range d.adjustments {
		if a.offer.ApplyToSalePrice {
			price = price.Sub(a.saleValue)
		}
	}
	return types.NonNegative(price)
}

// ChooseSaleOrRetailAdjustments picks the cheaper of the sale basis (sale price
// with sale-eligible adjustments) and the retail basis (retail price with all
// adjustments), then fixes every adjustment's value to that basis.
func (d *PromotableOrderItemPriceDetail) ChooseSaleOrRetailAdjustments() {
	d.adjustmentsFinalized = true
	it := d.item.item

	if !it.IsOnSale() {
		d.useSalePrice = false
		for _, a := range d.adjustments {
			a.finalize(false)
		}
		return
	}

	if d.currentSaleUnitPrice().LessThanOrEqual(d.currentRetailUnitPrice()) {
		d.useSalePrice = true
		kept := make([]*PromotableOrderItemPriceDetailAdjustment, 0, len(d.adjustments))
		dropped := make(map[id.ID]bool)
		for _, a := range d.adjustments {
			if a.offer.ApplyToSalePrice {
				a.finalize(true)
				kept = append(kept, a)
			} else {
				dropped[a.offer.ID] = true
			}
		}
		d.adjustments = kept
		if len(dropped) > 0 {
			d.discounts = slices.DeleteFunc(d.discounts, func(t *PromotionDiscount) bool {
				return dropped[t.Offer.ID]
			})
		}
		return
	}

	d.useSalePrice = false
	for _, a := range d.adjustments {
		a.finalize(false)
	}
}

// BuildDetailKey identifies the adjustment signature of the detail.
func (d *PromotableOrderItemPriceDetail) BuildDetailKey() string {
	ids := make([]id.ID, 0, len(d.adjustments))
	for _, a := range d.adjustments {
		ids = append(ids, a.offer.ID)
	}
	return detailKey(ids, d.useSalePrice)
}

func detailKey(offerIDs []id.ID, useSalePrice bool) string {
	keys := make([]string, len(offerIDs))
	for i, v := range offerIDs {
		keys[i] = v.String()
	}
	slices.Sort(keys)
	return strings.Join(keys, ",") + "|sale=" + strconv.FormatBool(useSalePrice)
}

// UnitPrice returns the basis price before adjustments.
func (d *PromotableOrderItemPriceDetail) UnitPrice() types.Money {
	if !d.adjustmentsFinalized {
		return d.item.CurrentBasePrice()
	}
	if d.useSalePrice && d.item.item.SalePrice != nil {
		return *d.item.item.SalePrice
	}
	return d.item.item.RetailPrice
}

// AdjustmentValue sums per-unit adjustment values.
func (d *PromotableOrderItemPriceDetail) AdjustmentValue() types.Money {
	total := types.Zero()
	for _, a := range d.adjustments {
		if !a.offer.FutureCredit {
			total = total.Add(a.value)
		}
	}
	return total
}

// TotalAdjustmentValue is the discount over every unit of the detail.
func (d *PromotableOrderItemPriceDetail) TotalAdjustmentValue() types.Money {
	return types.MinMoney(d.AdjustmentValue(), d.UnitPrice()).Mul(types.Qty(d.quantity))
}

// FinalizedTotalWithAdjustments is what the detail's units cost after discounts.
func (d *PromotableOrderItemPriceDetail) FinalizedTotalWithAdjustments() types.Money {
	unit := types.NonNegative(d.UnitPrice().Sub(d.AdjustmentValue()))
	return unit.Mul(types.Qty(d.quantity))
}
