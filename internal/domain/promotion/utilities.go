package promotion

import (
	"context"
	"slices"

	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
)

// DetailSorter orders price details before greedy marking.
type DetailSorter func(details []*PromotableOrderItemPriceDetail, applyToSalePrice bool)

// SortByPriceDesc puts the most expensive units first so they are consumed first.
func SortByPriceDesc(details []*PromotableOrderItemPriceDetail, applyToSalePrice bool) {
	slices.SortStableFunc(details, func(a, b *PromotableOrderItemPriceDetail) int {
		return b.item.PriceBeforeAdjustments(applyToSalePrice).Cmp(a.item.PriceBeforeAdjustments(applyToSalePrice))
	})
}

// Utilities holds the matching and marking steps shared by the processors.
type Utilities struct {
	cfg   Config
	rules RuleEvaluator

	// SortTargetItemDetails and SortQualifierItemDetails may be replaced to
	// change which units are consumed first.
	SortTargetItemDetails    DetailSorter
	SortQualifierItemDetails DetailSorter
}

// NewUtilities creates Utilities with price-descending sorters.
func NewUtilities(cfg Config, rules RuleEvaluator) *Utilities {
	if rules == nil {
		rules = MatchAll
	}
	return &Utilities{
		cfg:                      cfg,
		rules:                    rules,
		SortTargetItemDetails:    SortByPriceDesc,
		SortQualifierItemDetails: SortByPriceDesc,
	}
}

// matchCriteria returns the items satisfying each criteria's rule. Targets must
// allow discounting. ok is false when some criteria cannot reach its quantity.
func (u *Utilities) matchCriteria(ctx context.Context, po *PromotableOrder, list []offer.ItemCriteria, targets bool) ([]criteriaMatch, bool) {
	items := po.Items()
	if targets {
		items = po.DiscountableItems()
	}
	out := make([]criteriaMatch, 0, len(list))
	for _, c := range list {
		m := criteriaMatch{criteria: c}
		for _, it := range items {
			if u.rules.Matches(ctx, c.MatchRule, it.ruleVars()) {
				m.items = append(m.items, it)
			}
		}
		if m.totalQuantity() < c.Quantity {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

// OrderMeetsSubtotalRequirements checks the order minimum against pre-adjustment prices.
func (u *Utilities) OrderMeetsSubtotalRequirements(po *PromotableOrder, o *offer.Offer) bool {
	if !o.OrderMinSubTotal.IsPositive() {
		return true
	}
	total := types.Zero()
	for _, it := range po.items {
		total = total.Add(it.PriceBeforeAdjustments(o.ApplyToSalePrice).Mul(types.Qty(it.Quantity())))
	}
	return total.GreaterThanOrEqual(o.OrderMinSubTotal)
}

// OrderMeetsQualifyingSubtotalRequirements checks the qualifying item minimum.
func (u *Utilities) OrderMeetsQualifyingSubtotalRequirements(o *offer.Offer, qualifiers []criteriaMatch) bool {
	return meetsItemSubtotal(o, o.QualifyingItemMinSubTotal, qualifiers)
}

// OrderMeetsTargetSubtotalRequirements checks the target item minimum.
func (u *Utilities) OrderMeetsTargetSubtotalRequirements(o *offer.Offer, targets []criteriaMatch) bool {
	return meetsItemSubtotal(o, o.TargetItemMinSubTotal, targets)
}

func meetsItemSubtotal(o *offer.Offer, minimum types.Money, matches []criteriaMatch) bool {
	if !minimum.IsPositive() {
		return true
	}
	seen := make(map[id.ID]bool)
	total := types.Zero()
	for _, m := range matches {
		for _, it := range m.items {
			if seen[it.item.ID] {
				continue
			}
			seen[it.item.ID] = true
			total = total.Add(it.PriceBeforeAdjustments(o.ApplyToSalePrice).Mul(types.Qty(it.Quantity())))
		}
	}
	return total.GreaterThanOrEqual(minimum)
}

func detailsOf(items []*PromotableOrderItem) []*PromotableOrderItemPriceDetail {
	var out []*PromotableOrderItemPriceDetail
	for _, it := range items {
		out = append(out, it.details...)
	}
	return out
}

// markQualifiersAndTargets marks one use of the offer. Markers of a failed
// attempt stay unfinalized; the caller rolls them back.
func (u *Utilities) markQualifiersAndTargets(cand *PromotableCandidateItemOffer) bool {
	o := cand.offer
	for _, m := range cand.qualifiers {
		details := detailsOf(m.items)
		u.SortQualifierItemDetails(details, o.ApplyToSalePrice)
		need := m.criteria.Quantity
		for _, d := range details {
			if need == 0 {
				break
			}
			if n := min(need, d.QuantityAvailableAsQualifier(o)); n > 0 {
				d.addQualifier(o, m.criteria.ID, n)
				need -= n
			}
		}
		if need > 0 {
			return false
		}
	}

	for _, m := range cand.targets {
		details := detailsOf(m.items)
		u.SortTargetItemDetails(details, o.ApplyToSalePrice)
		need := m.criteria.Quantity
		for _, d := range details {
			if need == 0 {
				break
			}
			if n := min(need, d.QuantityAvailableAsTarget(o)); n > 0 {
				d.addDiscount(o, m.criteria.ID, n)
				need -= n
			}
		}
		if need > 0 {
			return false
		}
	}
	return true
}

// applyAdjustments splits partially discounted details and attaches the offer's
// adjustment to every detail it discounts.
func (u *Utilities) applyAdjustments(po *PromotableOrder, cand *PromotableCandidateItemOffer) {
	for _, it := range po.items {
		it.splitDetailsFor(cand.offer.ID)
		for _, d := range it.details {
			if d.discountQuantity(cand.offer.ID) == 0 {
				continue
			}
			a := newItemAdjustment(u.cfg, d, cand.offer)
			if a.retailValue.IsZero() && a.saleValue.IsZero() {
				continue
			}
			d.AddCandidateAdjustment(a)
		}
	}
}

// itemSavings estimates one use of an item offer: the discount on the most
// expensive units each target criteria could take.
func (u *Utilities) itemSavings(cand *PromotableCandidateItemOffer) types.Money {
	o := cand.offer
	total := types.Zero()
	for _, m := range cand.targets {
		items := slices.Clone(m.items)
		slices.SortStableFunc(items, func(a, b *PromotableOrderItem) int {
			return b.PriceBeforeAdjustments(o.ApplyToSalePrice).Cmp(a.PriceBeforeAdjustments(o.ApplyToSalePrice))
		})
		need := m.criteria.Quantity
		for _, it := range items {
			if need == 0 {
				break
			}
			n := min(need, it.Quantity())
			unit := u.cfg.discountValue(o, it.PriceBeforeAdjustments(o.ApplyToSalePrice))
			total = total.Add(unit.Mul(types.Qty(n)))
			need -= n
		}
	}
	return total
}
