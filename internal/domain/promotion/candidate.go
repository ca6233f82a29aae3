package promotion

import (
	"cmp"
	"slices"

	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
)

// criteriaMatch pairs a criteria with the items that satisfy its match rule.
type criteriaMatch struct {
	criteria offer.ItemCriteria
	items    []*PromotableOrderItem
}

func (m criteriaMatch) totalQuantity() int {
	n := 0
	for _, it := range m.items {
		n += it.Quantity()
	}
	return n
}

// PromotableCandidateItemOffer is an item offer that passed filtering, with the
// items that may serve as its qualifiers and targets.
type PromotableCandidateItemOffer struct {
	offer            *offer.Offer
	qualifiers       []criteriaMatch
	targets          []criteriaMatch
	potentialSavings types.Money
	uses             int
}

func (c *PromotableCandidateItemOffer) Offer() *offer.Offer { return c.offer }

// PotentialSavings estimates the discount of one use of the offer.
func (c *PromotableCandidateItemOffer) PotentialSavings() types.Money { return c.potentialSavings }

// Uses is how many times the offer applied during the run.
func (c *PromotableCandidateItemOffer) Uses() int { return c.uses }

// PromotableCandidateOrderOffer is an order offer that passed filtering.
type PromotableCandidateOrderOffer struct {
	offer            *offer.Offer
	qualifiers       []criteriaMatch
	potentialSavings types.Money
}

func (c *PromotableCandidateOrderOffer) Offer() *offer.Offer { return c.offer }

func (c *PromotableCandidateOrderOffer) PotentialSavings() types.Money { return c.potentialSavings }

// PromotableCandidateFulfillmentGroupOffer is a fulfillment group offer that
// qualified for one group.
type PromotableCandidateFulfillmentGroupOffer struct {
	offer            *offer.Offer
	fg               *PromotableFulfillmentGroup
	potentialSavings types.Money
}

func (c *PromotableCandidateFulfillmentGroupOffer) Offer() *offer.Offer { return c.offer }

func (c *PromotableCandidateFulfillmentGroupOffer) FulfillmentGroup() *PromotableFulfillmentGroup {
	return c.fg
}

func (c *PromotableCandidateFulfillmentGroupOffer) PotentialSavings() types.Money {
	return c.potentialSavings
}

// compareCandidates orders by priority ascending, then savings descending, then offer id.
func compareCandidates(a *offer.Offer, aSavings types.Money, b *offer.Offer, bSavings types.Money) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	if c := bSavings.Cmp(aSavings); c != 0 {
		return c
	}
	return id.Compare(a.ID, b.ID)
}

func sortItemCandidates(list []*PromotableCandidateItemOffer) {
	slices.SortStableFunc(list, func(a, b *PromotableCandidateItemOffer) int {
		return compareCandidates(a.offer, a.potentialSavings, b.offer, b.potentialSavings)
	})
}

func sortOrderCandidates(list []*PromotableCandidateOrderOffer) {
	slices.SortStableFunc(list, func(a, b *PromotableCandidateOrderOffer) int {
		return compareCandidates(a.offer, a.potentialSavings, b.offer, b.potentialSavings)
	})
}

func sortFulfillmentGroupCandidates(list []*PromotableCandidateFulfillmentGroupOffer) {
	slices.SortStableFunc(list, func(a, b *PromotableCandidateFulfillmentGroupOffer) int {
		return compareCandidates(a.offer, a.potentialSavings, b.offer, b.potentialSavings)
	})
}
