package promotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
)

func promotableItem(qty int, retail string) *PromotableOrderItem {
	po := NewItemFactory().CreatePromotableOrder(newOrder(newItem("SKU-1", qty, retail)), false)
	return po.items[0]
}

func TestDiscountValue(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name     string
		discount offer.DiscountType
		value    string
		current  string
		want     string
	}{
		{"amount off", offer.DiscountAmountOff, "3", "10", "3"},
		{"amount off clamped to price", offer.DiscountAmountOff, "30", "10", "10"},
		{"percent off half even", offer.DiscountPercentOff, "50", "9.99", "5.00"},
		{"percent off thirds", offer.DiscountPercentOff, "33.333", "10", "3.33"},
		{"fixed price", offer.DiscountFixedPrice, "7", "10", "3"},
		{"fixed price above current", offer.DiscountFixedPrice, "12", "10", "0"},
		{"negative current", offer.DiscountAmountOff, "3", "-1", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &offer.Offer{DiscountType: tt.discount, Value: money(tt.value)}
			got := cfg.discountValue(o, money(tt.current))
			assert.True(t, got.Equal(money(tt.want)), "got %s", got)
		})
	}
}

func TestDiscountValue_Unrounded(t *testing.T) {
	cfg := Config{RoundOfferValues: false}
	o := &offer.Offer{DiscountType: offer.DiscountPercentOff, Value: money("50")}
	assert.True(t, cfg.discountValue(o, money("9.99")).Equal(money("4.995")))
}

func TestQuantityAvailable_RestrictionRules(t *testing.T) {
	pi := promotableItem(3, "10")
	d := pi.details[0]

	exclusive := itemOffer("exclusive", "AMOUNT_OFF", "1")
	exclusive.Combinable = false
	combinable := itemOffer("combinable", "AMOUNT_OFF", "1")

	d.addDiscount(exclusive, id.New(), 2)
	d.addQualifier(combinable, id.New(), 1)
	d.finalizeQuantities()

	other := itemOffer("other", "AMOUNT_OFF", "1")
	// Units discounted by the exclusive offer are locked; the combinable qualifier is shared.
	assert.Equal(t, 1, d.QuantityAvailableAsTarget(other))
	assert.Equal(t, 1, d.QuantityAvailableAsQualifier(other))

	exclusive.TargetRestriction = offer.RestrictionQualifierTarget
	assert.Equal(t, 3, d.QuantityAvailableAsTarget(other))

	// An exclusive offer neither reuses its own units nor the combinable qualifier.
	assert.Zero(t, d.QuantityAvailableAsTarget(exclusive))
}

func TestQuantityAvailable_NonCombinableSkipsAdjustedDetails(t *testing.T) {
	pi := promotableItem(2, "10")
	d := pi.details[0]
	d.AddCandidateAdjustment(newItemAdjustment(DefaultConfig(), d, itemOffer("applied", "AMOUNT_OFF", "1")))

	loner := itemOffer("loner", "AMOUNT_OFF", "1")
	loner.Combinable = false
	assert.Zero(t, d.QuantityAvailableAsTarget(loner))
	assert.Zero(t, d.QuantityAvailableAsQualifier(loner))
}

func TestMarkerRollback(t *testing.T) {
	pi := promotableItem(4, "10")
	d := pi.details[0]
	o := itemOffer("o", "AMOUNT_OFF", "1")
	criteria := id.New()

	d.addDiscount(o, criteria, 2)
	d.finalizeQuantities()
	d.addDiscount(o, criteria, 1)
	d.clearNonFinalizedQuantities()

	require.Len(t, d.discounts, 1)
	assert.Equal(t, 2, d.discounts[0].Quantity)
	assert.Equal(t, 2, d.discountQuantity(o.ID))
}

func TestSplitAndMerge_ConserveQuantity(t *testing.T) {
	pi := promotableItem(5, "10")
	o := itemOffer("o", "AMOUNT_OFF", "1")
	d := pi.details[0]
	d.addDiscount(o, id.New(), 2)
	d.finalizeQuantities()

	pi.splitDetailsFor(o.ID)
	require.Len(t, pi.details, 2)
	assert.Equal(t, 2, pi.details[0].quantity)
	assert.Equal(t, 3, pi.details[1].quantity)
	assert.Zero(t, pi.details[1].discountQuantity(o.ID))

	// With no adjustments both details share a key and fold back together.
	pi.MergeLikeDetails()
	require.Len(t, pi.details, 1)
	assert.Equal(t, 5, pi.details[0].quantity)
}

func TestDetailKey_IgnoresAdjustmentOrder(t *testing.T) {
	a, b := id.New(), id.New()
	assert.Equal(t, detailKey([]id.ID{a, b}, true), detailKey([]id.ID{b, a}, true))
	assert.NotEqual(t, detailKey([]id.ID{a}, true), detailKey([]id.ID{a}, false))
}

func TestChooseSaleOrRetailAdjustments_TieGoesToSale(t *testing.T) {
	it := newItem("SKU-1", 1, "20")
	it.SalePrice = moneyPtr("18")
	po := NewItemFactory().CreatePromotableOrder(newOrder(it), false)
	d := po.items[0].details[0]

	retailOnly := itemOffer("2 off", "AMOUNT_OFF", "2")
	d.AddCandidateAdjustment(newItemAdjustment(DefaultConfig(), d, retailOnly))
	d.ChooseSaleOrRetailAdjustments()

	assert.True(t, d.UseSalePrice())
	assert.Empty(t, d.Adjustments())
	assert.True(t, d.FinalizedTotalWithAdjustments().Equal(types.MustMoney("18")))
}

func TestCompareCandidates(t *testing.T) {
	low := itemOffer("low", "AMOUNT_OFF", "1")
	low.Priority = 1
	high := itemOffer("high", "AMOUNT_OFF", "1")
	high.Priority = 2

	assert.Negative(t, compareCandidates(low, money("1"), high, money("5")))
	assert.Negative(t, compareCandidates(high, money("5"), high, money("1")))
}
