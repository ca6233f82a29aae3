package promotion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

func detailQuantities(it *order.Item) int {
	n := 0
	for _, pd := range it.PriceDetails {
		n += pd.Quantity
	}
	return n
}

func itemAdjustments(it *order.Item) []*order.PriceDetailAdjustment {
	var out []*order.PriceDetailAdjustment
	for _, pd := range it.PriceDetails {
		out = append(out, pd.Adjustments...)
	}
	return out
}

func TestApplyAndSaveOffersToOrder_PercentOffRoundsHalfEven(t *testing.T) {
	half := itemOffer("half off", "PERCENT_OFF", "50")
	env := newTestEnv(half)
	it := newItem("SKU-1", 1, "9.99")
	o := newOrder(it)

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{half}, o, enabled())
	require.NoError(t, err)

	adjs := itemAdjustments(saved.Items[0])
	require.Len(t, adjs, 1)
	assert.True(t, adjs[0].Value.Equal(money("5.00")), "got %s", adjs[0].Value)
	assert.Equal(t, half.ID, adjs[0].OfferID)
	assert.True(t, saved.Items[0].TotalPrice.Equal(money("4.99")))
	assert.True(t, saved.SubTotal.Equal(money("4.99")))
	assert.Equal(t, 1, env.orders.saves)
}

func TestApplyAndSaveOffersToOrder_NonCombinableOrderOfferLosesToLargerItemDiscount(t *testing.T) {
	itemOff := itemOffer("25 off item", "AMOUNT_OFF", "25")
	orderOff := orderOffer("20 off order", "AMOUNT_OFF", "20")
	orderOff.Combinable = false
	env := newTestEnv(itemOff, orderOff)
	o := newOrder(newItem("SKU-1", 1, "100"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{itemOff, orderOff}, o, enabled())
	require.NoError(t, err)

	assert.Empty(t, saved.Adjustments)
	adjs := itemAdjustments(saved.Items[0])
	require.Len(t, adjs, 1)
	assert.True(t, adjs[0].Value.Equal(money("25")))
	assert.True(t, saved.Total().Equal(money("75")))
}

func TestApplyAndSaveOffersToOrder_NonCombinableOrderOfferWinsWhenLarger(t *testing.T) {
	itemOff := itemOffer("25 off item", "AMOUNT_OFF", "25")
	orderOff := orderOffer("30 off order", "AMOUNT_OFF", "30")
	orderOff.Combinable = false
	env := newTestEnv(itemOff, orderOff)
	o := newOrder(newItem("SKU-1", 1, "100"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{itemOff, orderOff}, o, enabled())
	require.NoError(t, err)

	require.Len(t, saved.Adjustments, 1)
	assert.Equal(t, orderOff.ID, saved.Adjustments[0].OfferID)
	assert.True(t, saved.Adjustments[0].Value.Equal(money("30")))
	assert.Empty(t, itemAdjustments(saved.Items[0]))
	assert.True(t, saved.Total().Equal(money("70")))
}

func TestApplyAndSaveOffersToOrder_OrderPercentOffUsesAdjustedSubtotal(t *testing.T) {
	itemOff := itemOffer("10 off item", "AMOUNT_OFF", "10")
	orderOff := orderOffer("10 percent", "PERCENT_OFF", "10")
	env := newTestEnv(itemOff, orderOff)
	o := newOrder(newItem("SKU-1", 1, "60"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{itemOff, orderOff}, o, enabled())
	require.NoError(t, err)

	require.Len(t, saved.Adjustments, 1)
	assert.True(t, saved.Adjustments[0].Value.Equal(money("5")), "got %s", saved.Adjustments[0].Value)
	assert.True(t, saved.SubTotal.Equal(money("50")))
	assert.True(t, saved.Total().Equal(money("45")))
}

func TestApplyAndSaveOffersToOrder_SplitsDetailWhenUsesAreCapped(t *testing.T) {
	off := itemOffer("2 off once", "AMOUNT_OFF", "2")
	off.MaxUsesPerOrder = 1
	env := newTestEnv(off)
	it := newItem("SKU-1", 3, "10")
	o := newOrder(it)

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off}, o, enabled())
	require.NoError(t, err)

	item := saved.Items[0]
	require.Len(t, item.PriceDetails, 2)
	assert.Equal(t, 3, detailQuantities(item))

	var discounted, plain *order.PriceDetail
	for _, pd := range item.PriceDetails {
		if len(pd.Adjustments) > 0 {
			discounted = pd
		} else {
			plain = pd
		}
	}
	require.NotNil(t, discounted)
	require.NotNil(t, plain)
	assert.Equal(t, 1, discounted.Quantity)
	assert.Equal(t, 2, plain.Quantity)
	assert.True(t, item.TotalPrice.Equal(money("28")))
}

func TestApplyAndSaveOffersToOrder_IsIdempotent(t *testing.T) {
	off := itemOffer("2 off", "AMOUNT_OFF", "2")
	off.MaxUsesPerOrder = 2
	orderOff := orderOffer("5 off", "AMOUNT_OFF", "5")
	env := newTestEnv(off, orderOff)
	o := newOrder(newItem("SKU-1", 3, "10"), newItem("SKU-2", 1, "4"))
	offers := []*offer.Offer{off, orderOff}

	first, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), offers, o, enabled())
	require.NoError(t, err)

	type snapshot struct {
		detailIDs []id.ID
		adjIDs    []id.ID
		total     string
	}
	take := func(o *order.Order) snapshot {
		var s snapshot
		for _, it := range o.Items {
			for _, pd := range it.PriceDetails {
				s.detailIDs = append(s.detailIDs, pd.ID)
				for _, a := range pd.Adjustments {
					s.adjIDs = append(s.adjIDs, a.ID)
				}
			}
		}
		for _, a := range o.Adjustments {
			s.adjIDs = append(s.adjIDs, a.ID)
		}
		s.total = o.Total().String()
		return s
	}
	before := take(first)

	second, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), offers, first, enabled())
	require.NoError(t, err)

	assert.Equal(t, before, take(second))
	assert.Equal(t, "25", before.total)
}

func TestApplyAndSaveOffersToOrder_AdjustmentsNeverExceedPrice(t *testing.T) {
	off := itemOffer("50 off", "AMOUNT_OFF", "50")
	orderOff := orderOffer("100 off", "AMOUNT_OFF", "100")
	env := newTestEnv(off, orderOff)
	o := newOrder(newItem("SKU-1", 2, "20"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off, orderOff}, o, enabled())
	require.NoError(t, err)

	adjs := itemAdjustments(saved.Items[0])
	require.Len(t, adjs, 1)
	assert.True(t, adjs[0].Value.Equal(money("20")))
	assert.True(t, saved.Items[0].TotalPrice.IsZero())
	assert.False(t, saved.Total().IsNegative())
}

func TestApplyAndSaveOffersToOrder_CombinableOffersStack(t *testing.T) {
	five := itemOffer("5 off", "AMOUNT_OFF", "5")
	three := itemOffer("3 off", "AMOUNT_OFF", "3")
	env := newTestEnv(five, three)
	o := newOrder(newItem("SKU-1", 1, "20"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{three, five}, o, enabled())
	require.NoError(t, err)

	adjs := itemAdjustments(saved.Items[0])
	assert.Len(t, adjs, 2)
	assert.True(t, saved.Items[0].TotalPrice.Equal(money("12")))
}

func TestApplyAndSaveOffersToOrder_TotalitarianItemOfferBlocksOthers(t *testing.T) {
	total := itemOffer("totalitarian", "AMOUNT_OFF", "5")
	total.Totalitarian = true
	total.Priority = 1
	other := itemOffer("other", "AMOUNT_OFF", "3")
	other.Priority = 2
	env := newTestEnv(total, other)
	o := newOrder(newItem("SKU-1", 1, "20"), newItem("SKU-2", 1, "30"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{other, total}, o, enabled())
	require.NoError(t, err)

	for _, it := range saved.Items {
		for _, a := range itemAdjustments(it) {
			assert.Equal(t, total.ID, a.OfferID)
		}
	}
	assert.NotEmpty(t, itemAdjustments(saved.Items[1]))
}

func TestApplyAndSaveOffersToOrder_BuyTwoGetOneRecordsQualifiers(t *testing.T) {
	bogo := itemOffer("buy two A get B free", "PERCENT_OFF", "100")
	bogo.QualifyingItemCriteria = []offer.ItemCriteria{{ID: id.New(), Quantity: 2, MatchRule: "A"}}
	bogo.TargetItemCriteria = []offer.ItemCriteria{{ID: id.New(), Quantity: 1, MatchRule: "B"}}

	env := newTestEnv(bogo)
	env.svc = NewService(DefaultConfig(), Dependencies{
		Offers: env.offers, Codes: env.codes, CustomerOffers: env.customers,
		Usage: env.usage, Orders: env.orders, Rules: skuRules, Now: env.svc.now,
	})

	a := newItem("A", 2, "10")
	b := newItem("B", 2, "8")
	o := newOrder(a, b)

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{bogo}, o, enabled())
	require.NoError(t, err)

	itemA, itemB := saved.Items[0], saved.Items[1]
	assert.Empty(t, itemAdjustments(itemA))
	require.Len(t, itemA.Qualifiers, 1)
	assert.Equal(t, bogo.ID, itemA.Qualifiers[0].OfferID)
	assert.Equal(t, 2, itemA.Qualifiers[0].Quantity)

	// Only one B unit is free: the two A units qualify a single use.
	assert.Equal(t, 2, detailQuantities(itemB))
	assert.True(t, itemB.TotalPrice.Equal(money("8")))
}

func TestApplyAndSaveOffersToOrder_SalePriceComparison(t *testing.T) {
	t.Run("retail only offer loses to sale price", func(t *testing.T) {
		off := itemOffer("2 off retail", "AMOUNT_OFF", "2")
		env := newTestEnv(off)
		it := newItem("SKU-1", 1, "20")
		it.SalePrice = moneyPtr("15")

		saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off}, newOrder(it), enabled())
		require.NoError(t, err)

		item := saved.Items[0]
		assert.Empty(t, itemAdjustments(item))
		require.Len(t, item.PriceDetails, 1)
		assert.True(t, item.PriceDetails[0].UseSalePrice)
		assert.True(t, item.TotalPrice.Equal(money("15")))
	})

	t.Run("sale eligible offer applies to sale price", func(t *testing.T) {
		off := itemOffer("2 off sale", "AMOUNT_OFF", "2")
		off.ApplyToSalePrice = true
		env := newTestEnv(off)
		it := newItem("SKU-1", 1, "20")
		it.SalePrice = moneyPtr("15")

		saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off}, newOrder(it), enabled())
		require.NoError(t, err)

		adjs := itemAdjustments(saved.Items[0])
		require.Len(t, adjs, 1)
		assert.True(t, adjs[0].AppliedToSalePrice)
		assert.True(t, saved.Items[0].TotalPrice.Equal(money("13")))
	})
}

func TestApplyAndSaveOffersToOrder_EmptyListRemovesStaleAdjustments(t *testing.T) {
	off := itemOffer("2 off", "AMOUNT_OFF", "2")
	env := newTestEnv(off)
	o := newOrder(newItem("SKU-1", 1, "10"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off}, o, enabled())
	require.NoError(t, err)
	require.Len(t, itemAdjustments(saved.Items[0]), 1)

	saved, err = env.svc.ApplyAndSaveOffersToOrder(context.Background(), nil, saved, enabled())
	require.NoError(t, err)
	assert.Empty(t, itemAdjustments(saved.Items[0]))
	assert.True(t, saved.Items[0].TotalPrice.Equal(money("10")))
	assert.Equal(t, 2, env.orders.saves)
}

func TestApplyAndSaveOffersToOrder_DisabledIsNoop(t *testing.T) {
	off := itemOffer("2 off", "AMOUNT_OFF", "2")
	env := newTestEnv(off)
	o := newOrder(newItem("SKU-1", 1, "10"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off}, o, ApplyOptions{})
	require.NoError(t, err)
	assert.Same(t, o, saved)
	assert.Empty(t, o.Items[0].PriceDetails)
	assert.Zero(t, env.orders.saves)

	saved, err = env.svc.ApplyAndSaveFulfillmentGroupOffersToOrder(context.Background(), []*offer.Offer{off}, o, ApplyOptions{})
	require.NoError(t, err)
	assert.Same(t, o, saved)
	assert.Zero(t, env.orders.saves)
}

func TestApplyAndSaveOffersToOrder_SaveFailureIsPricingError(t *testing.T) {
	off := itemOffer("2 off", "AMOUNT_OFF", "2")
	env := newTestEnv(off)
	env.orders.err = errors.New("connection reset")

	_, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off}, newOrder(newItem("SKU-1", 1, "10")), enabled())
	require.Error(t, err)
	assert.True(t, apperror.IsPricing(err))
}

func TestApplyAndSaveOffersToOrder_ConcurrentModificationPassesThrough(t *testing.T) {
	env := newTestEnv()
	env.orders.err = apperror.NewConcurrentModification("order", "x")

	_, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), nil, newOrder(newItem("SKU-1", 1, "10")), enabled())
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestApplyAndSaveFulfillmentGroupOffersToOrder(t *testing.T) {
	ship := fulfillmentGroupOffer("4 off shipping", "AMOUNT_OFF", "4")
	env := newTestEnv(ship)
	it := newItem("SKU-1", 1, "10")
	o := newOrder(it)
	o.FulfillmentGroups = []*order.FulfillmentGroup{{
		ID:          id.New(),
		Method:      "ground",
		RetailPrice: money("10"),
		Price:       money("10"),
		Items:       []order.FulfillmentGroupItem{{ItemID: it.ID, Quantity: 1}},
	}}

	saved, err := env.svc.ApplyAndSaveFulfillmentGroupOffersToOrder(context.Background(), []*offer.Offer{ship}, o, enabled())
	require.NoError(t, err)

	fg := saved.FulfillmentGroups[0]
	require.Len(t, fg.Adjustments, 1)
	assert.True(t, fg.Adjustments[0].Value.Equal(money("4")))
	assert.True(t, fg.Price.Equal(money("6")))
	assert.True(t, saved.Total().Equal(money("16")))
	firstID := fg.Adjustments[0].ID

	saved, err = env.svc.ApplyAndSaveFulfillmentGroupOffersToOrder(context.Background(), []*offer.Offer{ship}, saved, enabled())
	require.NoError(t, err)
	require.Len(t, saved.FulfillmentGroups[0].Adjustments, 1)
	assert.Equal(t, firstID, saved.FulfillmentGroups[0].Adjustments[0].ID)

	saved, err = env.svc.ApplyAndSaveFulfillmentGroupOffersToOrder(context.Background(), nil, saved, enabled())
	require.NoError(t, err)
	assert.Empty(t, saved.FulfillmentGroups[0].Adjustments)
	assert.True(t, saved.FulfillmentGroups[0].Price.Equal(money("10")))
}

func TestApplyAndSaveFulfillmentGroupOffersToOrder_KeepsItemAdjustments(t *testing.T) {
	itemOff := itemOffer("2 off", "AMOUNT_OFF", "2")
	ship := fulfillmentGroupOffer("free shipping", "PERCENT_OFF", "100")
	env := newTestEnv(itemOff, ship)
	it := newItem("SKU-1", 2, "10")
	o := newOrder(it)
	o.FulfillmentGroups = []*order.FulfillmentGroup{{
		ID: id.New(), Method: "ground", RetailPrice: money("5"), Price: money("5"),
		Items: []order.FulfillmentGroupItem{{ItemID: it.ID, Quantity: 2}},
	}}

	env.offers.automatic = []*offer.Offer{itemOff, ship}
	saved, err := env.svc.PriceOrder(context.Background(), o, enabled())
	require.NoError(t, err)

	assert.Len(t, itemAdjustments(saved.Items[0]), 1)
	assert.True(t, saved.Items[0].TotalPrice.Equal(money("16")))
	assert.True(t, saved.FulfillmentGroups[0].Price.IsZero())
	assert.True(t, saved.Total().Equal(money("16")))
}

func TestApplyAndSaveOffersToOrder_OrderFixedPriceIsIgnored(t *testing.T) {
	fixed := orderOffer("order for 50", "FIXED_PRICE", "50")
	env := newTestEnv(fixed)
	o := newOrder(newItem("SKU-1", 1, "100"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{fixed}, o, enabled())
	require.NoError(t, err)

	assert.Empty(t, saved.Adjustments)
	assert.Empty(t, itemAdjustments(saved.Items[0]))
	assert.True(t, saved.SubTotal.Equal(money("100")), "got %s", saved.SubTotal)
}

func TestApplyAndSaveOffersToOrder_SkipsItemsWithoutDiscounting(t *testing.T) {
	off := itemOffer("5 off", "AMOUNT_OFF", "5")
	off.TargetItemCriteria[0].Quantity = 2
	env := newTestEnv(off)
	locked := newItem("SKU-1", 1, "40")
	locked.DiscountingAllowed = false
	open := newItem("SKU-2", 3, "10")
	o := newOrder(locked, open)

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{off}, o, enabled())
	require.NoError(t, err)

	assert.Empty(t, itemAdjustments(saved.Items[0]))
	assert.NotEmpty(t, itemAdjustments(saved.Items[1]))
}

func TestApplyAndSaveOffersToOrder_NonCombinableItemOfferWaitsForCleanOrder(t *testing.T) {
	onA := itemOffer("3 off A", "AMOUNT_OFF", "3")
	onA.Priority = 1
	onA.TargetItemCriteria[0].MatchRule = "A"
	loner := itemOffer("5 off B alone", "AMOUNT_OFF", "5")
	loner.Priority = 2
	loner.Combinable = false
	loner.TargetItemCriteria[0].MatchRule = "B"

	env := newTestEnv(onA, loner)
	env.svc = NewService(DefaultConfig(), Dependencies{
		Offers: env.offers, Codes: env.codes, CustomerOffers: env.customers,
		Usage: env.usage, Orders: env.orders, Rules: skuRules, Now: env.svc.now,
	})
	o := newOrder(newItem("A", 1, "20"), newItem("B", 1, "30"))

	saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{loner, onA}, o, enabled())
	require.NoError(t, err)

	adjsA := itemAdjustments(saved.Items[0])
	require.Len(t, adjsA, 1)
	assert.Equal(t, onA.ID, adjsA[0].OfferID)
	assert.Empty(t, itemAdjustments(saved.Items[1]))

	t.Run("applies when nothing else did", func(t *testing.T) {
		o := newOrder(newItem("A", 1, "20"), newItem("B", 1, "30"))
		saved, err := env.svc.ApplyAndSaveOffersToOrder(context.Background(), []*offer.Offer{loner}, o, enabled())
		require.NoError(t, err)

		adjsB := itemAdjustments(saved.Items[1])
		require.Len(t, adjsB, 1)
		assert.Equal(t, loner.ID, adjsB[0].OfferID)
	})
}
