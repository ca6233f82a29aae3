package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

func offerIDs(offers []*offer.Offer) []id.ID {
	out := make([]id.ID, 0, len(offers))
	for _, o := range offers {
		out = append(out, o.ID)
	}
	return out
}

func TestBuildOfferListForOrder_UsageThreshold(t *testing.T) {
	limited := orderOffer("once per customer", "AMOUNT_OFF", "5")
	limited.MaxUsesPerCustomer = 1
	env := newTestEnv(limited)
	env.offers.automatic = []*offer.Offer{limited}
	o := newOrder(newItem("SKU-1", 1, "10"))

	offers, err := env.svc.BuildOfferListForOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{limited.ID}, offerIDs(offers))

	env.usage.byOffer[limited.ID] = 1
	offers, err = env.svc.BuildOfferListForOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestBuildOfferListForOrder_SourcesAreUniqueAndOrdered(t *testing.T) {
	personal := orderOffer("personal", "AMOUNT_OFF", "1")
	coded := orderOffer("coded", "AMOUNT_OFF", "2")
	auto := orderOffer("automatic", "AMOUNT_OFF", "3")
	env := newTestEnv(personal, coded, auto)
	env.offers.automatic = []*offer.Offer{auto, personal}
	env.customers.byCustomer["cust-1"] = []*offer.CustomerOffer{
		{ID: id.New(), CustomerID: "cust-1", Offer: offer.RefByID(personal.ID)},
	}

	o := newOrder(newItem("SKU-1", 1, "10"))
	o.AddedOfferCodes = []*offer.OfferCode{
		{ID: id.New(), Code: "SAVE2", Offer: offer.RefByID(coded.ID)},
		{ID: id.New(), Code: "ALSO2", Offer: offer.RefByID(coded.ID)},
	}

	offers, err := env.svc.BuildOfferListForOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{personal.ID, coded.ID, auto.ID}, offerIDs(offers))
}

func TestBuildOfferListForOrder_CodeLimits(t *testing.T) {
	coded := orderOffer("coded", "AMOUNT_OFF", "2")
	env := newTestEnv(coded)

	expired := testNow.Add(-time.Hour)
	limitedCode := &offer.OfferCode{ID: id.New(), Code: "ONCE", Offer: offer.RefByID(coded.ID), MaxUses: 1}
	o := newOrder(newItem("SKU-1", 1, "10"))
	o.AddedOfferCodes = []*offer.OfferCode{
		{ID: id.New(), Code: "OLD", Offer: offer.RefByID(coded.ID), EndDate: &expired},
		limitedCode,
	}
	env.usage.byCode[limitedCode.ID] = 1

	offers, err := env.svc.BuildOfferListForOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, offers)

	env.usage.byCode[limitedCode.ID] = 0
	offers, err = env.svc.BuildOfferListForOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{coded.ID}, offerIDs(offers))
}

func TestRefreshOfferCodesIfApplicable_RebindsToEffectiveVersion(t *testing.T) {
	old := orderOffer("v1", "AMOUNT_OFF", "2")
	current := orderOffer("v2", "AMOUNT_OFF", "3")
	env := newTestEnv(old, current)
	env.offers.effective[old.ID] = current.ID

	code := &offer.OfferCode{ID: id.New(), Code: "SAVE", Offer: offer.RefTo(old)}
	o := newOrder(newItem("SKU-1", 1, "10"))
	o.AddedOfferCodes = []*offer.OfferCode{code}

	codes, err := env.svc.RefreshOfferCodesIfApplicable(context.Background(), o)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, current.ID, code.Offer.ID())
	assert.Same(t, current, code.Offer.Get())
}

func TestBuildOfferListForOrder_StaleAndFreshCodeYieldOfferOnce(t *testing.T) {
	old := orderOffer("v1", "AMOUNT_OFF", "2")
	current := orderOffer("v2", "AMOUNT_OFF", "3")
	env := newTestEnv(old, current)
	env.offers.effective[old.ID] = current.ID

	stale := &offer.OfferCode{ID: id.New(), Code: "OLD", Offer: offer.RefTo(old)}
	fresh := &offer.OfferCode{ID: id.New(), Code: "NEW", Offer: offer.RefByID(current.ID)}
	o := newOrder(newItem("SKU-1", 1, "10"))
	o.AddedOfferCodes = []*offer.OfferCode{stale, fresh}

	offers, err := env.svc.BuildOfferListForOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{current.ID}, offerIDs(offers))
	assert.Equal(t, current.ID, stale.Offer.ID())
}

func TestRefreshOfferCodesIfApplicable_RetriesThroughManager(t *testing.T) {
	coded := orderOffer("coded", "AMOUNT_OFF", "2")
	env := newTestEnv(coded)
	calls := 0
	retrying := retryFunc(func(ctx context.Context, fn func(context.Context) error) error {
		calls++
		return fn(ctx)
	})
	env.svc.txManager = retrying

	o := newOrder(newItem("SKU-1", 1, "10"))
	o.AddedOfferCodes = []*offer.OfferCode{{ID: id.New(), Code: "SAVE", Offer: offer.RefByID(coded.ID)}}

	_, err := env.svc.RefreshOfferCodesIfApplicable(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, coded, o.AddedOfferCodes[0].Offer.Get())
}

// retryFunc counts RunWithLockRetry calls and runs fn directly otherwise.
type retryFunc func(ctx context.Context, fn func(context.Context) error) error

func (f retryFunc) RunInTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (f retryFunc) RunWithLockRetry(ctx context.Context, fn func(context.Context) error) error {
	return f(ctx, fn)
}

func TestVerifyMaxCustomerUsageThreshold_AccountStrategy(t *testing.T) {
	off := orderOffer("account limited", "AMOUNT_OFF", "2")
	off.MaxUsesPerCustomer = 2
	off.MaxUsesStrategy = offer.MaxUsesByAccount
	env := newTestEnv(off)
	o := newOrder()
	o.AccountID = "acct-9"

	env.usage.byOffer[off.ID] = 1
	ok, err := env.svc.VerifyMaxCustomerUsageThreshold(context.Background(), o, off)
	require.NoError(t, err)
	assert.True(t, ok)

	env.usage.byOffer[off.ID] = 2
	ok, err = env.svc.VerifyMaxCustomerUsageThreshold(context.Background(), o, off)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAdjustments_RemovesDuplicateOfferAdjustments(t *testing.T) {
	env := newTestEnv()
	offerID := id.New()
	keep := &order.PriceDetailAdjustment{ID: id.New(), OfferID: offerID, Value: money("1")}
	dup := &order.PriceDetailAdjustment{ID: id.New(), OfferID: offerID, Value: money("1")}
	other := &order.PriceDetailAdjustment{ID: id.New(), OfferID: id.New(), Value: money("2")}

	it := newItem("SKU-1", 1, "10")
	it.PriceDetails = []*order.PriceDetail{{ID: id.New(), Quantity: 1, Adjustments: []*order.PriceDetailAdjustment{keep, dup, other}}}
	o := newOrder(it)

	assert.True(t, env.svc.verifyAdjustments(context.Background(), o, false))
	assert.Equal(t, []*order.PriceDetailAdjustment{keep, other}, it.PriceDetails[0].Adjustments)
	assert.False(t, env.svc.verifyAdjustments(context.Background(), o, false))
}

func TestLookups(t *testing.T) {
	first := orderOffer("first", "AMOUNT_OFF", "1")
	second := orderOffer("second", "AMOUNT_OFF", "2")
	env := newTestEnv(first, second)
	expired := testNow.Add(-time.Hour)
	env.codes.byCode["SAVE"] = []*offer.OfferCode{
		{ID: id.New(), Code: "SAVE", Offer: offer.RefByID(first.ID), EndDate: &expired},
		{ID: id.New(), Code: "SAVE", Offer: offer.RefByID(second.ID)},
	}
	ctx := context.Background()

	off, err := env.svc.LookupOfferByCode(ctx, "SAVE")
	require.NoError(t, err)
	assert.Equal(t, second.ID, off.ID)

	code, err := env.svc.LookupOfferCodeByCode(ctx, "SAVE")
	require.NoError(t, err)
	assert.Equal(t, second.ID, code.Offer.ID())

	all, err := env.svc.LookupAllOffersByCode(ctx, "SAVE")
	require.NoError(t, err)
	assert.Equal(t, []id.ID{first.ID, second.ID}, offerIDs(all))

	codes, err := env.svc.LookupAllOfferCodesByCode(ctx, "SAVE")
	require.NoError(t, err)
	assert.Len(t, codes, 2)

	_, err = env.svc.LookupOfferByCode(ctx, "MISSING")
	require.Error(t, err)
}

func TestFindByID(t *testing.T) {
	off := orderOffer("direct", "AMOUNT_OFF", "1")
	env := newTestEnv(off)
	first := &offer.OfferCode{ID: id.New(), Code: "ONE", Offer: offer.RefByID(off.ID)}
	second := &offer.OfferCode{ID: id.New(), Code: "TWO", Offer: offer.RefByID(off.ID)}
	env.codes.byCode["ONE"] = []*offer.OfferCode{first}
	env.codes.byCode["TWO"] = []*offer.OfferCode{second}
	ctx := context.Background()

	got, err := env.svc.FindOfferByID(ctx, off.ID)
	require.NoError(t, err)
	assert.Same(t, off, got)

	_, err = env.svc.FindOfferByID(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))

	code, err := env.svc.FindOfferCodeByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Same(t, second, code)

	codes, err := env.svc.FindOfferCodesByIDs(ctx, []id.ID{second.ID, id.New(), first.ID})
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Same(t, second, codes[0])
	assert.Same(t, first, codes[1])
}

func TestGetUniqueOffersFromOrder_SkipsDeletedOffers(t *testing.T) {
	kept := orderOffer("kept", "AMOUNT_OFF", "1")
	env := newTestEnv(kept)
	it := newItem("SKU-1", 1, "10")
	it.PriceDetails = []*order.PriceDetail{{ID: id.New(), Quantity: 1, Adjustments: []*order.PriceDetailAdjustment{
		{ID: id.New(), OfferID: kept.ID}, {ID: id.New(), OfferID: id.New()},
	}}}
	o := newOrder(it)
	o.Adjustments = []*order.Adjustment{{ID: id.New(), OfferID: kept.ID}}

	offers, err := env.svc.GetUniqueOffersFromOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{kept.ID}, offerIDs(offers))
}

func TestRecordOfferUsage_LinksCodes(t *testing.T) {
	coded := orderOffer("coded", "AMOUNT_OFF", "2")
	auto := itemOffer("auto", "AMOUNT_OFF", "1")
	env := newTestEnv(coded, auto)
	env.offers.automatic = []*offer.Offer{auto}

	code := &offer.OfferCode{ID: id.New(), Code: "SAVE2", Offer: offer.RefByID(coded.ID)}
	o := newOrder(newItem("SKU-1", 1, "10"))
	o.AddedOfferCodes = []*offer.OfferCode{code}

	priced, err := env.svc.PriceOrder(context.Background(), o, enabled())
	require.NoError(t, err)
	require.NoError(t, env.svc.RecordOfferUsage(context.Background(), priced))

	require.Len(t, env.recorder.rows, 2)
	byOffer := make(map[id.ID]*id.ID)
	for _, r := range env.recorder.rows {
		byOffer[r.offerID] = r.codeID
	}
	require.Contains(t, byOffer, coded.ID)
	require.NotNil(t, byOffer[coded.ID])
	assert.Equal(t, code.ID, *byOffer[coded.ID])
	assert.Nil(t, byOffer[auto.ID])
}

func TestDeleteOfferCode(t *testing.T) {
	env := newTestEnv()
	used, unused := id.New(), id.New()
	env.codes.used[used] = true

	deleted, err := env.svc.DeleteOfferCode(context.Background(), used)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = env.svc.DeleteOfferCode(context.Background(), unused)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []id.ID{unused}, env.codes.deleted)
}

type codeListExtension struct {
	NoopExtension
	codes []*offer.OfferCode
}

func (e codeListExtension) BuildOfferCodeListForCustomer(context.Context, string) ([]*offer.OfferCode, error) {
	return e.codes, nil
}

func TestBuildOfferCodeListForCustomer(t *testing.T) {
	coded := orderOffer("coded", "AMOUNT_OFF", "2")
	env := newTestEnv(coded)
	expired := testNow.Add(-time.Hour)
	active := &offer.OfferCode{ID: id.New(), Code: "NEW", Offer: offer.RefByID(coded.ID)}
	env.svc.extension = codeListExtension{codes: []*offer.OfferCode{
		{ID: id.New(), Code: "OLD", Offer: offer.RefByID(coded.ID), EndDate: &expired},
		active,
	}}

	codes, err := env.svc.BuildOfferCodeListForCustomer(context.Background(), newOrder())
	require.NoError(t, err)
	assert.Equal(t, []*offer.OfferCode{active}, codes)
}
