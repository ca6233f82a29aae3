package promotion

import (
	"context"
	"time"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeOffers struct {
	byID      map[id.ID]*offer.Offer
	automatic []*offer.Offer
	effective map[id.ID]id.ID
}

func newFakeOffers(offers ...*offer.Offer) *fakeOffers {
	f := &fakeOffers{byID: make(map[id.ID]*offer.Offer), effective: make(map[id.ID]id.ID)}
	for _, o := range offers {
		f.byID[o.ID] = o
	}
	return f
}

func (f *fakeOffers) GetByID(_ context.Context, offerID id.ID) (*offer.Offer, error) {
	if o, ok := f.byID[offerID]; ok {
		return o, nil
	}
	return nil, apperror.NewNotFound("offer", offerID)
}

func (f *fakeOffers) ListAutomatic(context.Context) ([]*offer.Offer, error) {
	return f.automatic, nil
}

func (f *fakeOffers) EffectiveID(_ context.Context, offerID id.ID) (id.ID, error) {
	if e, ok := f.effective[offerID]; ok {
		return e, nil
	}
	return offerID, nil
}

type fakeCodes struct {
	byCode  map[string][]*offer.OfferCode
	used    map[id.ID]bool
	deleted []id.ID
}

func (f *fakeCodes) GetByCode(_ context.Context, code string) (*offer.OfferCode, error) {
	list := f.byCode[code]
	for _, c := range list {
		if c.IsActive(testNow) {
			return c, nil
		}
	}
	return nil, apperror.NewNotFound("offer code", code)
}

func (f *fakeCodes) ListByCode(_ context.Context, code string) ([]*offer.OfferCode, error) {
	return f.byCode[code], nil
}

func (f *fakeCodes) GetByID(_ context.Context, codeID id.ID) (*offer.OfferCode, error) {
	for _, list := range f.byCode {
		for _, c := range list {
			if c.ID == codeID {
				return c, nil
			}
		}
	}
	return nil, apperror.NewNotFound("offer code", codeID)
}

func (f *fakeCodes) IsUsed(_ context.Context, codeID id.ID) (bool, error) {
	return f.used[codeID], nil
}

func (f *fakeCodes) Delete(_ context.Context, codeID id.ID) error {
	f.deleted = append(f.deleted, codeID)
	return nil
}

type fakeCustomerOffers struct {
	byCustomer map[string][]*offer.CustomerOffer
}

func (f *fakeCustomerOffers) ListByCustomer(_ context.Context, customerID string) ([]*offer.CustomerOffer, error) {
	if f == nil {
		return nil, nil
	}
	return f.byCustomer[customerID], nil
}

type fakeUsage struct {
	byOffer map[id.ID]int64
	byCode  map[id.ID]int64
}

func (f *fakeUsage) CountUsesByCustomer(_ context.Context, _ id.ID, _ string, offerID id.ID, _ int) (int64, error) {
	return f.byOffer[offerID], nil
}

func (f *fakeUsage) CountUsesByAccount(_ context.Context, _ id.ID, _ string, offerID id.ID, _ int) (int64, error) {
	return f.byOffer[offerID], nil
}

func (f *fakeUsage) CountOfferCodeUses(_ context.Context, _ id.ID, codeID id.ID) (int64, error) {
	return f.byCode[codeID], nil
}

type fakeOrders struct {
	saves int
	err   error
}

func (f *fakeOrders) GetByID(_ context.Context, orderID id.ID) (*order.Order, error) {
	return nil, apperror.NewNotFound("order", orderID)
}

func (f *fakeOrders) Save(_ context.Context, o *order.Order) (*order.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.saves++
	o.Version++
	return o, nil
}

type usageRow struct {
	offerID id.ID
	codeID  *id.ID
}

type fakeUsageRecorder struct {
	rows []usageRow
}

func (f *fakeUsageRecorder) RecordUsage(_ context.Context, _ *order.Order, offerID id.ID, codeID *id.ID) error {
	f.rows = append(f.rows, usageRow{offerID: offerID, codeID: codeID})
	return nil
}

type testEnv struct {
	offers    *fakeOffers
	codes     *fakeCodes
	customers *fakeCustomerOffers
	usage     *fakeUsage
	orders    *fakeOrders
	recorder  *fakeUsageRecorder
	svc       *Service
}

func newTestEnv(offers ...*offer.Offer) *testEnv {
	env := &testEnv{
		offers:    newFakeOffers(offers...),
		codes:     &fakeCodes{byCode: make(map[string][]*offer.OfferCode), used: make(map[id.ID]bool)},
		customers: &fakeCustomerOffers{byCustomer: make(map[string][]*offer.CustomerOffer)},
		usage:     &fakeUsage{byOffer: make(map[id.ID]int64), byCode: make(map[id.ID]int64)},
		orders:    &fakeOrders{},
		recorder:  &fakeUsageRecorder{},
	}
	env.svc = NewService(DefaultConfig(), Dependencies{
		Offers:         env.offers,
		Codes:          env.codes,
		CustomerOffers: env.customers,
		Usage:          env.usage,
		Orders:         env.orders,
		UsageRecorder:  env.recorder,
		Now:            func() time.Time { return testNow },
	})
	return env
}

// --- fixtures ---

func money(s string) types.Money { return types.MustMoney(s) }

func moneyPtr(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

func itemOffer(name, discount string, value string) *offer.Offer {
	return &offer.Offer{
		ID:                   id.New(),
		Name:                 name,
		Type:                 offer.TypeOrderItem,
		DiscountType:         offer.DiscountType(discount),
		Value:                money(value),
		Combinable:           true,
		DeliveryType:         offer.DeliveryAutomatic,
		StartDate:            testNow.Add(-24 * time.Hour),
		QualifierRestriction: offer.RestrictionNone,
		TargetRestriction:    offer.RestrictionNone,
		TargetItemCriteria:   []offer.ItemCriteria{{ID: id.New(), Quantity: 1}},
	}
}

func orderOffer(name, discount string, value string) *offer.Offer {
	o := itemOffer(name, discount, value)
	o.Type = offer.TypeOrder
	o.TargetItemCriteria = nil
	return o
}

func fulfillmentGroupOffer(name, discount string, value string) *offer.Offer {
	o := orderOffer(name, discount, value)
	o.Type = offer.TypeFulfillmentGroup
	return o
}

func newItem(sku string, qty int, retail string) *order.Item {
	return &order.Item{
		ID:                 id.New(),
		SKU:                sku,
		Name:               sku,
		Quantity:           qty,
		RetailPrice:        money(retail),
		DiscountingAllowed: true,
	}
}

func newOrder(items ...*order.Item) *order.Order {
	return &order.Order{
		ID:         id.New(),
		CustomerID: "cust-1",
		Currency:   "USD",
		Items:      items,
	}
}

func enabled() ApplyOptions { return DefaultApplyOptions() }

// skuRules matches an item criteria rule against the item's SKU.
var skuRules RuleFunc = func(_ context.Context, expr string, vars map[string]any) bool {
	if expr == "" {
		return true
	}
	item, ok := vars["orderItem"].(map[string]any)
	if !ok {
		return false
	}
	return item["sku"] == expr
}
