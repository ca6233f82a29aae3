package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/order"
	"offerengine/internal/domain/promotion"
	"offerengine/internal/infrastructure/storage/postgres"
)

type fakeOrders map[id.ID]*order.Order

func (f fakeOrders) GetByID(_ context.Context, orderID id.ID) (*order.Order, error) {
	if o, ok := f[orderID]; ok {
		return o, nil
	}
	return nil, apperror.NewNotFound("order", orderID.String())
}

type fakePricer struct {
	calls []promotion.ApplyOptions
	err   error
}

func (p *fakePricer) PriceOrder(_ context.Context, o *order.Order, opts promotion.ApplyOptions) (*order.Order, error) {
	p.calls = append(p.calls, opts)
	return o, p.err
}

type fixedSwitch bool

func (s fixedSwitch) PromotionsEnabled(context.Context) bool { return bool(s) }

func TestRepriceHandler(t *testing.T) {
	ctx := context.Background()
	o := &order.Order{ID: id.New()}
	orders := fakeOrders{o.ID: o}

	t.Run("prices with the current switch", func(t *testing.T) {
		pricer := &fakePricer{}
		h := newRepriceHandler(orders, pricer, fixedSwitch(false))

		require.NoError(t, h.Handle(ctx, &postgres.RepriceMessage{OrderID: o.ID, Reason: "catalog change"}))
		require.Len(t, pricer.calls, 1)
		assert.False(t, pricer.calls[0].PromotionsEnabled)
	})

	t.Run("missing order is dropped", func(t *testing.T) {
		pricer := &fakePricer{}
		h := newRepriceHandler(orders, pricer, fixedSwitch(true))

		assert.NoError(t, h.Handle(ctx, &postgres.RepriceMessage{OrderID: id.New()}))
		assert.Empty(t, pricer.calls)
	})

	t.Run("pricing failure is retried", func(t *testing.T) {
		pricer := &fakePricer{err: errors.New("lock timeout")}
		h := newRepriceHandler(orders, pricer, fixedSwitch(true))

		assert.Error(t, h.Handle(ctx, &postgres.RepriceMessage{OrderID: o.ID}))
	})
}
