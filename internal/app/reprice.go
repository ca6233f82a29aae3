package app

import (
	"context"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/order"
	"offerengine/internal/domain/promotion"
	"offerengine/internal/infrastructure/storage/postgres"
	"offerengine/pkg/logger"
)

type orderGetter interface {
	GetByID(ctx context.Context, orderID id.ID) (*order.Order, error)
}

type orderPricer interface {
	PriceOrder(ctx context.Context, o *order.Order, opts promotion.ApplyOptions) (*order.Order, error)
}

type promotionSwitch interface {
	PromotionsEnabled(ctx context.Context) bool
}

// newRepriceHandler reloads the queued order and prices it again. Requests for
// orders that no longer exist are dropped.
func newRepriceHandler(orders orderGetter, pricer orderPricer, switches promotionSwitch) postgres.RepriceHandlerFunc {
	return func(ctx context.Context, msg *postgres.RepriceMessage) error {
		o, err := orders.GetByID(ctx, msg.OrderID)
		if apperror.IsNotFound(err) {
			logger.Warn(ctx, "dropping reprice for missing order", "order_id", msg.OrderID)
			return nil
		}
		if err != nil {
			return err
		}

		opts := promotion.DefaultApplyOptions()
		opts.PromotionsEnabled = switches.PromotionsEnabled(ctx)
		if _, err := pricer.PriceOrder(ctx, o, opts); err != nil {
			return err
		}
		logger.Info(ctx, "order repriced", "order_id", msg.OrderID, "reason", msg.Reason)
		return nil
	}
}

// RepriceRelay returns a relay draining the reprice queue through the promotion service.
func (a *App) RepriceRelay() *postgres.RepriceRelay {
	return postgres.NewRepriceRelay(a.TxManager, a.Config.WorkerBatchSize,
		newRepriceHandler(a.Orders, a.Promotions, a.Flags))
}
