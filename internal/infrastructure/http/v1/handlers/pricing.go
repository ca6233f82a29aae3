package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/order"
	"offerengine/internal/domain/promotion"
	"offerengine/internal/infrastructure/http/v1/dto"
	"offerengine/internal/infrastructure/storage/postgres"
	"offerengine/pkg/logger"
)

// PricingService prices orders and records offer usage.
type PricingService interface {
	PriceOrder(ctx context.Context, o *order.Order, opts promotion.ApplyOptions) (*order.Order, error)
	RecordOfferUsage(ctx context.Context, o *order.Order) error
}

// OrderLoader loads order aggregates.
type OrderLoader interface {
	GetByID(ctx context.Context, orderID id.ID) (*order.Order, error)
}

// RepriceEnqueuer queues background reprices.
type RepriceEnqueuer interface {
	Enqueue(ctx context.Context, orderID id.ID, reason string) error
}

// PricingHistory lists audited pricing runs.
type PricingHistory interface {
	History(ctx context.Context, orderID id.ID, limit int) ([]*postgres.PricingRun, error)
}

// PromotionSwitch reports whether promotions are globally enabled.
type PromotionSwitch interface {
	PromotionsEnabled(ctx context.Context) bool
}

// PricingHandler serves order pricing endpoints.
type PricingHandler struct {
	*BaseHandler
	service  PricingService
	orders   OrderLoader
	queue    RepriceEnqueuer
	history  PricingHistory
	switches PromotionSwitch
}

func NewPricingHandler(
	base *BaseHandler,
	service PricingService,
	orders OrderLoader,
	queue RepriceEnqueuer,
	history PricingHistory,
	switches PromotionSwitch,
) *PricingHandler {
	return &PricingHandler{
		BaseHandler: base,
		service:     service,
		orders:      orders,
		queue:       queue,
		history:     history,
		switches:    switches,
	}
}

func (h *PricingHandler) applyOptions(ctx context.Context) promotion.ApplyOptions {
	opts := promotion.DefaultApplyOptions()
	if h.switches != nil {
		opts.PromotionsEnabled = h.switches.PromotionsEnabled(ctx)
	}
	return opts
}

// Price runs the order/item and fulfillment group passes and returns the priced order.
// POST /api/v1/orders/:id/price
func (h *PricingHandler) Price(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.PriceOrderRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	o, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != o.Version {
		h.Error(c, apperror.NewConcurrentModification("order", orderID.String()).
			WithDetail("expected_version", *req.ExpectedVersion).
			WithDetail("actual_version", o.Version))
		return
	}

	priced, err := h.service.PriceOrder(ctx, o, h.applyOptions(ctx))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(priced))
}

// RecordUsage stores usage of every offer applied to the order. Called at checkout.
// POST /api/v1/orders/:id/offer-usage
func (h *PricingHandler) RecordUsage(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	o, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.RecordOfferUsage(ctx, o); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.SuccessResponse{Success: true})
}

// Reprice queues a background reprice of the order.
// POST /api/v1/orders/:id/reprice
func (h *PricingHandler) Reprice(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.RepriceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if err := h.queue.Enqueue(ctx, orderID, req.Reason); err != nil {
		h.Error(c, err)
		return
	}
	logger.Info(ctx, "reprice queued", "order_id", orderID, "reason", req.Reason)
	h.Accepted(c, dto.AcceptedResponse{ID: orderID, Status: "queued"})
}

// History lists the latest pricing runs of the order.
// GET /api/v1/orders/:id/pricing-runs
func (h *PricingHandler) History(c *gin.Context) {
	orderID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()

	runs, err := h.history.History(c.Request.Context(), orderID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromPricingRuns(runs))
}
