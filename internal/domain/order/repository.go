package order

import (
	"context"

	"offerengine/internal/core/id"
)

// Repository loads and persists order aggregates.
type Repository interface {
	// GetByID loads the order with items, details, adjustments, fulfillment groups
	// and attached offer codes. Returns NotFound when missing.
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)

	// Save persists the whole aggregate and returns the stored state.
	// Fails with ConcurrentModification when the version changed underneath.
	Save(ctx context.Context, o *Order) (*Order, error)
}
