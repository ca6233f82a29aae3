package offer

import (
	"context"

	"offerengine/internal/core/id"
)

// Repository reads offer definitions.
type Repository interface {
	// GetByID returns apperror NotFound when the offer does not exist.
	GetByID(ctx context.Context, offerID id.ID) (*Offer, error)

	// ListAutomatic returns every non-archived offer with automatic delivery.
	ListAutomatic(ctx context.Context) ([]*Offer, error)

	// EffectiveID returns the id of the offer version currently in effect for offerID.
	// It equals offerID when no newer draft version has been published.
	EffectiveID(ctx context.Context, offerID id.ID) (id.ID, error)
}

// CodeRepository reads and deletes offer codes.
type CodeRepository interface {
	// GetByCode returns the active binding for code, or NotFound.
	GetByCode(ctx context.Context, code string) (*OfferCode, error)

	// ListByCode returns every binding of code, including archived ones.
	ListByCode(ctx context.Context, code string) ([]*OfferCode, error)

	GetByID(ctx context.Context, codeID id.ID) (*OfferCode, error)

	// IsUsed reports whether any order has recorded usage of the code.
	IsUsed(ctx context.Context, codeID id.ID) (bool, error)

	Delete(ctx context.Context, codeID id.ID) error
}

// CustomerOfferRepository reads offers assigned directly to customers.
type CustomerOfferRepository interface {
	ListByCustomer(ctx context.Context, customerID string) ([]*CustomerOffer, error)
}

// UsageCounter counts committed offer usage. Counts exclude the order being priced.
type UsageCounter interface {
	// CountUsesByCustomer counts uses of offerID by customerID. When minimumDays > 0 only
	// uses within that many days are counted.
	CountUsesByCustomer(ctx context.Context, orderID id.ID, customerID string, offerID id.ID, minimumDays int) (int64, error)

	CountUsesByAccount(ctx context.Context, orderID id.ID, accountID string, offerID id.ID, minimumDays int) (int64, error)

	CountOfferCodeUses(ctx context.Context, orderID id.ID, codeID id.ID) (int64, error)
}
