package promotion

import (
	"context"

	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

// OfferListExtension lets collaborators add or filter candidate offers.
type OfferListExtension interface {
	// AddAdditionalOffersForCode returns extra offers unlocked by code.
	AddAdditionalOffersForCode(ctx context.Context, code *offer.OfferCode) ([]*offer.Offer, error)

	// ApplyAdditionalFilters returns the offers that remain candidates for o.
	ApplyAdditionalFilters(ctx context.Context, offers []*offer.Offer, o *order.Order) ([]*offer.Offer, error)

	// BuildOfferCodeListForCustomer returns codes a customer may redeem.
	BuildOfferCodeListForCustomer(ctx context.Context, customerID string) ([]*offer.OfferCode, error)
}

// NoopExtension adds nothing and filters nothing.
type NoopExtension struct{}

func (NoopExtension) AddAdditionalOffersForCode(context.Context, *offer.OfferCode) ([]*offer.Offer, error) {
	return nil, nil
}

func (NoopExtension) ApplyAdditionalFilters(_ context.Context, offers []*offer.Offer, _ *order.Order) ([]*offer.Offer, error) {
	return offers, nil
}

func (NoopExtension) BuildOfferCodeListForCustomer(context.Context, string) ([]*offer.OfferCode, error) {
	return nil, nil
}
