package dto

import (
	"time"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/infrastructure/storage/postgres"
)

// OfferSummary describes an offer to API callers.
type OfferSummary struct {
	ID           id.ID              `json:"id"`
	Name         string             `json:"name"`
	Type         offer.Type         `json:"type"`
	DiscountType offer.DiscountType `json:"discountType"`
	Value        Money              `json:"value"`
	Combinable   bool               `json:"combinable"`
	Totalitarian bool               `json:"totalitarian"`
	StartDate    time.Time          `json:"startDate"`
	EndDate      *time.Time         `json:"endDate,omitempty"`
}

func FromOffer(o *offer.Offer) *OfferSummary {
	if o == nil {
		return nil
	}
	return &OfferSummary{
		ID:           o.ID,
		Name:         o.Name,
		Type:         o.Type,
		DiscountType: o.DiscountType,
		Value:        o.Value,
		Combinable:   o.Combinable,
		Totalitarian: o.Totalitarian,
		StartDate:    o.StartDate,
		EndDate:      o.EndDate,
	}
}

// OfferCodeResponse is an active code with the offer it redeems.
type OfferCodeResponse struct {
	ID        id.ID         `json:"id"`
	Code      string        `json:"code"`
	StartDate time.Time     `json:"startDate"`
	EndDate   *time.Time    `json:"endDate,omitempty"`
	MaxUses   int           `json:"maxUses,omitempty"`
	Offer     *OfferSummary `json:"offer"`
}

func FromOfferCode(c *offer.OfferCode, o *offer.Offer) OfferCodeResponse {
	return OfferCodeResponse{
		ID:        c.ID,
		Code:      c.Code,
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
		MaxUses:   c.MaxUses,
		Offer:     FromOffer(o),
	}
}

// PricingRunResponse is one entry of an order's pricing history.
type PricingRunResponse struct {
	ID           id.ID     `json:"id"`
	OrderVersion int       `json:"orderVersion"`
	Kind         string    `json:"kind"`
	OfferIDs     []id.ID   `json:"offerIds"`
	UserID       string    `json:"userId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func FromPricingRuns(runs []*postgres.PricingRun) []PricingRunResponse {
	out := make([]PricingRunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, PricingRunResponse{
			ID:           r.ID,
			OrderVersion: r.OrderVersion,
			Kind:         r.Kind,
			OfferIDs:     r.OfferIDs,
			UserID:       r.UserID,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}
