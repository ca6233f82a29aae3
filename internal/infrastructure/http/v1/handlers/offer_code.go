package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/infrastructure/http/v1/dto"
)

// OfferCodeService looks up and deletes offer codes.
type OfferCodeService interface {
	LookupOfferCodeByCode(ctx context.Context, code string) (*offer.OfferCode, error)
	LookupOfferByCode(ctx context.Context, code string) (*offer.Offer, error)
	LookupAllOffersByCode(ctx context.Context, code string) ([]*offer.Offer, error)
	DeleteOfferCode(ctx context.Context, codeID id.ID) (bool, error)
}

// OfferCodeHandler serves offer code endpoints.
type OfferCodeHandler struct {
	*BaseHandler
	service OfferCodeService
}

func NewOfferCodeHandler(base *BaseHandler, service OfferCodeService) *OfferCodeHandler {
	return &OfferCodeHandler{BaseHandler: base, service: service}
}

// Get returns the active binding of a code and its offer.
// GET /api/v1/offer-codes/:code
func (h *OfferCodeHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	oc, err := h.service.LookupOfferCodeByCode(ctx, code)
	if err != nil {
		h.Error(c, err)
		return
	}
	off, err := h.service.LookupOfferByCode(ctx, code)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOfferCode(oc, off))
}

// ListOffers returns the offers of every binding the code ever had.
// GET /api/v1/offer-codes/:code/offers
func (h *OfferCodeHandler) ListOffers(c *gin.Context) {
	offers, err := h.service.LookupAllOffersByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]*dto.OfferSummary, 0, len(offers))
	for _, o := range offers {
		out = append(out, dto.FromOffer(o))
	}
	h.OK(c, out)
}

// Delete removes a code that no order has used.
// DELETE /api/v1/offer-codes/:id
func (h *OfferCodeHandler) Delete(c *gin.Context) {
	codeID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.service.DeleteOfferCode(c.Request.Context(), codeID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !deleted {
		h.Error(c, apperror.NewOfferCodeInUse(codeID.String()))
		return
	}
	h.OK(c, dto.SuccessResponse{Success: true, Message: "offer code deleted"})
}
