package dto

import (
	"time"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/order"
)

// PriceOrderRequest optionally pins the order version the caller priced against.
type PriceOrderRequest struct {
	ExpectedVersion *int `json:"expectedVersion,omitempty" binding:"omitempty,min=0"`
}

// RepriceRequest queues a background reprice.
type RepriceRequest struct {
	Reason string `json:"reason" binding:"required,max=200"`
}

type AdjustmentResponse struct {
	OfferID      id.ID  `json:"offerId"`
	OfferName    string `json:"offerName"`
	Value        Money  `json:"value"`
	FutureCredit bool   `json:"futureCredit,omitempty"`
}

type PriceDetailResponse struct {
	Quantity     int                  `json:"quantity"`
	UseSalePrice bool                 `json:"useSalePrice"`
	Adjustments  []AdjustmentResponse `json:"adjustments"`
}

type ItemResponse struct {
	ID              id.ID                 `json:"id"`
	SKU             string                `json:"sku"`
	Quantity        int                   `json:"quantity"`
	RetailPrice     Money                 `json:"retailPrice"`
	SalePrice       *Money                `json:"salePrice,omitempty"`
	AdjustmentTotal Money                 `json:"adjustmentTotal"`
	TotalPrice      Money                 `json:"totalPrice"`
	PriceDetails    []PriceDetailResponse `json:"priceDetails"`
}

type FulfillmentGroupResponse struct {
	ID          id.ID                `json:"id"`
	Method      string               `json:"method"`
	RetailPrice Money                `json:"retailPrice"`
	Price       Money                `json:"price"`
	Adjustments []AdjustmentResponse `json:"adjustments"`
}

// PricedOrderResponse is an order after a pricing run.
type PricedOrderResponse struct {
	ID                   id.ID                      `json:"id"`
	Version              int                        `json:"version"`
	Currency             string                     `json:"currency"`
	SubTotal             Money                      `json:"subTotal"`
	OrderAdjustmentTotal Money                      `json:"orderAdjustmentTotal"`
	FulfillmentTotal     Money                      `json:"fulfillmentTotal"`
	Total                Money                      `json:"total"`
	Items                []ItemResponse             `json:"items"`
	Adjustments          []AdjustmentResponse       `json:"adjustments"`
	FulfillmentGroups    []FulfillmentGroupResponse `json:"fulfillmentGroups"`
	OfferCodes           []string                   `json:"offerCodes,omitempty"`
	UpdatedAt            time.Time                  `json:"updatedAt"`
}

// FromOrder maps a priced order to its response.
func FromOrder(o *order.Order) PricedOrderResponse {
	resp := PricedOrderResponse{
		ID:                   o.ID,
		Version:              o.Version,
		Currency:             o.Currency,
		SubTotal:             o.SubTotal,
		OrderAdjustmentTotal: o.CalculateOrderAdjustmentTotal(),
		FulfillmentTotal:     o.CalculateFulfillmentTotal(),
		Total:                o.Total(),
		Items:                make([]ItemResponse, 0, len(o.Items)),
		Adjustments:          make([]AdjustmentResponse, 0, len(o.Adjustments)),
		FulfillmentGroups:    make([]FulfillmentGroupResponse, 0, len(o.FulfillmentGroups)),
		UpdatedAt:            o.UpdatedAt,
	}

	for _, it := range o.Items {
		ir := ItemResponse{
			ID:              it.ID,
			SKU:             it.SKU,
			Quantity:        it.Quantity,
			RetailPrice:     it.RetailPrice,
			SalePrice:       it.SalePrice,
			AdjustmentTotal: it.AdjustmentTotal(),
			TotalPrice:      it.TotalPrice,
			PriceDetails:    make([]PriceDetailResponse, 0, len(it.PriceDetails)),
		}
		for _, d := range it.PriceDetails {
			dr := PriceDetailResponse{
				Quantity:     d.Quantity,
				UseSalePrice: d.UseSalePrice,
				Adjustments:  make([]AdjustmentResponse, 0, len(d.Adjustments)),
			}
			for _, a := range d.Adjustments {
				dr.Adjustments = append(dr.Adjustments, AdjustmentResponse{
					OfferID: a.OfferID, OfferName: a.OfferName, Value: a.Value, FutureCredit: a.FutureCredit,
				})
			}
			ir.PriceDetails = append(ir.PriceDetails, dr)
		}
		resp.Items = append(resp.Items, ir)
	}

	for _, a := range o.Adjustments {
		resp.Adjustments = append(resp.Adjustments, AdjustmentResponse{
			OfferID: a.OfferID, OfferName: a.OfferName, Value: a.Value, FutureCredit: a.FutureCredit,
		})
	}

	for _, fg := range o.FulfillmentGroups {
		fr := FulfillmentGroupResponse{
			ID:          fg.ID,
			Method:      fg.Method,
			RetailPrice: fg.RetailPrice,
			Price:       fg.Price,
			Adjustments: make([]AdjustmentResponse, 0, len(fg.Adjustments)),
		}
		for _, a := range fg.Adjustments {
			fr.Adjustments = append(fr.Adjustments, AdjustmentResponse{
				OfferID: a.OfferID, OfferName: a.OfferName, Value: a.Value, FutureCredit: a.FutureCredit,
			})
		}
		resp.FulfillmentGroups = append(resp.FulfillmentGroups, fr)
	}

	for _, c := range o.AddedOfferCodes {
		resp.OfferCodes = append(resp.OfferCodes, c.Code)
	}
	return resp
}
