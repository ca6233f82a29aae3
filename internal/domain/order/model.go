// Package order is the persistent order aggregate that pricing reads from and writes back to.
package order

import (
	"context"
	"fmt"
	"time"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/entity"
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
)

// Order is an order aggregate with its items, fulfillment groups and adjustments.
type Order struct {
	ID         id.ID  `db:"id" json:"id"`
	CustomerID string `db:"customer_id" json:"customerId"`
	AccountID  string `db:"account_id" json:"accountId,omitempty"`
	Currency   string `db:"currency" json:"currency"`

	// CustomerAttributes feed customer match rules (segments, flags, lifetime values).
	CustomerAttributes entity.Attributes `db:"customer_attributes" json:"customerAttributes,omitempty"`
	Attributes         entity.Attributes `db:"attributes" json:"attributes,omitempty"`

	Items             []*Item             `db:"-" json:"items"`
	FulfillmentGroups []*FulfillmentGroup `db:"-" json:"fulfillmentGroups,omitempty"`
	Adjustments       []*Adjustment       `db:"-" json:"adjustments,omitempty"`
	AddedOfferCodes   []*offer.OfferCode  `db:"-" json:"addedOfferCodes,omitempty"`

	SubTotal  types.Money `db:"sub_total" json:"subTotal"`
	Version   int         `db:"version" json:"version"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// Item is an order line.
type Item struct {
	ID       id.ID  `db:"id" json:"id"`
	SKU      string `db:"sku" json:"sku"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category,omitempty"`
	Quantity int    `db:"quantity" json:"quantity"`

	RetailPrice types.Money  `db:"retail_price" json:"retailPrice"`
	SalePrice   *types.Money `db:"sale_price" json:"salePrice,omitempty"`

	DiscountingAllowed bool              `db:"discounting_allowed" json:"discountingAllowed"`
	Attributes         entity.Attributes `db:"attributes" json:"attributes,omitempty"`

	PriceDetails []*PriceDetail   `db:"-" json:"priceDetails"`
	Qualifiers   []*ItemQualifier `db:"-" json:"qualifiers,omitempty"`

	// TotalPrice is the finalized line total after item adjustments.
	TotalPrice types.Money `db:"total_price" json:"totalPrice"`
}

// PriceDetail is a quantity slice of an item sharing one adjustment set.
type PriceDetail struct {
	ID           id.ID                    `db:"id" json:"id"`
	Quantity     int                      `db:"quantity" json:"quantity"`
	UseSalePrice bool                     `db:"use_sale_price" json:"useSalePrice"`
	Adjustments  []*PriceDetailAdjustment `db:"-" json:"adjustments,omitempty"`
}

// PriceDetailAdjustment is a per-unit discount an offer contributed to a price detail.
type PriceDetailAdjustment struct {
	ID        id.ID  `db:"id" json:"id"`
	OfferID   id.ID  `db:"offer_id" json:"offerId"`
	OfferName string `db:"offer_name" json:"offerName"`

	// Value is the per-unit amount for the price basis in effect (sale or retail).
	Value       types.Money `db:"value" json:"value"`
	RetailValue types.Money `db:"retail_value" json:"retailValue"`
	SaleValue   types.Money `db:"sale_value" json:"saleValue"`

	AppliedToSalePrice bool `db:"applied_to_sale_price" json:"appliedToSalePrice"`
	FutureCredit       bool `db:"future_credit" json:"futureCredit"`
}

// ItemQualifier records units of an item consumed as qualifiers for an offer.
type ItemQualifier struct {
	ID       id.ID `db:"id" json:"id"`
	OfferID  id.ID `db:"offer_id" json:"offerId"`
	Quantity int   `db:"quantity" json:"quantity"`
}

// Adjustment is an order-level discount.
type Adjustment struct {
	ID           id.ID       `db:"id" json:"id"`
	OfferID      id.ID       `db:"offer_id" json:"offerId"`
	OfferName    string      `db:"offer_name" json:"offerName"`
	Value        types.Money `db:"value" json:"value"`
	FutureCredit bool        `db:"future_credit" json:"futureCredit"`
}

// FulfillmentGroup is a shipment with its own price and adjustments.
type FulfillmentGroup struct {
	ID          id.ID                         `db:"id" json:"id"`
	Method      string                        `db:"method" json:"method"`
	RetailPrice types.Money                   `db:"retail_price" json:"retailPrice"`
	SalePrice   *types.Money                  `db:"sale_price" json:"salePrice,omitempty"`
	Price       types.Money                   `db:"price" json:"price"`
	Items       []FulfillmentGroupItem        `db:"-" json:"items,omitempty"`
	Adjustments []*FulfillmentGroupAdjustment `db:"-" json:"adjustments,omitempty"`
}

// FulfillmentGroupItem assigns units of an order item to a fulfillment group.
type FulfillmentGroupItem struct {
	ItemID   id.ID `db:"item_id" json:"itemId"`
	Quantity int   `db:"quantity" json:"quantity"`
}

// FulfillmentGroupAdjustment is a discount on a fulfillment group's price.
type FulfillmentGroupAdjustment struct {
	ID           id.ID       `db:"id" json:"id"`
	OfferID      id.ID       `db:"offer_id" json:"offerId"`
	OfferName    string      `db:"offer_name" json:"offerName"`
	Value        types.Money `db:"value" json:"value"`
	FutureCredit bool        `db:"future_credit" json:"futureCredit"`
}

// --- Item pricing ---

// IsOnSale reports whether a sale price below retail is set.
func (i *Item) IsOnSale() bool {
	return i.SalePrice != nil && i.SalePrice.LessThan(i.RetailPrice)
}

// PriceBeforeAdjustments returns the sale price when requested and present, else retail.
func (i *Item) PriceBeforeAdjustments(applyToSalePrice bool) types.Money {
	if applyToSalePrice && i.SalePrice != nil {
		return *i.SalePrice
	}
	return i.RetailPrice
}

// CurrentBasePrice is the unit price charged without any adjustment.
func (i *Item) CurrentBasePrice() types.Money {
	if i.IsOnSale() {
		return *i.SalePrice
	}
	return i.RetailPrice
}

// UnitPrice returns the unit price a detail is based on.
func (i *Item) UnitPrice(d *PriceDetail) types.Money {
	if d.UseSalePrice && i.SalePrice != nil {
		return *i.SalePrice
	}
	return i.RetailPrice
}

// DetailTotal returns a detail's total after its adjustments.
func (i *Item) DetailTotal(d *PriceDetail) types.Money {
	unit := i.UnitPrice(d)
	for _, a := range d.Adjustments {
		if !a.FutureCredit {
			unit = unit.Sub(a.Value)
		}
	}
	return types.NonNegative(unit).Mul(types.Qty(d.Quantity))
}

// CalculateTotal sums detail totals. An item without details is charged at base price.
func (i *Item) CalculateTotal() types.Money {
	if len(i.PriceDetails) == 0 {
		return i.CurrentBasePrice().Mul(types.Qty(i.Quantity))
	}
	total := types.Zero()
	for _, d := range i.PriceDetails {
		total = total.Add(i.DetailTotal(d))
	}
	return total
}

// AdjustmentTotal sums item discounts across all details.
func (i *Item) AdjustmentTotal() types.Money {
	total := types.Zero()
	for _, d := range i.PriceDetails {
		for _, a := range d.Adjustments {
			if !a.FutureCredit {
				total = total.Add(a.Value.Mul(types.Qty(d.Quantity)))
			}
		}
	}
	return total
}

// DetailQuantity sums quantities over the price details.
func (i *Item) DetailQuantity() int {
	n := 0
	for _, d := range i.PriceDetails {
		n += d.Quantity
	}
	return n
}

// --- Order level ---

// FinalizeItemPrices stores each item's computed total.
func (o *Order) FinalizeItemPrices() {
	for _, it := range o.Items {
		it.TotalPrice = it.CalculateTotal()
	}
}

// CalculateSubTotal sums item totals including item adjustments.
func (o *Order) CalculateSubTotal() types.Money {
	total := types.Zero()
	for _, it := range o.Items {
		total = total.Add(it.CalculateTotal())
	}
	return total
}

// CalculateOrderAdjustmentTotal sums order-level discounts.
func (o *Order) CalculateOrderAdjustmentTotal() types.Money {
	total := types.Zero()
	for _, a := range o.Adjustments {
		if !a.FutureCredit {
			total = total.Add(a.Value)
		}
	}
	return total
}

// CalculateFulfillmentTotal sums fulfillment group prices.
func (o *Order) CalculateFulfillmentTotal() types.Money {
	total := types.Zero()
	for _, fg := range o.FulfillmentGroups {
		total = total.Add(fg.Price)
	}
	return total
}

// Total is subtotal minus order adjustments plus fulfillment charges.
func (o *Order) Total() types.Money {
	return types.NonNegative(o.SubTotal.Sub(o.CalculateOrderAdjustmentTotal())).Add(o.CalculateFulfillmentTotal())
}

// ItemByID finds an item.
func (o *Order) ItemByID(itemID id.ID) *Item {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it
		}
	}
	return nil
}

var _ entity.Validatable = (*Order)(nil)

// Validate checks the quantity invariants of the aggregate.
func (o *Order) Validate(_ context.Context) error {
	if id.IsNil(o.ID) {
		return apperror.NewValidation("order id is required")
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return apperror.NewValidation("item quantity must be positive").
				WithDetail("item_id", it.ID.String())
		}
		if it.RetailPrice.IsNegative() {
			return apperror.NewValidation("item retail price must not be negative").
				WithDetail("item_id", it.ID.String())
		}
		if len(it.PriceDetails) > 0 && it.DetailQuantity() != it.Quantity {
			return apperror.NewValidation(
				fmt.Sprintf("price detail quantities sum to %d, item quantity is %d", it.DetailQuantity(), it.Quantity),
			).WithDetail("item_id", it.ID.String())
		}
	}
	return nil
}
