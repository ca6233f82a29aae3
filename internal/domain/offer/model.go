// Package offer holds promotion definitions, redeemable codes and their storage ports.
package offer

import (
	"context"
	"fmt"
	"time"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/entity"
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
)

// Type is the level an offer discounts.
type Type string

const (
	TypeOrderItem        Type = "ORDER_ITEM"
	TypeOrder            Type = "ORDER"
	TypeFulfillmentGroup Type = "FULFILLMENT_GROUP"
)

// DiscountType is how an offer's value is turned into an adjustment.
type DiscountType string

const (
	DiscountAmountOff  DiscountType = "AMOUNT_OFF"
	DiscountPercentOff DiscountType = "PERCENT_OFF"
	DiscountFixedPrice DiscountType = "FIXED_PRICE"
)

// DeliveryType is how an offer reaches an order.
type DeliveryType string

const (
	DeliveryAutomatic DeliveryType = "AUTOMATIC"
	DeliveryManual    DeliveryType = "MANUAL"
	DeliveryCode      DeliveryType = "CODE"
)

// ItemRestrictionRule controls whether units consumed by an offer may be reused by another offer.
type ItemRestrictionRule string

const (
	RestrictionNone            ItemRestrictionRule = "NONE"
	RestrictionQualifier       ItemRestrictionRule = "QUALIFIER"
	RestrictionTarget          ItemRestrictionRule = "TARGET"
	RestrictionQualifierTarget ItemRestrictionRule = "QUALIFIER_TARGET"
)

// AllowsReuseAsQualifier reports whether consumed units may qualify another offer.
func (r ItemRestrictionRule) AllowsReuseAsQualifier() bool {
	return r == RestrictionQualifier || r == RestrictionQualifierTarget
}

// AllowsReuseAsTarget reports whether consumed units may be discounted by another offer.
func (r ItemRestrictionRule) AllowsReuseAsTarget() bool {
	return r == RestrictionTarget || r == RestrictionQualifierTarget
}

// MaxUsesStrategy selects whose history is counted for per-customer limits.
type MaxUsesStrategy string

const (
	MaxUsesByCustomer MaxUsesStrategy = "CUSTOMER"
	MaxUsesByAccount  MaxUsesStrategy = "ACCOUNT"
)

// ItemCriteria matches order items as qualifiers or targets.
// MatchRule is a CEL expression evaluated against the item; empty matches every item.
type ItemCriteria struct {
	ID        id.ID  `db:"id" json:"id"`
	Quantity  int    `db:"quantity" json:"quantity"`
	MatchRule string `db:"match_rule" json:"matchRule,omitempty"`
}

// Offer is a promotion definition. It is treated as immutable during a pricing run.
type Offer struct {
	ID           id.ID        `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	Type         Type         `db:"offer_type" json:"type"`
	DiscountType DiscountType `db:"discount_type" json:"discountType"`
	Value        types.Money  `db:"value" json:"value"`

	// Priority orders application; lower runs first.
	Priority     int  `db:"priority" json:"priority"`
	Combinable   bool `db:"combinable" json:"combinable"`
	Totalitarian bool `db:"totalitarian" json:"totalitarian"`
	FutureCredit bool `db:"future_credit" json:"futureCredit"`

	ApplyToSalePrice bool         `db:"apply_to_sale_price" json:"applyToSalePrice"`
	DeliveryType     DeliveryType `db:"delivery_type" json:"deliveryType"`

	StartDate time.Time  `db:"start_date" json:"startDate"`
	EndDate   *time.Time `db:"end_date" json:"endDate,omitempty"`
	Archived  bool       `db:"archived" json:"archived"`

	OrderMinSubTotal          types.Money `db:"order_min_subtotal" json:"orderMinSubTotal"`
	QualifyingItemMinSubTotal types.Money `db:"qualifying_item_min_subtotal" json:"qualifyingItemMinSubTotal"`
	TargetItemMinSubTotal     types.Money `db:"target_item_min_subtotal" json:"targetItemMinSubTotal"`

	QualifyingItemCriteria []ItemCriteria `db:"-" json:"qualifyingItemCriteria,omitempty"`
	TargetItemCriteria     []ItemCriteria `db:"-" json:"targetItemCriteria,omitempty"`

	QualifierRestriction ItemRestrictionRule `db:"qualifier_restriction" json:"qualifierRestriction"`
	TargetRestriction    ItemRestrictionRule `db:"target_restriction" json:"targetRestriction"`

	// MaxUsesPerOrder caps applications within one order; 0 means unlimited.
	MaxUsesPerOrder     int             `db:"max_uses_per_order" json:"maxUsesPerOrder"`
	MaxUsesPerCustomer  int             `db:"max_uses_per_customer" json:"maxUsesPerCustomer"`
	MaxUsesStrategy     MaxUsesStrategy `db:"max_uses_strategy" json:"maxUsesStrategy"`
	MinimumDaysPerUsage int             `db:"minimum_days_per_usage" json:"minimumDaysPerUsage"`

	OrderRule            string `db:"order_rule" json:"orderRule,omitempty"`
	CustomerRule         string `db:"customer_rule" json:"customerRule,omitempty"`
	FulfillmentGroupRule string `db:"fulfillment_group_rule" json:"fulfillmentGroupRule,omitempty"`
}

// IsActive reports whether now falls inside the offer's date window.
func (o *Offer) IsActive(now time.Time) bool {
	if o.Archived {
		return false
	}
	if !o.StartDate.IsZero() && now.Before(o.StartDate) {
		return false
	}
	return o.EndDate == nil || now.Before(*o.EndDate)
}

// IsLimitedUsePerCustomer reports whether per-customer usage is capped.
func (o *Offer) IsLimitedUsePerCustomer() bool {
	return o.MaxUsesPerCustomer > 0
}

// IsUnlimitedUsePerOrder reports whether the offer may apply any number of times in an order.
func (o *Offer) IsUnlimitedUsePerOrder() bool {
	return o.MaxUsesPerOrder <= 0
}

// Exclusive reports whether the offer refuses to share an order with others.
func (o *Offer) Exclusive() bool {
	return !o.Combinable || o.Totalitarian
}

var _ entity.Validatable = (*Offer)(nil)

// Validate checks offer invariants.
func (o *Offer) Validate(_ context.Context) error {
	if o.Name == "" {
		return apperror.NewValidation("offer name is required")
	}
	switch o.Type {
	case TypeOrderItem, TypeOrder, TypeFulfillmentGroup:
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown offer type %q", o.Type))
	}
	switch o.DiscountType {
	case DiscountAmountOff, DiscountPercentOff, DiscountFixedPrice:
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown discount type %q", o.DiscountType))
	}
	if o.Value.IsNegative() {
		return apperror.NewValidation("offer value must not be negative").
			WithDetail("value", o.Value.String())
	}
	if o.DiscountType == DiscountPercentOff && o.Value.GreaterThan(types.Hundred) {
		return apperror.NewValidation("percent off must not exceed 100").
			WithDetail("value", o.Value.String())
	}
	if o.Type == TypeOrder && o.DiscountType == DiscountFixedPrice {
		return apperror.NewValidation("fixed price is not valid for order offers")
	}
	if o.EndDate != nil && !o.StartDate.IsZero() && o.EndDate.Before(o.StartDate) {
		return apperror.NewValidation("offer end date precedes start date")
	}
	for _, c := range append(append([]ItemCriteria{}, o.QualifyingItemCriteria...), o.TargetItemCriteria...) {
		if c.Quantity <= 0 {
			return apperror.NewValidation("item criteria quantity must be positive").
				WithDetail("criteria", c.ID.String())
		}
	}
	return nil
}

// OfferCode is a redeemable code bound to exactly one offer.
type OfferCode struct {
	ID        id.ID      `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	Offer     Ref        `db:"-" json:"offer"`
	StartDate time.Time  `db:"start_date" json:"startDate"`
	EndDate   *time.Time `db:"end_date" json:"endDate,omitempty"`
	// MaxUses caps redemptions of this code; 0 means unlimited.
	MaxUses  int  `db:"max_uses" json:"maxUses"`
	Archived bool `db:"archived" json:"archived"`
}

// IsActive reports whether now falls inside the code's own date window.
func (c *OfferCode) IsActive(now time.Time) bool {
	if c.Archived {
		return false
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return false
	}
	return c.EndDate == nil || now.Before(*c.EndDate)
}

// IsLimitedUse reports whether redemptions of the code are capped.
func (c *OfferCode) IsLimitedUse() bool {
	return c.MaxUses > 0
}

// CustomerOffer assigns an offer directly to a customer.
type CustomerOffer struct {
	ID         id.ID  `db:"id" json:"id"`
	CustomerID string `db:"customer_id" json:"customerId"`
	Offer      Ref    `db:"-" json:"offer"`
}
