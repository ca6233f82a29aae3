package promotion

import (
	"context"
	"maps"

	"offerengine/internal/domain/order"
)

// RuleEvaluator decides whether a match rule holds for the given variables.
// Evaluation failures must be reported as a non-match.
type RuleEvaluator interface {
	Matches(ctx context.Context, expr string, vars map[string]any) bool
}

// RuleFunc adapts a function to RuleEvaluator.
type RuleFunc func(ctx context.Context, expr string, vars map[string]any) bool

func (f RuleFunc) Matches(ctx context.Context, expr string, vars map[string]any) bool {
	return f(ctx, expr, vars)
}

// MatchAll treats every rule as satisfied. Used when no evaluator is configured.
var MatchAll RuleFunc = func(context.Context, string, map[string]any) bool { return true }

func orderVars(o *order.Order) map[string]any {
	return map[string]any{
		"id":         o.ID.String(),
		"currency":   o.Currency,
		"subTotal":   o.SubTotal.InexactFloat64(),
		"itemCount":  int64(len(o.Items)),
		"attributes": o.Attributes.Plain(),
	}
}

func customerVars(o *order.Order) map[string]any {
	vars := o.CustomerAttributes.Plain()
	vars["id"] = o.CustomerID
	vars["accountId"] = o.AccountID
	return vars
}

func itemVars(it *order.Item) map[string]any {
	vars := map[string]any{
		"id":                 it.ID.String(),
		"sku":                it.SKU,
		"name":               it.Name,
		"category":           it.Category,
		"quantity":           int64(it.Quantity),
		"retailPrice":        it.RetailPrice.InexactFloat64(),
		"onSale":             it.IsOnSale(),
		"discountingAllowed": it.DiscountingAllowed,
		"attributes":         it.Attributes.Plain(),
	}
	if it.SalePrice != nil {
		vars["salePrice"] = it.SalePrice.InexactFloat64()
	}
	return vars
}

func fulfillmentGroupVars(fg *order.FulfillmentGroup) map[string]any {
	vars := map[string]any{
		"id":          fg.ID.String(),
		"method":      fg.Method,
		"retailPrice": fg.RetailPrice.InexactFloat64(),
		"itemCount":   int64(len(fg.Items)),
	}
	if fg.SalePrice != nil {
		vars["salePrice"] = fg.SalePrice.InexactFloat64()
	}
	return vars
}

func ruleVars(o *order.Order, extra map[string]any) map[string]any {
	vars := map[string]any{
		"order":    orderVars(o),
		"customer": customerVars(o),
	}
	maps.Copy(vars, extra)
	return vars
}
