package order_repo

import (
	"offerengine/internal/domain/order"
	"offerengine/internal/infrastructure/storage/postgres"
)

// tableRows is a COPY payload for one child table.
type tableRows struct {
	table   string
	columns []string
	rows    [][]any
}

func newTableRows[T any](table string, extra ...string) *tableRows {
	cols := append(postgres.ExtractDBColumns[T](), extra...)
	return &tableRows{table: table, columns: cols}
}

func (t *tableRows) add(v any, extra map[string]any) {
	t.rows = append(t.rows, postgres.RowValues(v, t.columns, extra))
}

// childTables flattens the order's children into COPY payloads, parents first.
func childTables(o *order.Order) []*tableRows {
	items := newTableRows[order.Item](itemTable, "order_id", "sort_order")
	details := newTableRows[order.PriceDetail](detailTable, "item_id", "sort_order")
	detailAdjustments := newTableRows[order.PriceDetailAdjustment](detailAdjustmentTable, "price_detail_id", "sort_order")
	qualifiers := newTableRows[order.ItemQualifier](qualifierTable, "item_id", "sort_order")
	adjustments := newTableRows[order.Adjustment](adjustmentTable, "order_id", "sort_order")
	groups := newTableRows[order.FulfillmentGroup](fgTable, "order_id", "sort_order")
	groupItems := newTableRows[order.FulfillmentGroupItem](fgItemTable, "fulfillment_group_id", "sort_order")
	groupAdjustments := newTableRows[order.FulfillmentGroupAdjustment](fgAdjustmentTable, "fulfillment_group_id", "sort_order")
	codes := &tableRows{table: orderCodeTable, columns: []string{"order_id", "offer_code_id", "sort_order"}}

	for i, it := range o.Items {
		items.add(it, map[string]any{"order_id": o.ID, "sort_order": i})
		for j, d := range it.PriceDetails {
			details.add(d, map[string]any{"item_id": it.ID, "sort_order": j})
			for k, a := range d.Adjustments {
				detailAdjustments.add(a, map[string]any{"price_detail_id": d.ID, "sort_order": k})
			}
		}
		for j, q := range it.Qualifiers {
			qualifiers.add(q, map[string]any{"item_id": it.ID, "sort_order": j})
		}
	}
	for i, a := range o.Adjustments {
		adjustments.add(a, map[string]any{"order_id": o.ID, "sort_order": i})
	}
	for i, fg := range o.FulfillmentGroups {
		groups.add(fg, map[string]any{"order_id": o.ID, "sort_order": i})
		for j, fi := range fg.Items {
			groupItems.add(fi, map[string]any{"fulfillment_group_id": fg.ID, "sort_order": j})
		}
		for j, a := range fg.Adjustments {
			groupAdjustments.add(a, map[string]any{"fulfillment_group_id": fg.ID, "sort_order": j})
		}
	}
	for i, c := range o.AddedOfferCodes {
		codes.rows = append(codes.rows, []any{o.ID, c.ID, i})
	}

	return []*tableRows{
		items, details, detailAdjustments, qualifiers,
		adjustments,
		groups, groupItems, groupAdjustments,
		codes,
	}
}
