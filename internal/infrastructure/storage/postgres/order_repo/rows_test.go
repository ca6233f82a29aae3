package order_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

func TestChildTables_FlattensAggregate(t *testing.T) {
	offerID := id.New()
	detail := &order.PriceDetail{
		ID:       id.New(),
		Quantity: 2,
		Adjustments: []*order.PriceDetailAdjustment{
			{ID: id.New(), OfferID: offerID, Value: types.MustMoney("1")},
		},
	}
	item := &order.Item{
		ID:           id.New(),
		SKU:          "SKU-1",
		Quantity:     2,
		RetailPrice:  types.MustMoney("10"),
		PriceDetails: []*order.PriceDetail{detail},
		Qualifiers:   []*order.ItemQualifier{{ID: id.New(), OfferID: offerID, Quantity: 1}},
	}
	fg := &order.FulfillmentGroup{
		ID:          id.New(),
		Items:       []order.FulfillmentGroupItem{{ItemID: item.ID, Quantity: 2}},
		Adjustments: []*order.FulfillmentGroupAdjustment{{ID: id.New(), OfferID: offerID}},
	}
	code := &offer.OfferCode{ID: id.New(), Code: "SAVE10"}
	o := &order.Order{
		ID:                id.New(),
		Items:             []*order.Item{item},
		Adjustments:       []*order.Adjustment{{ID: id.New(), OfferID: offerID}},
		FulfillmentGroups: []*order.FulfillmentGroup{fg},
		AddedOfferCodes:   []*offer.OfferCode{code},
	}

	tables := childTables(o)

	byName := make(map[string]*tableRows, len(tables))
	for _, tr := range tables {
		byName[tr.table] = tr
	}
	for _, name := range []string{itemTable, detailTable, detailAdjustmentTable, qualifierTable, adjustmentTable, fgTable, fgItemTable, fgAdjustmentTable, orderCodeTable} {
		require.Contains(t, byName, name)
		assert.Len(t, byName[name].rows, 1, name)
	}

	assert.Equal(t, itemTable, tables[0].table, "parents are copied first")

	details := byName[detailTable]
	require.Equal(t, []string{"id", "quantity", "use_sale_price", "item_id", "sort_order"}, details.columns)
	assert.Equal(t, []any{detail.ID, 2, false, item.ID, 0}, details.rows[0])

	assert.Equal(t, []any{o.ID, code.ID, 0}, byName[orderCodeTable].rows[0])
}

func TestChildTables_EmptyOrder(t *testing.T) {
	for _, tr := range childTables(&order.Order{ID: id.New()}) {
		assert.Empty(t, tr.rows, tr.table)
	}
}
