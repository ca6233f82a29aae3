package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/order"
)

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	cols := ExtractDBColumns[order.PriceDetail]()

	assert.Equal(t, []string{"id", "quantity", "use_sale_price"}, cols)
}

func TestStructToMap(t *testing.T) {
	adj := &order.Adjustment{ID: id.New(), OfferID: id.New(), OfferName: "10 off"}

	m := StructToMap(adj)

	assert.Equal(t, adj.ID, m["id"])
	assert.Equal(t, adj.OfferID, m["offer_id"])
	assert.Equal(t, "10 off", m["offer_name"])
	assert.NotContains(t, m, "-")
}

func TestRowValues_UsesExtraColumns(t *testing.T) {
	orderID := id.New()
	q := order.ItemQualifier{ID: id.New(), OfferID: id.New(), Quantity: 2}

	row := RowValues(q, []string{"id", "order_id", "offer_id", "quantity"}, map[string]any{"order_id": orderID})

	assert.Equal(t, []any{q.ID, orderID, q.OfferID, 2}, row)
}
