package offer_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/order"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUsageCountQuery(t *testing.T) {
	r := &UsageRepo{now: func() time.Time { return fixedNow }}
	orderID := id.New()
	offerID := id.New()

	tests := []struct {
		name        string
		minimumDays int
		wantSQL     string
		wantArgs    int
	}{
		{
			name:     "all time",
			wantSQL:  "SELECT COUNT(*) FROM ofr_order_offer_usage WHERE customer_id = $1 AND offer_id = $2 AND order_id <> $3",
			wantArgs: 3,
		},
		{
			name:        "trailing window",
			minimumDays: 30,
			wantSQL:     "SELECT COUNT(*) FROM ofr_order_offer_usage WHERE customer_id = $1 AND offer_id = $2 AND order_id <> $3 AND used_at >= $4",
			wantArgs:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := r.countQuery(orderID, map[string]any{"customer_id": "cust-1", "offer_id": offerID}, tt.minimumDays)
			sql, args, err := q.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			require.Len(t, args, tt.wantArgs)
			// Eq and NotEq bind driver.Valuer results, so uuids arrive as strings.
			assert.Equal(t, offerID.String(), args[1])
			assert.Equal(t, orderID.String(), args[2])
			if tt.minimumDays > 0 {
				assert.Equal(t, fixedNow.AddDate(0, 0, -30), args[3])
			}
		})
	}
}

func TestRecordUsageQuery_IgnoresDuplicates(t *testing.T) {
	r := &UsageRepo{now: func() time.Time { return fixedNow }}
	o := &order.Order{ID: id.New(), CustomerID: "cust-1"}

	sql, args, err := r.recordUsageQuery(o, id.New(), nil).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO ofr_order_offer_usage")
	assert.Contains(t, sql, "ON CONFLICT (order_id, offer_id) DO NOTHING")
	assert.Len(t, args, 7)
}

func TestActiveCodeQuery(t *testing.T) {
	r := &CodeRepo{selectCols: []string{"id", "code"}}

	sql, args, err := r.activeCodeQuery("SAVE10", fixedNow).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, code FROM ofr_offer_code WHERE archived = $1 AND code = $2 AND start_date <= $3 "+
			"AND (end_date IS NULL OR end_date > $4) ORDER BY start_date DESC LIMIT 1",
		sql)
	assert.Equal(t, []any{false, "SAVE10", fixedNow, fixedNow}, args)
}

func TestCodeRowColumns(t *testing.T) {
	r := NewCodeRepo(nil)
	assert.Equal(t,
		[]string{"id", "code", "start_date", "end_date", "max_uses", "archived", "offer_id"},
		r.selectCols)
}

func TestCodeRowToDomain_ReferencesOffer(t *testing.T) {
	offerID := id.New()
	row := codeRow{OfferID: offerID}
	row.Code = "SAVE10"

	c := row.toDomain()
	assert.Equal(t, "SAVE10", c.Code)
	assert.Equal(t, offerID, c.Offer.ID())
	assert.Nil(t, c.Offer.Get())
}
