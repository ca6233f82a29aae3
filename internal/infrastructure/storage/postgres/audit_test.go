package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "offerengine/internal/core/context"
	"offerengine/internal/core/id"
	"offerengine/internal/core/types"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

func TestPricingAudit_CompressesLargeSnapshots(t *testing.T) {
	audit, err := NewPricingAudit(nil)
	require.NoError(t, err)
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1"})

	o := &order.Order{ID: id.New(), Currency: "USD"}
	for i := 0; i < 200; i++ {
		o.Items = append(o.Items, &order.Item{
			ID: id.New(), SKU: strings.Repeat("X", 20), Quantity: 1, RetailPrice: types.MustMoney("1.00"),
		})
	}
	off := &offer.Offer{ID: id.New()}

	run, err := audit.NewPricingRun(ctx, o, "order_item", []*offer.Offer{off})
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, run.CompressionAlgo)
	assert.Nil(t, run.Snapshot)
	assert.NotEmpty(t, run.SnapshotCompressed)
	assert.Equal(t, []id.ID{off.ID}, run.OfferIDs)
	assert.Equal(t, "u-1", run.UserID)

	require.NoError(t, audit.decompress(run))
	assert.Contains(t, string(run.Snapshot), o.ID.String())
}

func TestPricingAudit_KeepsSmallSnapshotsPlain(t *testing.T) {
	audit, err := NewPricingAudit(nil)
	require.NoError(t, err)

	run, err := audit.NewPricingRun(context.Background(), &order.Order{ID: id.New()}, "fulfillment_group", nil)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, run.CompressionAlgo)
	assert.NotEmpty(t, run.Snapshot)
	assert.Empty(t, run.UserID)
}
