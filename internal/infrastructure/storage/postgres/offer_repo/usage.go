package offer_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
	"offerengine/internal/infrastructure/storage/postgres"
)

const usageTable = "ofr_order_offer_usage"

var _ offer.UsageCounter = (*UsageRepo)(nil)

// UsageRepo counts and records committed offer usage per order.
type UsageRepo struct {
	txManager *postgres.TxManager
	now       func() time.Time
}

func NewUsageRepo(txManager *postgres.TxManager) *UsageRepo {
	return &UsageRepo{txManager: txManager, now: time.Now}
}

// countQuery counts usage rows matching where, excluding orderID. minimumDays > 0
// restricts the count to that many trailing days.
func (r *UsageRepo) countQuery(orderID id.ID, where squirrel.Eq, minimumDays int) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select("COUNT(*)").
		From(usageTable).
		Where(where).
		Where(squirrel.NotEq{"order_id": orderID})
	if minimumDays > 0 {
		since := r.now().UTC().AddDate(0, 0, -minimumDays)
		q = q.Where(squirrel.GtOrEq{"used_at": since})
	}
	return q
}

func (r *UsageRepo) count(ctx context.Context, q squirrel.SelectBuilder) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int64
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count offer usage: %w", err)
	}
	return n, nil
}

func (r *UsageRepo) CountUsesByCustomer(ctx context.Context, orderID id.ID, customerID string, offerID id.ID, minimumDays int) (int64, error) {
	return r.count(ctx, r.countQuery(orderID, squirrel.Eq{"customer_id": customerID, "offer_id": offerID}, minimumDays))
}

func (r *UsageRepo) CountUsesByAccount(ctx context.Context, orderID id.ID, accountID string, offerID id.ID, minimumDays int) (int64, error) {
	return r.count(ctx, r.countQuery(orderID, squirrel.Eq{"account_id": accountID, "offer_id": offerID}, minimumDays))
}

func (r *UsageRepo) CountOfferCodeUses(ctx context.Context, orderID id.ID, codeID id.ID) (int64, error) {
	return r.count(ctx, r.countQuery(orderID, squirrel.Eq{"offer_code_id": codeID}, 0))
}

// recordUsageQuery inserts one usage row. A second record for the same order
// and offer is ignored.
func (r *UsageRepo) recordUsageQuery(o *order.Order, offerID id.ID, codeID *id.ID) squirrel.InsertBuilder {
	return postgres.Builder().
		Insert(usageTable).
		SetMap(map[string]any{
			"id":            id.New(),
			"order_id":      o.ID,
			"offer_id":      offerID,
			"offer_code_id": codeID,
			"customer_id":   o.CustomerID,
			"account_id":    o.AccountID,
			"used_at":       r.now().UTC(),
		}).
		Suffix("ON CONFLICT (order_id, offer_id) DO NOTHING")
}

// RecordUsage stores that o used offerID, optionally through codeID.
func (r *UsageRepo) RecordUsage(ctx context.Context, o *order.Order, offerID id.ID, codeID *id.ID) error {
	sql, args, err := r.recordUsageQuery(o, offerID, codeID).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("record offer usage: %w", err)
	}
	return nil
}
