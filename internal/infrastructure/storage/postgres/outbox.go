package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"offerengine/internal/core/id"
	"offerengine/pkg/logger"
)

// RepriceStatus is the state of a queued reprice request.
type RepriceStatus string

const (
	RepriceStatusPending RepriceStatus = "pending"
	RepriceStatusDone    RepriceStatus = "done"
	RepriceStatusFailed  RepriceStatus = "failed"
)

const maxRepriceRetries = 5

// RepriceMessage asks the worker to re-run pricing for an order.
type RepriceMessage struct {
	ID          id.ID         `db:"id"`
	OrderID     id.ID         `db:"order_id"`
	Reason      string        `db:"reason"`
	Status      RepriceStatus `db:"status"`
	RetryCount  int           `db:"retry_count"`
	LastError   *string       `db:"last_error"`
	NextRetryAt *time.Time    `db:"next_retry_at"`
	CreatedAt   time.Time     `db:"created_at"`
	ProcessedAt *time.Time    `db:"processed_at"`
}

const repriceTable = "ofr_reprice_outbox"

// RepriceQueue writes reprice requests in the caller's transaction, so a
// request exists exactly when the change that caused it commits.
type RepriceQueue struct {
	txManager *TxManager
}

// NewRepriceQueue creates a RepriceQueue.
func NewRepriceQueue(txManager *TxManager) *RepriceQueue {
	return &RepriceQueue{txManager: txManager}
}

// Enqueue adds a pending request for orderID.
func (q *RepriceQueue) Enqueue(ctx context.Context, orderID id.ID, reason string) error {
	stmt := Builder().Insert(repriceTable).SetMap(map[string]any{
		"id":         id.New(),
		"order_id":   orderID,
		"reason":     reason,
		"status":     RepriceStatusPending,
		"created_at": time.Now().UTC(),
	})
	sql, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := q.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("enqueue reprice: %w", err)
	}
	return nil
}

// RepriceHandler processes one reprice request.
type RepriceHandler interface {
	Handle(ctx context.Context, msg *RepriceMessage) error
}

// RepriceHandlerFunc adapts a function to RepriceHandler.
type RepriceHandlerFunc func(ctx context.Context, msg *RepriceMessage) error

func (f RepriceHandlerFunc) Handle(ctx context.Context, msg *RepriceMessage) error { return f(ctx, msg) }

// RepriceRelay claims pending requests with FOR UPDATE SKIP LOCKED so several
// workers can drain the queue concurrently.
type RepriceRelay struct {
	txManager *TxManager
	batchSize int
	handler   RepriceHandler
}

// NewRepriceRelay creates a RepriceRelay.
func NewRepriceRelay(txManager *TxManager, batchSize int, handler RepriceHandler) *RepriceRelay {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &RepriceRelay{txManager: txManager, batchSize: batchSize, handler: handler}
}

// ProcessBatch handles up to batchSize due requests and returns how many succeeded.
// Each claimed request is handled in a savepoint of the claiming transaction.
func (r *RepriceRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := Builder().
			Select(ExtractDBColumns[RepriceMessage]()...).
			From(repriceTable).
			Where(squirrel.Eq{"status": RepriceStatusPending}).
			Where("(next_retry_at IS NULL OR next_retry_at <= NOW())").
			OrderBy("created_at").
			Limit(uint64(r.batchSize)).
			Suffix("FOR UPDATE SKIP LOCKED")
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		var messages []*RepriceMessage
		if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &messages, sql, args...); err != nil {
			return fmt.Errorf("fetch reprice requests: %w", err)
		}

		for _, msg := range messages {
			if err := r.processMessage(ctx, msg); err != nil {
				logger.Warn(ctx, "reprice request failed", "order_id", msg.OrderID, "retry", msg.RetryCount, "error", err)
				continue
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (r *RepriceRelay) processMessage(ctx context.Context, msg *RepriceMessage) error {
	handleErr := r.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
		return r.handler.Handle(ctx, msg)
	})
	now := time.Now().UTC()

	var stmt squirrel.UpdateBuilder
	if handleErr != nil {
		status := RepriceStatusPending
		if msg.RetryCount+1 >= maxRepriceRetries {
			status = RepriceStatusFailed
		}
		stmt = Builder().Update(repriceTable).
			Set("retry_count", squirrel.Expr("retry_count + 1")).
			Set("last_error", handleErr.Error()).
			Set("next_retry_at", now.Add(time.Duration(msg.RetryCount+1)*time.Minute)).
			Set("status", status).
			Where(squirrel.Eq{"id": msg.ID})
	} else {
		stmt = Builder().Update(repriceTable).
			Set("status", RepriceStatusDone).
			Set("processed_at", now).
			Where(squirrel.Eq{"id": msg.ID})
	}

	sql, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update reprice request: %w", err)
	}
	return handleErr
}

// PurgeProcessed deletes finished requests older than olderThan.
func (r *RepriceRelay) PurgeProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	sql, args, err := Builder().Delete(repriceTable).
		Where(squirrel.Eq{"status": RepriceStatusDone}).
		Where(squirrel.Lt{"processed_at": time.Now().UTC().Add(-olderThan)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("purge reprice requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
