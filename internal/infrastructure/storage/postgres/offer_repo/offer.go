// Package offer_repo provides PostgreSQL implementations of the offer repositories.
package offer_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/infrastructure/storage/postgres"
)

const (
	offerTable    = "ofr_offer"
	criteriaTable = "ofr_offer_item_criteria"

	// maxVersionDepth bounds the superseded_by chain walked by EffectiveID.
	maxVersionDepth = 32
)

// Criteria roles stored in ofr_offer_item_criteria.role.
const (
	roleQualifier = "qualifier"
	roleTarget    = "target"
)

var _ offer.Repository = (*OfferRepo)(nil)

// OfferRepo reads offers with their item criteria.
type OfferRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
}

// NewOfferRepo creates a new offer repository.
func NewOfferRepo(txManager *postgres.TxManager) *OfferRepo {
	return &OfferRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[offer.Offer](),
	}
}

func (r *OfferRepo) baseSelect() squirrel.SelectBuilder {
	return postgres.Builder().Select(r.selectCols...).From(offerTable)
}

// GetByID retrieves an offer and its criteria.
func (r *OfferRepo) GetByID(ctx context.Context, offerID id.ID) (*offer.Offer, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"id": offerID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var o offer.Offer
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("offer", offerID.String())
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}

	if err := r.loadCriteria(ctx, []*offer.Offer{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListAutomatic returns non-archived automatic offers that are not superseded
// by a newer version, ordered by priority.
func (r *OfferRepo) ListAutomatic(ctx context.Context) ([]*offer.Offer, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{
			"delivery_type": offer.DeliveryAutomatic,
			"archived":      false,
			"superseded_by": nil,
		}).
		OrderBy("priority", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var offers []*offer.Offer
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &offers, sql, args...); err != nil {
		return nil, fmt.Errorf("list automatic offers: %w", err)
	}
	if err := r.loadCriteria(ctx, offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// EffectiveID follows the superseded_by chain to the newest published version
// and takes a share lock on it. Callers run it under lock retry, so a
// concurrent publish surfaces as a lock error and is retried.
func (r *OfferRepo) EffectiveID(ctx context.Context, offerID id.ID) (id.ID, error) {
	const chainSQL = `
WITH RECURSIVE chain AS (
    SELECT id, superseded_by, 0 AS depth FROM ofr_offer WHERE id = $1
    UNION ALL
    SELECT o.id, o.superseded_by, c.depth + 1
    FROM ofr_offer o
    JOIN chain c ON o.id = c.superseded_by
    WHERE c.depth < $2
)
SELECT id FROM chain ORDER BY depth DESC LIMIT 1`

	q := r.txManager.GetQuerier(ctx)

	var effective id.ID
	if err := pgxscan.Get(ctx, q, &effective, chainSQL, offerID, maxVersionDepth); err != nil {
		if pgxscan.NotFound(err) {
			return id.Nil(), apperror.NewNotFound("offer", offerID.String())
		}
		return id.Nil(), fmt.Errorf("resolve effective offer: %w", err)
	}

	if _, err := q.Exec(ctx, "SELECT 1 FROM ofr_offer WHERE id = $1 FOR SHARE NOWAIT", effective); err != nil {
		return id.Nil(), fmt.Errorf("lock offer %s: %w", effective, err)
	}
	return effective, nil
}

type criteriaRow struct {
	offer.ItemCriteria
	OfferID id.ID  `db:"offer_id"`
	Role    string `db:"role"`
}

// loadCriteria fills qualifier and target criteria of offers with one query.
func (r *OfferRepo) loadCriteria(ctx context.Context, offers []*offer.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	byID := make(map[id.ID]*offer.Offer, len(offers))
	ids := make([]id.ID, 0, len(offers))
	for _, o := range offers {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	sql, args, err := postgres.Builder().
		Select("id", "offer_id", "role", "quantity", "match_rule").
		From(criteriaTable).
		Where(squirrel.Eq{"offer_id": ids}).
		OrderBy("offer_id", "sort_order").
		ToSql()
	if err != nil {
		return fmt.Errorf("build criteria query: %w", err)
	}

	var rows []criteriaRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return fmt.Errorf("load offer criteria: %w", err)
	}

	for _, row := range rows {
		o := byID[row.OfferID]
		if o == nil {
			continue
		}
		switch row.Role {
		case roleQualifier:
			o.QualifyingItemCriteria = append(o.QualifyingItemCriteria, row.ItemCriteria)
		case roleTarget:
			o.TargetItemCriteria = append(o.TargetItemCriteria, row.ItemCriteria)
		}
	}
	return nil
}
