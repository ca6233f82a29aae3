package offer_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/infrastructure/storage/postgres"
)

const codeTable = "ofr_offer_code"

var _ offer.CodeRepository = (*CodeRepo)(nil)

// codeRow is an offer code row; the offer is referenced by id and resolved lazily.
type codeRow struct {
	offer.OfferCode
	OfferID id.ID `db:"offer_id"`
}

func (r *codeRow) toDomain() *offer.OfferCode {
	c := r.OfferCode
	c.Offer = offer.RefByID(r.OfferID)
	return &c
}

// CodeRepo reads and deletes offer codes.
type CodeRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
	now        func() time.Time
}

// NewCodeRepo creates a new offer code repository.
func NewCodeRepo(txManager *postgres.TxManager) *CodeRepo {
	return &CodeRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[codeRow](),
		now:        time.Now,
	}
}

func (r *CodeRepo) baseSelect() squirrel.SelectBuilder {
	return postgres.Builder().Select(r.selectCols...).From(codeTable)
}

// activeCodeQuery selects the binding of code that is in effect at now.
func (r *CodeRepo) activeCodeQuery(code string, now time.Time) squirrel.SelectBuilder {
	return r.baseSelect().
		Where(squirrel.Eq{"code": code, "archived": false}).
		Where(squirrel.LtOrEq{"start_date": now}).
		Where(squirrel.Or{
			squirrel.Eq{"end_date": nil},
			squirrel.Gt{"end_date": now},
		}).
		OrderBy("start_date DESC").
		Limit(1)
}

// GetByCode returns the active binding of code.
func (r *CodeRepo) GetByCode(ctx context.Context, code string) (*offer.OfferCode, error) {
	sql, args, err := r.activeCodeQuery(code, r.now().UTC()).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row codeRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("offer_code", code)
		}
		return nil, fmt.Errorf("get offer code: %w", err)
	}
	return row.toDomain(), nil
}

// ListByCode returns every binding of code, newest first.
func (r *CodeRepo) ListByCode(ctx context.Context, code string) ([]*offer.OfferCode, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"code": code}).
		OrderBy("start_date DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []codeRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list offer codes: %w", err)
	}
	codes := make([]*offer.OfferCode, 0, len(rows))
	for i := range rows {
		codes = append(codes, rows[i].toDomain())
	}
	return codes, nil
}

// GetByID retrieves a code by id.
func (r *CodeRepo) GetByID(ctx context.Context, codeID id.ID) (*offer.OfferCode, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"id": codeID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row codeRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("offer_code", codeID.String())
		}
		return nil, fmt.Errorf("get offer code: %w", err)
	}
	return row.toDomain(), nil
}

// IsUsed reports whether any order has recorded usage of the code.
func (r *CodeRepo) IsUsed(ctx context.Context, codeID id.ID) (bool, error) {
	sql, args, err := postgres.Builder().
		Select("1").
		From(usageTable).
		Where(squirrel.Eq{"offer_code_id": codeID}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var used bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&used); err != nil {
		return false, fmt.Errorf("check offer code usage: %w", err)
	}
	return used, nil
}

// Delete removes the code. Missing codes return NotFound.
func (r *CodeRepo) Delete(ctx context.Context, codeID id.ID) error {
	sql, args, err := postgres.Builder().
		Delete(codeTable).
		Where(squirrel.Eq{"id": codeID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete offer code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("offer_code", codeID.String())
	}
	return nil
}
