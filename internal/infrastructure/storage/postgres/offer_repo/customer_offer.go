package offer_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/infrastructure/storage/postgres"
)

const customerOfferTable = "ofr_customer_offer"

var _ offer.CustomerOfferRepository = (*CustomerOfferRepo)(nil)

type customerOfferRow struct {
	offer.CustomerOffer
	OfferID id.ID `db:"offer_id"`
}

// CustomerOfferRepo reads offers assigned to customers.
type CustomerOfferRepo struct {
	txManager *postgres.TxManager
}

func NewCustomerOfferRepo(txManager *postgres.TxManager) *CustomerOfferRepo {
	return &CustomerOfferRepo{txManager: txManager}
}

// ListByCustomer returns the customer's assignments in creation order.
func (r *CustomerOfferRepo) ListByCustomer(ctx context.Context, customerID string) ([]*offer.CustomerOffer, error) {
	sql, args, err := postgres.Builder().
		Select(postgres.ExtractDBColumns[customerOfferRow]()...).
		From(customerOfferTable).
		Where(squirrel.Eq{"customer_id": customerID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []customerOfferRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list customer offers: %w", err)
	}

	result := make([]*offer.CustomerOffer, 0, len(rows))
	for i := range rows {
		co := rows[i].CustomerOffer
		co.Offer = offer.RefByID(rows[i].OfferID)
		result = append(result, &co)
	}
	return result, nil
}
