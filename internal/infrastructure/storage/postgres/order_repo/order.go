// Package order_repo persists order aggregates in PostgreSQL.
//
// The order row carries an optimistic lock version. Children (items, price
// details, adjustments, qualifiers, fulfillment groups and attached codes) are
// replaced wholesale on every save.
package order_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"offerengine/internal/core/apperror"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
	"offerengine/internal/infrastructure/storage/postgres"
	"offerengine/pkg/logger"
)

const (
	orderTable            = "ofr_order"
	itemTable             = "ofr_order_item"
	detailTable           = "ofr_order_item_price_detail"
	detailAdjustmentTable = "ofr_order_item_price_detail_adjustment"
	qualifierTable        = "ofr_order_item_qualifier"
	adjustmentTable       = "ofr_order_adjustment"
	fgTable               = "ofr_fulfillment_group"
	fgItemTable           = "ofr_fulfillment_group_item"
	fgAdjustmentTable     = "ofr_fulfillment_group_adjustment"
	orderCodeTable        = "ofr_order_offer_code"
)

var _ order.Repository = (*OrderRepo)(nil)

type itemRow struct {
	order.Item
	OrderID id.ID `db:"order_id"`
}

type detailRow struct {
	order.PriceDetail
	ItemID id.ID `db:"item_id"`
}

type detailAdjustmentRow struct {
	order.PriceDetailAdjustment
	PriceDetailID id.ID `db:"price_detail_id"`
}

type qualifierRow struct {
	order.ItemQualifier
	ItemID id.ID `db:"item_id"`
}

type fgRow struct {
	order.FulfillmentGroup
	OrderID id.ID `db:"order_id"`
}

type fgItemRow struct {
	order.FulfillmentGroupItem
	FulfillmentGroupID id.ID `db:"fulfillment_group_id"`
}

type fgAdjustmentRow struct {
	order.FulfillmentGroupAdjustment
	FulfillmentGroupID id.ID `db:"fulfillment_group_id"`
}

type orderCodeRow struct {
	offer.OfferCode
	OfferID id.ID `db:"offer_id"`
}

// OrderRepo loads and saves order aggregates.
type OrderRepo struct {
	txManager *postgres.TxManager
	now       func() time.Time
}

// NewOrderRepo creates a new order repository.
func NewOrderRepo(txManager *postgres.TxManager) *OrderRepo {
	return &OrderRepo{txManager: txManager, now: time.Now}
}

// GetByID loads the order and all of its children.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	var o *order.Order
	err := r.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		o, err = r.load(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) load(ctx context.Context, orderID id.ID) (*order.Order, error) {
	q := r.txManager.GetQuerier(ctx)

	sql, args, err := postgres.Builder().
		Select(postgres.ExtractDBColumns[order.Order]()...).
		From(orderTable).
		Where(squirrel.Eq{"id": orderID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var o order.Order
	if err := pgxscan.Get(ctx, q, &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := r.loadItems(ctx, q, &o); err != nil {
		return nil, err
	}

	adjustments, err := selectChildren[order.Adjustment](ctx, q, adjustmentTable, "order_id", []id.ID{o.ID}, "sort_order")
	if err != nil {
		return nil, err
	}
	o.Adjustments = adjustments

	if err := r.loadFulfillmentGroups(ctx, q, &o); err != nil {
		return nil, err
	}
	if err := r.loadOfferCodes(ctx, q, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// selectChildren loads rows of T whose fkColumn is one of parentIDs.
func selectChildren[T any](ctx context.Context, q postgres.Querier, table, fkColumn string, parentIDs []id.ID, orderBy ...string) ([]*T, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	sql, args, err := postgres.Builder().
		Select(postgres.ExtractDBColumns[T]()...).
		From(table).
		Where(squirrel.Eq{fkColumn: parentIDs}).
		OrderBy(orderBy...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", table, err)
	}
	var rows []*T
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, q postgres.Querier, o *order.Order) error {
	items, err := selectChildren[itemRow](ctx, q, itemTable, "order_id", []id.ID{o.ID}, "sort_order")
	if err != nil {
		return err
	}
	itemByID := make(map[id.ID]*order.Item, len(items))
	itemIDs := make([]id.ID, 0, len(items))
	for _, row := range items {
		it := row.Item
		o.Items = append(o.Items, &it)
		itemByID[it.ID] = &it
		itemIDs = append(itemIDs, it.ID)
	}

	details, err := selectChildren[detailRow](ctx, q, detailTable, "item_id", itemIDs, "item_id", "sort_order")
	if err != nil {
		return err
	}
	detailByID := make(map[id.ID]*order.PriceDetail, len(details))
	detailIDs := make([]id.ID, 0, len(details))
	for _, row := range details {
		d := row.PriceDetail
		if it := itemByID[row.ItemID]; it != nil {
			it.PriceDetails = append(it.PriceDetails, &d)
		}
		detailByID[d.ID] = &d
		detailIDs = append(detailIDs, d.ID)
	}

	adjustments, err := selectChildren[detailAdjustmentRow](ctx, q, detailAdjustmentTable, "price_detail_id", detailIDs, "price_detail_id", "sort_order")
	if err != nil {
		return err
	}
	for _, row := range adjustments {
		if d := detailByID[row.PriceDetailID]; d != nil {
			a := row.PriceDetailAdjustment
			d.Adjustments = append(d.Adjustments, &a)
		}
	}

	qualifiers, err := selectChildren[qualifierRow](ctx, q, qualifierTable, "item_id", itemIDs, "item_id", "sort_order")
	if err != nil {
		return err
	}
	for _, row := range qualifiers {
		if it := itemByID[row.ItemID]; it != nil {
			iq := row.ItemQualifier
			it.Qualifiers = append(it.Qualifiers, &iq)
		}
	}
	return nil
}

func (r *OrderRepo) loadFulfillmentGroups(ctx context.Context, q postgres.Querier, o *order.Order) error {
	groups, err := selectChildren[fgRow](ctx, q, fgTable, "order_id", []id.ID{o.ID}, "sort_order")
	if err != nil {
		return err
	}
	fgByID := make(map[id.ID]*order.FulfillmentGroup, len(groups))
	fgIDs := make([]id.ID, 0, len(groups))
	for _, row := range groups {
		fg := row.FulfillmentGroup
		o.FulfillmentGroups = append(o.FulfillmentGroups, &fg)
		fgByID[fg.ID] = &fg
		fgIDs = append(fgIDs, fg.ID)
	}

	items, err := selectChildren[fgItemRow](ctx, q, fgItemTable, "fulfillment_group_id", fgIDs, "fulfillment_group_id", "sort_order")
	if err != nil {
		return err
	}
	for _, row := range items {
		if fg := fgByID[row.FulfillmentGroupID]; fg != nil {
			fg.Items = append(fg.Items, row.FulfillmentGroupItem)
		}
	}

	adjustments, err := selectChildren[fgAdjustmentRow](ctx, q, fgAdjustmentTable, "fulfillment_group_id", fgIDs, "fulfillment_group_id", "sort_order")
	if err != nil {
		return err
	}
	for _, row := range adjustments {
		if fg := fgByID[row.FulfillmentGroupID]; fg != nil {
			a := row.FulfillmentGroupAdjustment
			fg.Adjustments = append(fg.Adjustments, &a)
		}
	}
	return nil
}

func (r *OrderRepo) loadOfferCodes(ctx context.Context, q postgres.Querier, o *order.Order) error {
	cols := postgres.ExtractDBColumns[orderCodeRow]()
	for i, c := range cols {
		cols[i] = "c." + c
	}
	sql, args, err := postgres.Builder().
		Select(cols...).
		From(orderCodeTable + " oc").
		Join("ofr_offer_code c ON c.id = oc.offer_code_id").
		Where(squirrel.Eq{"oc.order_id": o.ID}).
		OrderBy("oc.sort_order").
		ToSql()
	if err != nil {
		return fmt.Errorf("build offer code query: %w", err)
	}

	var rows []orderCodeRow
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return fmt.Errorf("select order offer codes: %w", err)
	}
	for i := range rows {
		c := rows[i].OfferCode
		c.Offer = offer.RefByID(rows[i].OfferID)
		o.AddedOfferCodes = append(o.AddedOfferCodes, &c)
	}
	return nil
}

// Save writes the order under an optimistic version check and replaces its children.
// Version 0 inserts a new order.
func (r *OrderRepo) Save(ctx context.Context, o *order.Order) (*order.Order, error) {
	if err := o.Validate(ctx); err != nil {
		return nil, err
	}

	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)
		now := r.now().UTC()

		if err := r.writeHeader(ctx, q, o, now); err != nil {
			return err
		}

		// Parent deletes cascade to details, detail adjustments, qualifiers and group items.
		if err := postgres.ExecBatch(ctx, q,
			postgres.Builder().Delete(itemTable).Where(squirrel.Eq{"order_id": o.ID}),
			postgres.Builder().Delete(adjustmentTable).Where(squirrel.Eq{"order_id": o.ID}),
			postgres.Builder().Delete(fgTable).Where(squirrel.Eq{"order_id": o.ID}),
			postgres.Builder().Delete(orderCodeTable).Where(squirrel.Eq{"order_id": o.ID}),
		); err != nil {
			return fmt.Errorf("clear order children: %w", err)
		}

		for _, t := range childTables(o) {
			if _, err := postgres.CopyRows(ctx, q, t.table, t.columns, t.rows); err != nil {
				return err
			}
		}

		o.Version++
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "order saved", "order_id", o.ID, "version", o.Version)
	return o, nil
}

func (r *OrderRepo) writeHeader(ctx context.Context, q postgres.Querier, o *order.Order, now time.Time) error {
	data := postgres.StructToMap(o)
	delete(data, "id")
	delete(data, "version")
	data["updated_at"] = now

	var stmt squirrel.Sqlizer
	if o.Version == 0 {
		data["id"] = o.ID
		data["version"] = 1
		stmt = postgres.Builder().
			Insert(orderTable).
			SetMap(data).
			Suffix("ON CONFLICT (id) DO NOTHING")
	} else {
		stmt = postgres.Builder().
			Update(orderTable).
			SetMap(data).
			Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"id": o.ID, "version": o.Version})
	}

	sql, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build order write: %w", err)
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("write order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("order", o.ID.String())
	}
	return nil
}
