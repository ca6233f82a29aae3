package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "offerengine/internal/core/context"
	"offerengine/internal/core/id"
	"offerengine/internal/domain/offer"
	"offerengine/internal/domain/order"
)

// CompressionAlgo specifies how a snapshot is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 4 * 1024

// PricingRun is one audited pricing run with the order state it produced.
type PricingRun struct {
	ID                 id.ID           `db:"id"`
	OrderID            id.ID           `db:"order_id"`
	OrderVersion       int             `db:"order_version"`
	Kind               string          `db:"kind"`
	OfferIDs           []id.ID         `db:"offer_ids"`
	UserID             string          `db:"user_id"`
	Snapshot           json.RawMessage `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

// PricingAudit stores pricing run snapshots in ofr_pricing_run. Large
// snapshots are zstd compressed.
type PricingAudit struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewPricingAudit creates a PricingAudit.
func NewPricingAudit(txManager *TxManager) (*PricingAudit, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &PricingAudit{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// NewPricingRun builds the audit row for o. Offers are the candidates the run considered.
func (a *PricingAudit) NewPricingRun(ctx context.Context, o *order.Order, kind string, offers []*offer.Offer) (*PricingRun, error) {
	snapshot, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal order snapshot: %w", err)
	}
	run := &PricingRun{
		ID:              id.New(),
		OrderID:         o.ID,
		OrderVersion:    o.Version,
		Kind:            kind,
		OfferIDs:        make([]id.ID, 0, len(offers)),
		UserID:          appctx.GetUserID(ctx),
		CompressionAlgo: CompressionNone,
		Snapshot:        snapshot,
		CreatedAt:       time.Now().UTC(),
	}
	for _, off := range offers {
		run.OfferIDs = append(run.OfferIDs, off.ID)
	}
	if len(snapshot) > a.compressThreshold {
		run.SnapshotCompressed = a.encoder.EncodeAll(snapshot, nil)
		run.Snapshot = nil
		run.CompressionAlgo = CompressionZstd
	}
	return run, nil
}

// RecordPricingRun stores the run in the transaction of the order save.
func (a *PricingAudit) RecordPricingRun(ctx context.Context, o *order.Order, kind string, offers []*offer.Offer) error {
	run, err := a.NewPricingRun(ctx, o, kind, offers)
	if err != nil {
		return err
	}

	q := Builder().Insert("ofr_pricing_run").SetMap(StructToMap(run))
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := a.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert pricing run: %w", err)
	}
	return nil
}

// History returns the latest runs of an order, newest first, with snapshots decompressed.
func (a *PricingAudit) History(ctx context.Context, orderID id.ID, limit int) ([]*PricingRun, error) {
	q := Builder().
		Select(ExtractDBColumns[PricingRun]()...).
		From("ofr_pricing_run").
		Where("order_id = ?", orderID).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := a.txManager.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query pricing runs: %w", err)
	}
	defer rows.Close()

	var runs []*PricingRun
	for rows.Next() {
		var r PricingRun
		if err := rows.Scan(&r.ID, &r.OrderID, &r.OrderVersion, &r.Kind, &r.OfferIDs, &r.UserID,
			&r.Snapshot, &r.SnapshotCompressed, &r.CompressionAlgo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pricing run: %w", err)
		}
		if err := a.decompress(&r); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func (a *PricingAudit) decompress(r *PricingRun) error {
	if r.CompressionAlgo != CompressionZstd || len(r.SnapshotCompressed) == 0 {
		return nil
	}
	raw, err := a.decoder.DecodeAll(r.SnapshotCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	r.Snapshot = raw
	r.SnapshotCompressed = nil
	return nil
}
