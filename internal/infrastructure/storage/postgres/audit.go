package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/domain/crm"
	"advisorcrm/internal/metadata"
)

// AuditTable stores committed changes.
const AuditTable = "crm_audit"

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const (
	// DefaultCompressThreshold is the change-set size above which it is stored zstd-compressed.
	DefaultCompressThreshold = 10 * 1024

	// copyThreshold switches audit writes from INSERT to COPY.
	copyThreshold = 200
)

var auditColumns = []string{
	"id", "class", "object_id", "event", "actor",
	"changes", "changes_compressed", "compression_algo", "created_at",
}

// AuditRecord is one stored audit row.
type AuditRecord struct {
	ID                id.ID           `db:"id" json:"id"`
	Class             string          `db:"class" json:"class"`
	ObjectID          id.ID           `db:"object_id" json:"objectId"`
	Event             string          `db:"event" json:"event"`
	Actor             *string         `db:"actor" json:"actor,omitempty"`
	Changes           json.RawMessage `db:"changes" json:"changes,omitempty"`
	ChangesCompressed []byte          `db:"changes_compressed" json:"-"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
}

// AuditLog writes crm.AuditEntry effects to AuditTable.
type AuditLog struct {
	db                Queriers
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditLog creates an audit log. threshold <= 0 selects DefaultCompressThreshold.
func NewAuditLog(db Queriers, threshold int) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	return &AuditLog{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: threshold,
	}, nil
}

// record converts an entry into a row, compressing large change sets.
func (a *AuditLog) record(e crm.AuditEntry) (AuditRecord, error) {
	rec := AuditRecord{
		ID:              id.New(),
		Class:           e.Class,
		ObjectID:        e.ObjectID,
		Event:           string(e.Event),
		CompressionAlgo: CompressionNone,
		CreatedAt:       e.At,
	}
	if e.Actor != "" {
		actor := e.Actor
		rec.Actor = &actor
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(e.Changes) > 0 {
		changes, err := json.Marshal(e.Changes)
		if err != nil {
			return AuditRecord{}, fmt.Errorf("marshal changes: %w", err)
		}
		if len(changes) > a.compressThreshold {
			rec.ChangesCompressed = a.encoder.EncodeAll(changes, nil)
			rec.CompressionAlgo = CompressionZstd
		} else {
			rec.Changes = changes
		}
	}
	return rec, nil
}

func (r AuditRecord) values() []any {
	var changes any
	if r.Changes != nil {
		changes = r.Changes
	}
	return []any{
		r.ID, r.Class, r.ObjectID, r.Event, r.Actor,
		changes, r.ChangesCompressed, r.CompressionAlgo, r.CreatedAt,
	}
}

// Execute is the lifecycle executor for crm.EffectAudit: every entry of a
// commit lands in one statement.
func (a *AuditLog) Execute(ctx context.Context, ops []metadata.DeferredOp) error {
	rows := make([][]any, 0, len(ops))
	for _, op := range ops {
		entry, ok := op.(crm.AuditEntry)
		if !ok {
			return apperror.NewProgramming("audit executor got %T", op)
		}
		rec, err := a.record(entry)
		if err != nil {
			return err
		}
		rows = append(rows, rec.values())
	}
	if len(rows) == 0 {
		return nil
	}

	querier := a.db.GetQuerier(ctx)
	if len(rows) >= copyThreshold {
		_, err := CopyFromSlice(ctx, querier, AuditTable, auditColumns, rows)
		return err
	}

	q := psql.Insert(AuditTable).Columns(auditColumns...)
	for _, row := range rows {
		q = q.Values(row...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// History returns the newest audit records of one object.
func (a *AuditLog) History(ctx context.Context, class string, objectID id.ID, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	sql, args, err := psql.Select(auditColumns...).
		From(AuditTable).
		Where("class = ? AND object_id = ?", class, objectID).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var records []AuditRecord
	if err := pgxscan.Select(ctx, a.db.GetQuerier(ctx), &records, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for i := range records {
		if err := a.inflate(&records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// inflate restores compressed change sets.
func (a *AuditLog) inflate(r *AuditRecord) error {
	if r.CompressionAlgo != CompressionZstd || len(r.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := a.decoder.DecodeAll(r.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	r.Changes = raw
	r.ChangesCompressed = nil
	return nil
}
