package postgres

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/domain"
	"advisorcrm/internal/metadata"
)

// Compile-time check that Engine implements domain.Repository interface.
var _ domain.Repository = (*Engine)(nil)

// Queriers hands out the querier bound to ctx. *TxManager implements it.
type Queriers interface {
	GetQuerier(ctx context.Context) Querier
}

// EngineConfig holds dependencies for NewEngine.
type EngineConfig struct {
	Registry *metadata.Registry
	DB       Queriers
	Codec    *domain.Codec

	// Rows maps class names to row structs whose db tags override the
	// snake_case column names.
	Rows map[string]any
}

// Engine is the PostgreSQL persistence engine. Statements are shaped from
// class metadata; the engine never runs hooks.
type Engine struct {
	registry *metadata.Registry
	db       Queriers
	codec    *domain.Codec
	columns  columnMap
}

// NewEngine creates an engine over a frozen registry.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil || !cfg.Registry.Frozen() {
		return nil, apperror.NewProgramming("postgres engine needs a frozen registry")
	}
	if cfg.DB == nil {
		return nil, apperror.NewProgramming("postgres engine needs a querier source")
	}
	codec := cfg.Codec
	if codec == nil {
		codec = domain.NewCodec(nil)
	}

	columns := make(columnMap, len(cfg.Rows))
	for class, row := range cfg.Rows {
		if _, ok := cfg.Registry.Get(class); !ok {
			return nil, apperror.NewProgramming("column mapping for unknown class %q", class)
		}
		columns[class] = ColumnsOf(row)
	}

	return &Engine{
		registry: cfg.Registry,
		db:       cfg.DB,
		codec:    codec,
		columns:  columns,
	}, nil
}

func (e *Engine) class(name string) (*metadata.ClassMetadata, error) {
	meta, ok := e.registry.Get(name)
	if !ok {
		return nil, apperror.NewProgramming("unknown class %q", name)
	}
	return meta, nil
}

// Load implements domain.Repository.
func (e *Engine) Load(ctx context.Context, class string, objectID id.ID, include ...metadata.Include) (*entity.Instance, []string, error) {
	meta, err := e.class(class)
	if err != nil {
		return nil, nil, err
	}
	filter := &metadata.Filter{
		Class:   class,
		Items:   []metadata.Item{{Field: "id", Operator: metadata.Equal, Value: objectID}},
		Include: include,
		Limit:   1,
	}
	items, fetched, err := e.fetch(ctx, meta, filter)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, apperror.NewNotFound(class, objectID.String())
	}
	return items[0], fetched, nil
}

// Query implements domain.Repository.
func (e *Engine) Query(ctx context.Context, filter *metadata.Filter) ([]*entity.Instance, []string, error) {
	meta, err := e.class(filter.Class)
	if err != nil {
		return nil, nil, err
	}
	f := filter.Clone()
	if err := e.codec.SealFilter(meta, f); err != nil {
		return nil, nil, err
	}
	return e.fetch(ctx, meta, f)
}

// fetch reads instances of meta and hydrates the requested includes.
func (e *Engine) fetch(ctx context.Context, meta *metadata.ClassMetadata, filter *metadata.Filter) ([]*entity.Instance, []string, error) {
	rows, props, err := e.selectRows(ctx, meta, filter)
	if err != nil {
		return nil, nil, err
	}
	items, err := hydrateAll(meta, rows)
	if err != nil {
		return nil, nil, err
	}

	fetched := props
	for _, inc := range filter.Include {
		if err := e.preload(ctx, meta, items, inc); err != nil {
			return nil, nil, err
		}
		fetched = append(fetched, inc.Property)
	}
	return items, fetched, nil
}

// selectRows runs the SELECT for filter and returns decrypted rows keyed by property.
func (e *Engine) selectRows(ctx context.Context, meta *metadata.ClassMetadata, filter *metadata.Filter) ([]map[string]any, []string, error) {
	q, props, err := e.buildSelect(meta, filter)
	if err != nil {
		return nil, nil, err
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build query: %w", err)
	}

	var rows []map[string]any
	if err := pgxscan.Select(ctx, e.db.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, nil, fmt.Errorf("select %s: %w", meta.Table(), err)
	}
	for _, row := range rows {
		normalizeRow(row)
		if err := e.codec.Open(meta, row); err != nil {
			return nil, nil, err
		}
	}
	return rows, props, nil
}

func hydrateAll(meta *metadata.ClassMetadata, rows []map[string]any) ([]*entity.Instance, error) {
	out := make([]*entity.Instance, 0, len(rows))
	for _, row := range rows {
		inst, err := entity.Hydrate(meta, maps.Clone(row))
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// normalizeRow converts pgx's generic scan types into the values setters use.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		row[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return id.ID(t)
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		dv, err := t.Value()
		if err != nil {
			return v
		}
		s, ok := dv.(string)
		if !ok {
			return v
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return v
		}
		return d
	case time.Time:
		return t.UTC()
	case int32:
		return int(t)
	default:
		return v
	}
}

// mapPgError converts constraint violations into application errors.
func mapPgError(class string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return apperror.NewDuplicate(class, pgErr.ConstraintName, "").WithCause(err)
	case "23503":
		return apperror.NewValidation(class+": referenced row is missing or still in use").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case "23502":
		return apperror.NewValidation(class+": required column is null").
			WithDetail("column", pgErr.ColumnName).
			WithCause(err)
	}
	return err
}
