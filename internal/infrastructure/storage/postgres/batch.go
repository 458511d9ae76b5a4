package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// BatchError reports the query of a batch that failed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch query %d failed: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ExecuteBatch executes multiple queries in a single round-trip and returns
// their command tags in order.
func ExecuteBatch(ctx context.Context, q Querier, queries []BatchQuery) ([]pgconn.CommandTag, error) {
	batch := &pgx.Batch{}
	for _, query := range queries {
		batch.Queue(query.SQL, query.Args...)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	tags := make([]pgconn.CommandTag, 0, len(queries))
	for i := range queries {
		tag, err := results.Exec()
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// CopyFromSlice performs bulk insert using the PostgreSQL COPY protocol.
// Significantly faster than INSERT for large row sets.
func CopyFromSlice(ctx context.Context, q Querier, table string, columns []string, rows [][]any) (int64, error) {
	n, err := q.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}
