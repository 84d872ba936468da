package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/platform/db"
)

// PGStore persists counters in the sequence_counters table. Each increment
// runs in its own transaction holding an exclusive lock on the counter row,
// so concurrent creations for the same (kind, year) serialise on that row
// only. Lock waits are resolved by the transaction mechanism, never
// surfaced as business errors.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed counter store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// NextSequence increments and returns the counter for (kind, year).
func (s *PGStore) NextSequence(ctx context.Context, kind Kind, year int) (int64, error) {
	var next int64
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO sequence_counters (entity_kind, year, last_sequence)
VALUES ($1, $2, 0) ON CONFLICT (entity_kind, year) DO NOTHING`, string(kind), year); err != nil {
			return err
		}
		var last int64
		if err := tx.QueryRow(ctx, `SELECT last_sequence FROM sequence_counters
WHERE entity_kind = $1 AND year = $2 FOR UPDATE`, string(kind), year).Scan(&last); err != nil {
			return err
		}
		next = last + 1
		_, err := tx.Exec(ctx, `UPDATE sequence_counters SET last_sequence = $3
WHERE entity_kind = $1 AND year = $2`, string(kind), year, next)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sequence: next %s/%d: %w", kind, year, err)
	}
	return next, nil
}
