package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog"
)

// PostgresStore keeps vaults as JSONB rows of the apy_vaults table.
type PostgresStore struct {
	db      *sql.DB
	now     func() time.Time
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewPostgresStore wraps an open connection pool. EnsureSchema must have run.
func NewPostgresStore(db *sql.DB, m *metrics.Collector) *PostgresStore {
	return &PostgresStore{
		db:      db,
		now:     time.Now,
		metrics: m,
		logger:  logger.GetForComponent("postgres_store"),
	}
}

func (s *PostgresStore) BatchGet(ctx context.Context, keys []string) (map[string]types.CachedVault, error) {
	return batchGet(ctx, keys, s.getChunk)
}

func (s *PostgresStore) getChunk(ctx context.Context, keys []string) (map[string]types.CachedVault, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, payload FROM apy_vaults WHERE key = ANY($1);`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to query vaults: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.CachedVault, len(keys))
	for rows.Next() {
		var (
			key     string
			payload []byte
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan vault row: %w", err)
		}
		var v types.CachedVault
		if err := json.Unmarshal(payload, &v); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping undecodable vault payload")
			continue
		}
		out[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vault rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) BatchPut(ctx context.Context, vaults []types.CachedVault) (int, error) {
	return batchPut(ctx, s.logger, s.metrics, vaults, s.putChunk)
}

// putChunk upserts one chunk in a single transaction.
func (s *PostgresStore) putChunk(ctx context.Context, vaults []types.CachedVault) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO apy_vaults (key, payload, updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated = EXCLUDED.updated;`

	for _, v := range vaults {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal vault %s: %w", v.Address, err)
		}
		if _, err := tx.ExecContext(ctx, query, v.Key(), payload, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to upsert vault %s: %w", v.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vault chunk: %w", err)
	}
	return nil
}

func (s *PostgresStore) Scan(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM apy_vaults ORDER BY key;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan vault key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM apy_vaults WHERE key = ANY($1);`, pq.Array(normalizeKeys(keys)))
	if err != nil {
		return fmt.Errorf("failed to delete vaults: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		s.logger.Info().Int64("deleted", n).Msg("Deleted stale vaults")
	}
	return nil
}

// NextCycle increments the persistent cycle counter and returns the new value.
func (s *PostgresStore) NextCycle(ctx context.Context) (int64, error) {
	updateQuery := `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`

	var newCycle int64
	if err := s.db.QueryRowContext(ctx, updateQuery).Scan(&newCycle); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}
	s.logger.Debug().Int64("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}
