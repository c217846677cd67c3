package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossarb/engine/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Legs are
// stored as JSONB since they are written once and only read back whole.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given connection pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, opportunity_id, mapping_id, outcome,
	buy_leg, sell_leg, expected_edge, realized_pnl, started_at, completed_at`

func scanExecutionRow(row pgx.Row) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var outcome string
	var buyLeg, sellLeg []byte

	err := row.Scan(
		&rec.ID, &rec.OpportunityID, &rec.MappingID, &outcome,
		&buyLeg, &sellLeg, &rec.ExpectedEdge, &rec.RealizedPnL,
		&rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.Outcome = domain.ExecOutcome(outcome)
	if err := json.Unmarshal(buyLeg, &rec.BuyLeg); err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("decode buy leg for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(sellLeg, &rec.SellLeg); err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("decode sell leg for %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Create inserts a new execution record.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	buyLeg, err := json.Marshal(rec.BuyLeg)
	if err != nil {
		return fmt.Errorf("postgres: encode buy leg: %w", err)
	}
	sellLeg, err := json.Marshal(rec.SellLeg)
	if err != nil {
		return fmt.Errorf("postgres: encode sell leg: %w", err)
	}

	const query = `
		INSERT INTO executions (
			id, opportunity_id, mapping_id, outcome,
			buy_leg, sell_leg, expected_edge, realized_pnl,
			started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.OpportunityID, rec.MappingID, string(rec.Outcome),
		buyLeg, sellLeg, rec.ExpectedEdge, rec.RealizedPnL,
		rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create execution %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the most recent executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+` FROM executions
		 ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	defer rows.Close()
	return scanExecutionRows(rows)
}

// ListBefore returns all executions started before the cutoff, oldest first.
// Used by the archiver to page out history.
func (s *ExecutionStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+` FROM executions
		 WHERE started_at < $1 ORDER BY started_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanExecutionRows(rows)
}

// DeleteBefore removes executions started before the cutoff and reports how
// many rows were deleted.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM executions WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanExecutionRows(rows pgx.Rows) ([]domain.ExecutionRecord, error) {
	var records []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecutionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
