package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossarb/engine/internal/domain"
)

// MappingStore implements domain.MappingStore using PostgreSQL.
type MappingStore struct {
	pool *pgxpool.Pool
}

// NewMappingStore creates a new MappingStore backed by the given connection pool.
func NewMappingStore(pool *pgxpool.Pool) *MappingStore {
	return &MappingStore{pool: pool}
}

const mappingSelectCols = `id, question_a, question_b, confidence, method,
	outcomes, active, created_at, updated_at`

func scanMappingRow(row pgx.Row) (domain.EventMapping, error) {
	var m domain.EventMapping
	var method string
	var outcomes []byte

	err := row.Scan(
		&m.ID, &m.QuestionA, &m.QuestionB, &m.Confidence, &method,
		&outcomes, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.EventMapping{}, err
	}
	m.Method = domain.MatchMethod(method)
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.EventMapping{}, fmt.Errorf("decode outcomes for %s: %w", m.ID, err)
	}
	return m, nil
}

// Save upserts a mapping. When the mapping is active, any other active mapping
// for the same venue-A question is deactivated in the same transaction so the
// one-active-per-question invariant holds.
func (s *MappingStore) Save(ctx context.Context, m domain.EventMapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("postgres: save mapping: %w", err)
	}
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: encode outcomes: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save mapping: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if m.Active {
		_, err = tx.Exec(ctx, `
			UPDATE event_mappings
			SET active = FALSE, updated_at = NOW()
			WHERE question_a = $1 AND active AND id <> $2`,
			m.QuestionA, m.ID)
		if err != nil {
			return fmt.Errorf("postgres: deactivate prior mappings for %s: %w", m.QuestionA, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_mappings (
			id, question_a, question_b, confidence, method,
			outcomes, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			question_b = EXCLUDED.question_b,
			confidence = EXCLUDED.confidence,
			method     = EXCLUDED.method,
			outcomes   = EXCLUDED.outcomes,
			active     = EXCLUDED.active,
			updated_at = NOW()`,
		m.ID, m.QuestionA, m.QuestionB, m.Confidence, string(m.Method),
		outcomes, m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save mapping %s: %w", m.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save mapping %s: %w", m.ID, err)
	}
	return nil
}

// LoadActive returns all active mappings.
func (s *MappingStore) LoadActive(ctx context.Context) ([]domain.EventMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mappingSelectCols+` FROM event_mappings
		 WHERE active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load active mappings: %w", err)
	}
	defer rows.Close()

	var mappings []domain.EventMapping
	for rows.Next() {
		m, err := scanMappingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// GetByID retrieves a single mapping by its ID.
func (s *MappingStore) GetByID(ctx context.Context, id string) (domain.EventMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mappingSelectCols+` FROM event_mappings WHERE id = $1`, id)

	m, err := scanMappingRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EventMapping{}, domain.ErrNotFound
		}
		return domain.EventMapping{}, fmt.Errorf("postgres: get mapping %s: %w", id, err)
	}
	return m, nil
}

// Deactivate marks a mapping inactive.
func (s *MappingStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE event_mappings
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate mapping %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
