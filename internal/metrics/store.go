package metrics

import (
	"context"
	"fmt"

	"contextagent/internal/database"
)

// Store persists extraction samples and serves aggregate queries.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// SaveBatch inserts a batch of samples in a single transaction.
func (s *Store) SaveBatch(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO extraction_samples (sample_id, strategy, application, success, duration_ms, score, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx,
			sample.ID,
			sample.Strategy,
			sample.Application,
			sample.Success,
			sample.DurationMS,
			sample.Score,
			sample.RecordedAt,
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Summarize returns aggregate statistics over all recorded samples.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		ByStrategy: make(map[string]int),
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(success), 0),
		       COALESCE(AVG(CASE WHEN success = 1 THEN score END), 0)
		FROM extraction_samples
	`)
	if err := row.Scan(&summary.TotalAttempts, &summary.Successes, &summary.AverageScore); err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	if summary.TotalAttempts > 0 {
		summary.SuccessRate = float64(summary.Successes) / float64(summary.TotalAttempts)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, COUNT(*)
		FROM extraction_samples
		WHERE success = 1
		GROUP BY strategy
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			return nil, fmt.Errorf("failed to scan strategy row: %w", err)
		}
		summary.ByStrategy[strategy] = count
	}
	return summary, rows.Err()
}
