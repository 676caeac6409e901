package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-client/internal/domain"
)

// ControlSource reads the singleton quiz_control row.
type ControlSource struct {
	pool *pgxpool.Pool
}

func NewControlSource(pool *pgxpool.Pool) *ControlSource {
	return &ControlSource{pool: pool}
}

// Control returns the current control record; a missing row reads as status none.
func (s *ControlSource) Control(ctx context.Context) (domain.ControlRecord, error) {
	var (
		status    string
		startsAt  *time.Time
		quizID    *string
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT status, starts_at, active_quiz_id, updated_at FROM quiz_control WHERE id = 1`,
	).Scan(&status, &startsAt, &quizID, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ControlRecord{Status: domain.StatusNone}, nil
	}
	if err != nil {
		return domain.ControlRecord{}, fmt.Errorf("load quiz control: %w", err)
	}

	rec := domain.ControlRecord{
		Status:    domain.ParseStatus(status),
		StartsAt:  startsAt,
		UpdatedAt: updatedAt,
	}
	if quizID != nil {
		rec.ActiveQuizID = *quizID
	}
	return rec, nil
}

// SetControl replaces the control record. Used by the demo seeder and tests.
func (s *ControlSource) SetControl(ctx context.Context, rec domain.ControlRecord) error {
	var quizID *string
	if rec.ActiveQuizID != "" {
		quizID = &rec.ActiveQuizID
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO quiz_control (id, status, starts_at, active_quiz_id, updated_at)
VALUES (1, $1, $2, $3, now())
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status, starts_at = EXCLUDED.starts_at,
    active_quiz_id = EXCLUDED.active_quiz_id, updated_at = now()`,
		string(rec.Status), rec.StartsAt, quizID)
	if err != nil {
		return fmt.Errorf("save quiz control: %w", err)
	}
	return nil
}
