package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-client/internal/domain"
)

const leaderboardLimit = 100

// LeaderboardSource reads the quiz_leaderboard snapshot.
type LeaderboardSource struct {
	pool *pgxpool.Pool
}

func NewLeaderboardSource(pool *pgxpool.Pool) *LeaderboardSource {
	return &LeaderboardSource{pool: pool}
}

func (s *LeaderboardSource) Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT user_id, username, score, lifelines_used, avg_correct_ms
FROM quiz_leaderboard
WHERE quiz_id = $1
ORDER BY score DESC, lifelines_used ASC, avg_correct_ms ASC NULLS LAST, user_id ASC
LIMIT $2`, quizID, leaderboardLimit)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var (
			e       domain.LeaderboardEntry
			latency *int64
		)
		if err := rows.Scan(&e.ParticipantID, &e.DisplayName, &e.Score, &e.LifelinesUsedCount, &latency); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		if latency != nil {
			e.MeanCorrectAnswerLatencyMs = *latency
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return out, nil
}
