package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-client/internal/domain"
)

// ProgressReader restores a participant's judged answers and score from the
// judge's tables. Rows without a choice are timeouts.
type ProgressReader struct {
	pool *pgxpool.Pool
}

func NewProgressReader(pool *pgxpool.Pool) *ProgressReader {
	return &ProgressReader{pool: pool}
}

func (r *ProgressReader) LoadProgress(ctx context.Context, quizID, participantID string) (domain.Progress, error) {
	rows, err := r.pool.Query(ctx, `
SELECT question_id, choice_id, is_correct, answered_at
FROM quiz_answers
WHERE quiz_id = $1 AND user_id = $2
ORDER BY answered_at ASC`, quizID, participantID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	var out domain.Progress
	for rows.Next() {
		var (
			rec      domain.AnswerRecord
			choiceID *string
			correct  bool
		)
		if err := rows.Scan(&rec.QuestionID, &choiceID, &correct, &rec.SubmittedAt); err != nil {
			return domain.Progress{}, fmt.Errorf("scan answer: %w", err)
		}
		switch {
		case choiceID == nil:
			rec.Outcome = domain.OutcomeTimeout
		case correct:
			rec.ChosenChoiceID = *choiceID
			rec.Outcome = domain.OutcomeCorrect
		default:
			rec.ChosenChoiceID = *choiceID
			rec.Outcome = domain.OutcomeWrong
		}
		rec.State = domain.TxConfirmed
		out.Answers = append(out.Answers, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.Progress{}, fmt.Errorf("iterate answers: %w", err)
	}

	var score int
	err = r.pool.QueryRow(ctx, `SELECT score FROM quiz_scores WHERE quiz_id = $1 AND user_id = $2`, quizID, participantID).Scan(&score)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return domain.Progress{}, fmt.Errorf("load score: %w", err)
	default:
		out.Score = &score
	}
	return out, nil
}
