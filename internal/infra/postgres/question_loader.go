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

const defaultSecondsPerQuestion = 3

// QuestionLoader reads questions, public choices, levels and timing for a quiz.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, quizID string) (domain.QuizContent, error) {
	var exists bool
	if err := l.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM quizzes WHERE id=$1)`, quizID).Scan(&exists); err != nil {
		return domain.QuizContent{}, fmt.Errorf("load quiz: %w", err)
	}
	if !exists {
		return domain.QuizContent{}, domain.ErrQuizNotFound
	}

	seconds, err := l.secondsPerQuestion(ctx, quizID)
	if err != nil {
		return domain.QuizContent{}, err
	}
	questions, err := l.questions(ctx, quizID)
	if err != nil {
		return domain.QuizContent{}, err
	}
	if err := l.attachChoices(ctx, quizID, questions); err != nil {
		return domain.QuizContent{}, err
	}

	list := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		list = append(list, *q)
	}
	return domain.QuizContent{
		QuizID:                  quizID,
		QuestionDurationSeconds: seconds,
		Questions:               domain.OrderQuestions(list),
	}, nil
}

func (l *QuestionLoader) secondsPerQuestion(ctx context.Context, quizID string) (int, error) {
	var seconds int
	err := l.pool.QueryRow(ctx, `SELECT seconds_per_question FROM quiz_settings WHERE quiz_id=$1`, quizID).Scan(&seconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return defaultSecondsPerQuestion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load quiz settings: %w", err)
	}
	if seconds < 1 {
		seconds = 1
	}
	return seconds, nil
}

func (l *QuestionLoader) questions(ctx context.Context, quizID string) (map[string]*domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
SELECT q.id, q.question_text, COALESCE(q.hint, ''), q.created_at,
       l.id, COALESCE(l.name, ''), l.points, l.order_index
FROM questions q
LEFT JOIN levels l ON l.id = q.level_id
WHERE q.quiz_id = $1`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Question)
	for rows.Next() {
		var (
			q          domain.Question
			createdAt  time.Time
			levelID    *int
			levelName  string
			points     *int
			orderIndex *int
		)
		if err := rows.Scan(&q.ID, &q.Text, &q.Hint, &createdAt, &levelID, &levelName, &points, &orderIndex); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.CreatedAt = createdAt
		q.Level = domain.Level{Name: levelName, OrderIndex: orderIndex}
		if levelID != nil {
			q.Level.ID = *levelID
		}
		q.Points = pointsForLevel(q.Level.ID, points)
		out[q.ID] = &q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (l *QuestionLoader) attachChoices(ctx context.Context, quizID string, questions map[string]*domain.Question) error {
	rows, err := l.pool.Query(ctx, `
SELECT c.id, c.question_id, c.label, c.choice_text
FROM choices_public c
JOIN questions q ON q.id = c.question_id
WHERE q.quiz_id = $1`, quizID)
	if err != nil {
		return fmt.Errorf("load choices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Choice
		var questionID string
		if err := rows.Scan(&c.ID, &questionID, &c.Label, &c.Text); err != nil {
			return fmt.Errorf("scan choice: %w", err)
		}
		if q, ok := questions[questionID]; ok {
			q.Choices = append(q.Choices, c)
		}
	}
	return rows.Err()
}

// pointsForLevel prefers the level's explicit points, then maps level 1/2/3 to
// the same number of points. Anything else is worth one point.
func pointsForLevel(levelID int, explicit *int) int {
	if explicit != nil && *explicit > 0 {
		return *explicit
	}
	switch levelID {
	case 1, 2, 3:
		return levelID
	default:
		return 1
	}
}
