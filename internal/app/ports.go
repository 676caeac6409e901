package app

import (
	"context"

	"live-quiz-client/internal/clock"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/ledger"
)

// Judge is the remote authority: answers, penalties, lifelines, server time and
// session validation.
type Judge interface {
	ledger.AnswerJudge
	ledger.LifelineJudge
	clock.TimeSource
	Me(ctx context.Context, token string) (domain.Participant, error)
}

// QuestionRepository loads the ordered question set for a quiz (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context, quizID string) (domain.QuizContent, error)
}

// ProgressReader loads what is known about a participant's progress.
type ProgressReader interface {
	LoadProgress(ctx context.Context, quizID, participantID string) (domain.Progress, error)
}

// ProgressStore is the local crash-recovery store. It also remembers the session token.
type ProgressStore interface {
	ledger.ProgressWriter
	ProgressReader
	SessionToken(ctx context.Context, participantID string) (string, error)
	SaveSessionToken(ctx context.Context, participantID, token string) error
	ClearSessionToken(ctx context.Context, participantID string) error
}

// ControlSource reads the current control record.
type ControlSource interface {
	Control(ctx context.Context) (domain.ControlRecord, error)
}

// LeaderboardSource fetches an unranked leaderboard snapshot.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
}
