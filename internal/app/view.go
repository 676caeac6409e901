package app

import (
	"time"

	"live-quiz-client/internal/clock"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/reveal"
)

// Mode is what the participant's screen shows.
type Mode string

const (
	ModeNone            Mode = "none"
	ModeScheduled       Mode = "scheduled"
	ModeCountdown       Mode = "countdown"
	ModeLive            Mode = "live"
	ModeFinished        Mode = "finished"
	ModeUnauthenticated Mode = "unauthenticated"
)

// ChoiceView is a choice as rendered; hidden choices were eliminated by 50/50.
type ChoiceView struct {
	domain.Choice
	Hidden bool `json:"hidden,omitempty"`
}

// QuestionView is the displayed question with the participant's state on it.
type QuestionView struct {
	ID      string         `json:"id"`
	Index   int            `json:"index"`
	Total   int            `json:"total"`
	Text    string         `json:"text"`
	Level   string         `json:"level,omitempty"`
	Points  int            `json:"points"`
	Choices []ChoiceView   `json:"choices"`
	Hint    string         `json:"hint,omitempty"`
	Picked  string         `json:"picked,omitempty"`
	Locked  bool           `json:"locked"`
	Outcome domain.Outcome `json:"outcome,omitempty"`
}

// View is an immutable snapshot pushed to subscribers.
type View struct {
	Mode              Mode                         `json:"mode"`
	QuizID            string                       `json:"quizId,omitempty"`
	ParticipantID     string                       `json:"participantId,omitempty"`
	DisplayName       string                       `json:"displayName,omitempty"`
	StartsAt          *time.Time                   `json:"startsAt,omitempty"`
	SecondsUntilStart int                          `json:"secondsUntilStart,omitempty"`
	Countdown         int                          `json:"countdown,omitempty"`
	Question          *QuestionView                `json:"question,omitempty"`
	Remaining         int                          `json:"remaining"`
	Phase             reveal.Phase                 `json:"phase,omitempty"`
	Open              bool                         `json:"open"`
	Score             int                          `json:"score"`
	Lifelines         map[domain.LifelineKind]bool `json:"lifelines,omitempty"`
	LastReveal        *reveal.Event                `json:"lastReveal,omitempty"`
	Synced            bool                         `json:"synced"`
	ServerOffsetMs    int64                        `json:"serverOffsetMs"`
	Notice            string                       `json:"notice,omitempty"`
}

// modeFor derives the screen mode from the control record at synchronized time
// now. A scheduled quiz whose start has passed is live.
func modeFor(ctrl domain.ControlRecord, now time.Time, window time.Duration) (Mode, int, int) {
	if ctrl.ActiveQuizID == "" {
		return ModeNone, 0, 0
	}
	switch ctrl.Status {
	case domain.StatusFinished:
		return ModeFinished, 0, 0
	case domain.StatusLive, domain.StatusScheduled:
		if ctrl.StartsAt == nil {
			if ctrl.Status == domain.StatusLive {
				return ModeLive, 0, 0
			}
			return ModeNone, 0, 0
		}
		diff := ctrl.StartsAt.Sub(now)
		if diff <= 0 {
			return ModeLive, 0, 0
		}
		if secs, ok := clock.PreCountdown(now, *ctrl.StartsAt, window); ok {
			return ModeCountdown, secs, secs
		}
		return ModeScheduled, int((diff + time.Second - 1) / time.Second), 0
	default:
		return ModeNone, 0, 0
	}
}
