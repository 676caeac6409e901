package domain

import (
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of the quiz as published by the session controller.
type Status string

const (
	StatusNone      Status = "none"
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusFinished  Status = "finished"
)

// ParseStatus maps a raw status string onto a known Status, defaulting to none.
func ParseStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusScheduled:
		return StatusScheduled
	case StatusLive:
		return StatusLive
	case StatusFinished:
		return StatusFinished
	default:
		return StatusNone
	}
}

// ControlRecord is the single mutable record owned by the session controller.
type ControlRecord struct {
	Status       Status     `json:"status"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	ActiveQuizID string     `json:"active_quiz_id,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty"`
}

// QuizSession is the read-only view of a quiz run the core progresses through.
// AnchorTime is meaningful only while Status is scheduled or live.
type QuizSession struct {
	QuizID                  string
	Status                  Status
	AnchorTime              *time.Time
	QuestionDurationSeconds int
	QuestionCount           int
}

// Choice is one selectable answer. Correctness is never shipped to the client.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Level groups questions and fixes their presentation order.
type Level struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	OrderIndex *int   `json:"orderIndex,omitempty"`
}

// Question is immutable once the session is live.
type Question struct {
	ID         string    `json:"id"`
	OrderIndex int       `json:"orderIndex"`
	Text       string    `json:"text"`
	Hint       string    `json:"hint,omitempty"`
	Level      Level     `json:"level"`
	Points     int       `json:"points"` // defaults to 1 if zero
	CreatedAt  time.Time `json:"createdAt"`
	Choices    []Choice  `json:"choices"`
}

// PointsValue returns the question's worth for the local score fallback.
func (q Question) PointsValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// QuizContent is the question set plus per-question timing for one quiz.
type QuizContent struct {
	QuizID                  string     `json:"quizId"`
	QuestionDurationSeconds int        `json:"questionDurationSeconds"`
	Questions               []Question `json:"questions"`
}

const unorderedLevel = 9999

// OrderQuestions sorts questions by level order then creation time, sorts each
// question's choices by label, and assigns OrderIndex.
func OrderQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := levelOrder(out[i].Level), levelOrder(out[j].Level)
		if oi != oj {
			return oi < oj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	for i := range out {
		choices := make([]Choice, len(out[i].Choices))
		copy(choices, out[i].Choices)
		sort.SliceStable(choices, func(a, b int) bool {
			return choices[a].Label < choices[b].Label
		})
		out[i].Choices = choices
		out[i].OrderIndex = i
	}
	return out
}

func levelOrder(l Level) int {
	if l.OrderIndex == nil {
		return unorderedLevel
	}
	return *l.OrderIndex
}

// Outcome is the resolved result of one question for one participant.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeCorrect Outcome = "correct"
	OutcomeWrong   Outcome = "wrong"
	OutcomeTimeout Outcome = "timeout"
)

// TxState tracks the two-phase local transaction behind an optimistic mutation.
type TxState string

const (
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxRejected  TxState = "rejected"
)

// AnswerRecord is one per (participant, question). Outcome never changes once
// it has left pending.
type AnswerRecord struct {
	QuestionID     string    `json:"questionId"`
	ChosenChoiceID string    `json:"chosenChoiceId,omitempty"`
	Outcome        Outcome   `json:"outcome"`
	State          TxState   `json:"state"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// Answered reports whether the record carries a participant's pick.
func (r AnswerRecord) Answered() bool {
	return r.ChosenChoiceID != ""
}

// LifelineKind names one of the two one-shot aids.
type LifelineKind string

const (
	LifelineHint       LifelineKind = "hint"
	LifelineFiftyFifty LifelineKind = "fiftyFifty"
)

// LifelineUsage is at most one per (participant, session, kind).
type LifelineUsage struct {
	Kind       LifelineKind `json:"kind"`
	QuestionID string       `json:"questionId"`
	UsedAt     time.Time    `json:"usedAt"`
}

// LeaderboardEntry is a read-only snapshot row. A non-positive latency means
// the participant has no correct answers to average.
type LeaderboardEntry struct {
	ParticipantID              string `json:"participantId"`
	DisplayName                string `json:"displayName"`
	Score                      int    `json:"score"`
	LifelinesUsedCount         int    `json:"lifelinesUsed"`
	MeanCorrectAnswerLatencyMs int64  `json:"meanCorrectAnswerLatencyMs"`
}

// RankedEntry is a leaderboard row with its 1-based rank.
type RankedEntry struct {
	Rank int `json:"rank"`
	LeaderboardEntry
}

// Standings is the ordered scoreboard plus whether the tie-break explanation applies.
type Standings struct {
	QuizID       string        `json:"quizId"`
	Entries      []RankedEntry `json:"entries"`
	ShowTieBreak bool          `json:"showTieBreak"`
}

// Progress is what a crash-recovery store remembers for one participant in one quiz.
type Progress struct {
	Answers   []AnswerRecord  `json:"answers"`
	Lifelines []LifelineUsage `json:"lifelines"`
	Score     *int            `json:"score,omitempty"`
}

// SessionContext identifies the participant to the remote judge. It is passed
// into core components at construction.
type SessionContext struct {
	Token         string
	ParticipantID string
	DisplayName   string
}
