package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-client/internal/domain"
)

// AnswerJudge is the remote authority for answers and timeout penalties.
type AnswerJudge interface {
	SubmitAnswer(ctx context.Context, req domain.AnswerRequest) (domain.AnswerVerdict, error)
	ApplyTimeout(ctx context.Context, req domain.TimeoutRequest) (domain.TimeoutVerdict, error)
}

// Gate reports the question currently open for input, if any.
type Gate interface {
	Active() (questionID string, open bool)
}

// GateFunc adapts a function to Gate.
type GateFunc func() (string, bool)

func (f GateFunc) Active() (string, bool) { return f() }

// ProgressWriter persists confirmed local state for crash recovery. Failures
// are logged and never affect the in-memory ledger.
type ProgressWriter interface {
	SaveAnswer(ctx context.Context, quizID, participantID string, rec domain.AnswerRecord) error
	SaveLifeline(ctx context.Context, quizID, participantID string, usage domain.LifelineUsage) error
	SaveScore(ctx context.Context, quizID, participantID string, score int) error
}

// TimeoutResult describes one applyTimeoutPenalty call. Replay is true when the
// penalty had already been applied and only cached feedback is returned.
type TimeoutResult struct {
	Record  domain.AnswerRecord
	Penalty int
	Replay  bool
}

type entry struct {
	record domain.AnswerRecord
	// done is closed once the record leaves TxPending.
	done chan struct{}
}

// AnswerLedger guards per-question submissions for one participant in one quiz.
// Every question is locked by at most one successful submission or timeout.
type AnswerLedger struct {
	session domain.SessionContext
	quizID  string
	judge   AnswerJudge
	gate    Gate
	store   ProgressWriter
	clock   clockwork.Clock
	points  map[string]int

	mu       sync.Mutex
	entries  map[string]*entry
	timedOut map[string]struct{}
	remote   *int
}

func NewAnswerLedger(session domain.SessionContext, quizID string, questions []domain.Question, judge AnswerJudge, gate Gate, store ProgressWriter, clk clockwork.Clock) *AnswerLedger {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	points := make(map[string]int, len(questions))
	for _, q := range questions {
		points[q.ID] = q.PointsValue()
	}
	return &AnswerLedger{
		session:  session,
		quizID:   quizID,
		judge:    judge,
		gate:     gate,
		store:    store,
		clock:    clk,
		points:   points,
		entries:  make(map[string]*entry),
		timedOut: make(map[string]struct{}),
	}
}

// Restore seeds the ledger from persisted progress. Restored records are final.
// A record still pending its judge reply is restored as rejected.
func (l *AnswerLedger) Restore(progress domain.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range progress.Answers {
		if rec.Outcome == domain.OutcomePending {
			continue
		}
		switch rec.State {
		case "":
			rec.State = domain.TxConfirmed
		case domain.TxPending:
			rec.State = domain.TxRejected
		}
		l.entries[rec.QuestionID] = &entry{record: rec, done: closedChan()}
		if rec.Outcome == domain.OutcomeTimeout {
			l.timedOut[rec.QuestionID] = struct{}{}
		}
	}
	if progress.Score != nil {
		score := *progress.Score
		l.remote = &score
	}
}

// Submit locks the active question, records the pick, and asks the judge for
// the outcome. A failed call rolls the lock back so the participant may retry.
func (l *AnswerLedger) Submit(ctx context.Context, questionID, choiceID string) (domain.AnswerRecord, error) {
	if l.session.Token == "" {
		return domain.AnswerRecord{}, domain.ErrSessionExpired
	}

	l.mu.Lock()
	active, open := l.gate.Active()
	if !open || active != questionID {
		l.mu.Unlock()
		return domain.AnswerRecord{}, domain.ErrNotActive
	}
	if _, locked := l.entries[questionID]; locked {
		l.mu.Unlock()
		return domain.AnswerRecord{}, domain.ErrAlreadyLocked
	}
	e := &entry{
		record: domain.AnswerRecord{
			QuestionID:     questionID,
			ChosenChoiceID: choiceID,
			Outcome:        domain.OutcomePending,
			State:          domain.TxPending,
			SubmittedAt:    l.clock.Now(),
		},
		done: make(chan struct{}),
	}
	l.entries[questionID] = e
	l.mu.Unlock()

	verdict, err := l.judge.SubmitAnswer(ctx, domain.AnswerRequest{
		EventID:      uuid.NewString(),
		SessionToken: l.session.Token,
		QuizID:       l.quizID,
		QuestionID:   questionID,
		ChoiceID:     choiceID,
	})

	l.mu.Lock()
	if err != nil {
		delete(l.entries, questionID)
		rejected := e.record
		rejected.State = domain.TxRejected
		close(e.done)
		l.mu.Unlock()

		log.Warn().Err(err).
			Str("quiz_id", l.quizID).
			Str("question_id", questionID).
			Msg("answer submission rolled back")
		return rejected, fmt.Errorf("submit answer: %w", err)
	}

	if e.record.Outcome == domain.OutcomePending {
		if verdict.IsCorrect {
			e.record.Outcome = domain.OutcomeCorrect
		} else {
			e.record.Outcome = domain.OutcomeWrong
		}
		e.record.State = domain.TxConfirmed
		close(e.done)
	}
	if verdict.TotalScore != nil {
		l.setRemoteLocked(*verdict.TotalScore)
	}
	confirmed := e.record
	score := l.scoreLocked()
	l.mu.Unlock()

	l.persist(ctx, confirmed, score)
	return confirmed, nil
}

// ApplyTimeoutPenalty records a timeout for an unanswered question. Only the
// first call reaches the judge; later calls replay the cached record.
func (l *AnswerLedger) ApplyTimeoutPenalty(ctx context.Context, questionID string) (TimeoutResult, error) {
	l.mu.Lock()
	if _, applied := l.timedOut[questionID]; applied {
		rec := l.entries[questionID].record
		l.mu.Unlock()
		return TimeoutResult{Record: rec, Replay: true}, nil
	}
	if e, ok := l.entries[questionID]; ok {
		rec := e.record
		l.mu.Unlock()
		return TimeoutResult{Record: rec}, domain.ErrAlreadyAnswered
	}

	e := &entry{
		record: domain.AnswerRecord{
			QuestionID:  questionID,
			Outcome:     domain.OutcomeTimeout,
			State:       domain.TxPending,
			SubmittedAt: l.clock.Now(),
		},
		done: make(chan struct{}),
	}
	l.entries[questionID] = e
	l.timedOut[questionID] = struct{}{}
	flagged := e.record
	l.mu.Unlock()

	// The flag is persisted before the remote call so a restart replays instead of re-sending.
	l.saveAnswer(ctx, flagged)

	if l.session.Token == "" {
		l.finishTimeout(e, domain.TxRejected)
		return TimeoutResult{Record: l.recordOf(questionID)}, domain.ErrSessionExpired
	}

	verdict, err := l.judge.ApplyTimeout(ctx, domain.TimeoutRequest{
		EventID:      uuid.NewString(),
		SessionToken: l.session.Token,
		QuizID:       l.quizID,
		QuestionID:   questionID,
	})
	if err != nil {
		l.finishTimeout(e, domain.TxRejected)
		log.Warn().Err(err).
			Str("quiz_id", l.quizID).
			Str("question_id", questionID).
			Msg("timeout penalty not confirmed")
		return TimeoutResult{Record: l.recordOf(questionID)}, fmt.Errorf("apply timeout: %w", err)
	}

	l.mu.Lock()
	if verdict.TotalScore != nil {
		l.setRemoteLocked(*verdict.TotalScore)
	}
	score := l.scoreLocked()
	l.mu.Unlock()
	l.finishTimeout(e, domain.TxConfirmed)

	rec := l.recordOf(questionID)
	l.persist(ctx, rec, score)
	return TimeoutResult{Record: rec, Penalty: verdict.Penalty}, nil
}

func (l *AnswerLedger) finishTimeout(e *entry, state domain.TxState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.record.State == domain.TxPending {
		e.record.State = state
		close(e.done)
	}
}

// Picked reports whether the participant chose an answer for the question.
func (l *AnswerLedger) Picked(questionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[questionID]
	return ok && e.record.Answered()
}

// AwaitOutcome waits for a submitted answer's verdict until ctx ends. ok is
// false when no verdict arrived in time.
func (l *AnswerLedger) AwaitOutcome(ctx context.Context, questionID string) (domain.Outcome, bool) {
	l.mu.Lock()
	e, found := l.entries[questionID]
	l.mu.Unlock()
	if !found {
		return domain.OutcomePending, false
	}

	select {
	case <-e.done:
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.entries[questionID]; ok && current == e && e.record.Outcome != domain.OutcomePending {
		return e.record.Outcome, true
	}
	return domain.OutcomePending, false
}

// Locked reports whether the question no longer accepts a submission.
func (l *AnswerLedger) Locked(questionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[questionID]
	return ok
}

// Record returns the answer record for a question, if any.
func (l *AnswerLedger) Record(questionID string) (domain.AnswerRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[questionID]
	if !ok {
		return domain.AnswerRecord{}, false
	}
	return e.record, true
}

// Records returns a copy of every record currently held.
func (l *AnswerLedger) Records() []domain.AnswerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AnswerRecord, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.record)
	}
	return out
}

// Score is the judge's total when known, otherwise the sum of points for
// correct answers.
func (l *AnswerLedger) Score() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scoreLocked()
}

func (l *AnswerLedger) scoreLocked() int {
	if l.remote != nil {
		return *l.remote
	}
	total := 0
	for id, e := range l.entries {
		if e.record.Outcome == domain.OutcomeCorrect {
			total += l.points[id]
		}
	}
	return total
}

// setRemoteLocked records the judge's authoritative total.
func (l *AnswerLedger) setRemoteLocked(total int) {
	l.remote = &total
}

func (l *AnswerLedger) recordOf(questionID string) domain.AnswerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[questionID]; ok {
		return e.record
	}
	return domain.AnswerRecord{}
}

func (l *AnswerLedger) persist(ctx context.Context, rec domain.AnswerRecord, score int) {
	l.saveAnswer(ctx, rec)
	if l.store == nil {
		return
	}
	if err := l.store.SaveScore(ctx, l.quizID, l.session.ParticipantID, score); err != nil {
		logStoreError(err, "save score")
	}
}

func (l *AnswerLedger) saveAnswer(ctx context.Context, rec domain.AnswerRecord) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveAnswer(ctx, l.quizID, l.session.ParticipantID, rec); err != nil {
		logStoreError(err, "save answer")
	}
}

func logStoreError(err error, op string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Warn().Err(err).Str("op", op).Msg("progress store write failed")
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
