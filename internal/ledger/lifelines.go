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

// LifelineJudge grants lifelines for the question on screen.
type LifelineJudge interface {
	UseHint(ctx context.Context, req domain.LifelineRequest) (domain.HintGrant, error)
	UseFiftyFifty(ctx context.Context, req domain.LifelineRequest) (domain.FiftyFiftyGrant, error)
}

// Lifelines holds the two one-shot gates for a whole quiz. Each kind can be
// spent once per session, and only on an open question.
type Lifelines struct {
	session domain.SessionContext
	quizID  string
	judge   LifelineJudge
	gate    Gate
	store   ProgressWriter
	clock   clockwork.Clock

	mu       sync.Mutex
	used     map[domain.LifelineKind]domain.LifelineUsage
	disabled map[domain.LifelineKind]bool
	inFlight map[domain.LifelineKind]bool
	hints    map[string]string
	hidden   map[string][]string
}

func NewLifelines(session domain.SessionContext, quizID string, judge LifelineJudge, gate Gate, store ProgressWriter, clk clockwork.Clock) *Lifelines {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Lifelines{
		session:  session,
		quizID:   quizID,
		judge:    judge,
		gate:     gate,
		store:    store,
		clock:    clk,
		used:     make(map[domain.LifelineKind]domain.LifelineUsage),
		disabled: make(map[domain.LifelineKind]bool),
		inFlight: make(map[domain.LifelineKind]bool),
		hints:    make(map[string]string),
		hidden:   make(map[string][]string),
	}
}

// Restore marks previously spent lifelines as used.
func (l *Lifelines) Restore(progress domain.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, usage := range progress.Lifelines {
		l.used[usage.Kind] = usage
	}
}

// UseHint spends the hint lifeline on the open question and returns its hint.
func (l *Lifelines) UseHint(ctx context.Context) (string, error) {
	questionID, err := l.begin(domain.LifelineHint)
	if err != nil {
		return "", err
	}
	grant, err := l.judge.UseHint(ctx, l.request(questionID))
	if err != nil {
		return "", l.fail(domain.LifelineHint, questionID, err)
	}

	l.mu.Lock()
	l.hints[questionID] = grant.Hint
	l.mu.Unlock()
	l.commit(ctx, domain.LifelineHint, questionID)
	return grant.Hint, nil
}

// UseFiftyFifty spends the elimination lifeline and returns the choice IDs to hide.
func (l *Lifelines) UseFiftyFifty(ctx context.Context) ([]string, error) {
	questionID, err := l.begin(domain.LifelineFiftyFifty)
	if err != nil {
		return nil, err
	}
	grant, err := l.judge.UseFiftyFifty(ctx, l.request(questionID))
	if err != nil {
		return nil, l.fail(domain.LifelineFiftyFifty, questionID, err)
	}

	hide := append([]string(nil), grant.HideChoiceIDs...)
	l.mu.Lock()
	l.hidden[questionID] = hide
	l.mu.Unlock()
	l.commit(ctx, domain.LifelineFiftyFifty, questionID)
	return hide, nil
}

// Available reports whether a lifeline kind can still be used right now.
func (l *Lifelines) Available(kind domain.LifelineKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spentLocked(kind) || l.inFlight[kind] {
		return false
	}
	_, open := l.gate.Active()
	return open
}

// Usages returns the spent lifelines.
func (l *Lifelines) Usages() []domain.LifelineUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.LifelineUsage, 0, len(l.used))
	for _, kind := range []domain.LifelineKind{domain.LifelineHint, domain.LifelineFiftyFifty} {
		if u, ok := l.used[kind]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Hint returns the hint granted for a question, if any.
func (l *Lifelines) Hint(questionID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.hints[questionID]
	return h, ok
}

// HiddenChoices returns the choices eliminated for a question.
func (l *Lifelines) HiddenChoices(questionID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.hidden[questionID]...)
}

func (l *Lifelines) begin(kind domain.LifelineKind) (string, error) {
	if l.session.Token == "" {
		return "", domain.ErrSessionExpired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spentLocked(kind) || l.inFlight[kind] {
		return "", domain.ErrLifelineUsed
	}
	questionID, open := l.gate.Active()
	if !open {
		return "", domain.ErrNotActive
	}
	l.inFlight[kind] = true
	return questionID, nil
}

func (l *Lifelines) fail(kind domain.LifelineKind, questionID string, err error) error {
	l.mu.Lock()
	l.inFlight[kind] = false
	// The judge disagrees about server-side state; keep the control off.
	if errors.Is(err, domain.ErrRejected) {
		l.disabled[kind] = true
	}
	l.mu.Unlock()

	log.Warn().Err(err).
		Str("quiz_id", l.quizID).
		Str("question_id", questionID).
		Str("lifeline", string(kind)).
		Msg("lifeline request failed")
	return fmt.Errorf("use %s: %w", kind, err)
}

func (l *Lifelines) commit(ctx context.Context, kind domain.LifelineKind, questionID string) {
	usage := domain.LifelineUsage{Kind: kind, QuestionID: questionID, UsedAt: l.clock.Now()}
	l.mu.Lock()
	l.inFlight[kind] = false
	l.used[kind] = usage
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.SaveLifeline(ctx, l.quizID, l.session.ParticipantID, usage); err != nil {
		logStoreError(err, "save lifeline")
	}
}

func (l *Lifelines) spentLocked(kind domain.LifelineKind) bool {
	_, used := l.used[kind]
	return used || l.disabled[kind]
}

func (l *Lifelines) request(questionID string) domain.LifelineRequest {
	return domain.LifelineRequest{
		EventID:      uuid.NewString(),
		SessionToken: l.session.Token,
		QuizID:       l.quizID,
		QuestionID:   questionID,
	}
}
