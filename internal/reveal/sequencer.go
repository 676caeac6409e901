package reveal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-client/internal/clock"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/ledger"
)

// Phase is the sequencer state for the displayed question.
type Phase string

const (
	PhaseActive    Phase = "active"
	PhaseRevealing Phase = "revealing"
)

const dwellTimer = "reveal-dwell"

// ErrDwellTooLong is returned when the reveal dwell cannot fit in one question.
var ErrDwellTooLong = errors.New("reveal dwell exceeds question duration")

// Resolver supplies the outcome of a question whose window has closed.
type Resolver interface {
	Picked(questionID string) bool
	AwaitOutcome(ctx context.Context, questionID string) (domain.Outcome, bool)
	ApplyTimeoutPenalty(ctx context.Context, questionID string) (ledger.TimeoutResult, error)
}

// Event is the terminal signal for one question.
type Event struct {
	QuestionID string         `json:"questionId"`
	Index      int            `json:"index"`
	Outcome    domain.Outcome `json:"outcome"`
	// Replay is true when a timeout penalty had already been applied earlier.
	Replay bool `json:"replay"`
	// Indeterminate is true when no verdict arrived and the outcome defaulted to wrong.
	Indeterminate bool      `json:"indeterminate"`
	At            time.Time `json:"at"`
}

// Feedback plays the visual/audio signal for a revealed outcome.
type Feedback interface {
	Reveal(ev Event)
}

// FeedbackFunc adapts a function to Feedback.
type FeedbackFunc func(Event)

func (f FeedbackFunc) Reveal(ev Event) { f(ev) }

// State is a point-in-time copy of the sequencer.
type State struct {
	DisplayedIndex int            `json:"displayedIndex"`
	TrueIndex      int            `json:"trueIndex"`
	Phase          Phase          `json:"phase"`
	Progress       clock.Progress `json:"progress"`
	Last           *Event         `json:"last,omitempty"`
}

// Sequencer holds the displayed question back for a dwell interval whenever the
// true index moves on, so the finished question's outcome can be shown.
type Sequencer struct {
	questions []domain.Question
	resolver  Resolver
	feedback  Feedback
	sched     *clock.Scheduler
	dwell     time.Duration

	mu        sync.Mutex
	primed    bool
	displayed int
	frozen    int
	phase     Phase
	progress  clock.Progress
	revealed  map[string]Event
	last      *Event
}

func NewSequencer(questions []domain.Question, resolver Resolver, feedback Feedback, sched *clock.Scheduler, dwell time.Duration) *Sequencer {
	return &Sequencer{
		questions: questions,
		resolver:  resolver,
		feedback:  feedback,
		sched:     sched,
		dwell:     dwell,
		phase:     PhaseActive,
		revealed:  make(map[string]Event),
	}
}

// ValidateDwell checks the dwell fits in one question so the displayed index
// lags the true index by at most one.
func ValidateDwell(dwell time.Duration, questionSeconds int) error {
	if dwell > time.Duration(questionSeconds)*time.Second {
		return fmt.Errorf("%w: %v > %ds", ErrDwellTooLong, dwell, questionSeconds)
	}
	return nil
}

// Observe feeds the latest progression. The first observation only aligns the
// displayed index; later increases start a reveal.
func (s *Sequencer) Observe(p clock.Progress) {
	s.mu.Lock()
	s.progress = p
	if !s.primed {
		s.primed = true
		s.displayed = p.Index
		s.mu.Unlock()
		return
	}
	if s.phase == PhaseRevealing || p.Index <= s.displayed {
		s.mu.Unlock()
		return
	}
	if s.displayed >= len(s.questions) {
		s.displayed = p.Index
		s.mu.Unlock()
		return
	}

	index := s.displayed
	q := s.questions[index]
	if _, done := s.revealed[q.ID]; done {
		s.displayed = p.Index
		s.mu.Unlock()
		return
	}
	s.phase = PhaseRevealing
	s.frozen = index
	s.mu.Unlock()

	log.Debug().
		Str("question_id", q.ID).
		Int("frozen_index", index).
		Int("true_index", p.Index).
		Msg("revealing question")

	s.sched.Go(func(ctx context.Context) { s.resolve(ctx, index, q) })
	s.sched.After(dwellTimer, s.dwell, s.advance)
}

func (s *Sequencer) resolve(ctx context.Context, index int, q domain.Question) {
	ev := Event{QuestionID: q.ID, Index: index}

	picked := s.resolver.Picked(q.ID)
	if !picked {
		res, err := s.resolver.ApplyTimeoutPenalty(ctx, q.ID)
		switch {
		case errors.Is(err, domain.ErrAlreadyAnswered):
			picked = true
		case err != nil:
			log.Warn().Err(err).Str("question_id", q.ID).Msg("timeout penalty failed, showing timeout locally")
			fallthrough
		default:
			ev.Outcome = domain.OutcomeTimeout
			ev.Replay = res.Replay
		}
	}
	if picked {
		waitCtx, cancel := clockwork.WithTimeout(ctx, s.sched.Clock(), s.dwell/2)
		outcome, ok := s.resolver.AwaitOutcome(waitCtx, q.ID)
		cancel()
		if !ok {
			outcome = domain.OutcomeWrong
			ev.Indeterminate = true
			log.Warn().
				Str("question_id", q.ID).
				Msg("no verdict before reveal, showing wrong")
		}
		ev.Outcome = outcome
	}
	ev.At = s.sched.Clock().Now()

	s.mu.Lock()
	if _, dup := s.revealed[q.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.revealed[q.ID] = ev
	s.last = &ev
	s.mu.Unlock()

	if s.feedback != nil {
		s.feedback.Reveal(ev)
	}
}

func (s *Sequencer) advance() {
	s.mu.Lock()
	// a re-sync may move the true index back; never re-show a revealed question
	target := max(s.progress.Index, s.frozen+1)
	skipped := target - s.frozen - 1
	s.displayed = target
	s.phase = PhaseActive
	s.mu.Unlock()

	if skipped > 0 {
		log.Warn().
			Int("skipped", skipped).
			Int("displayed_index", target).
			Msg("dwell outlasted a question, skipped questions were not revealed")
	}
}

// Active returns the displayed question when it accepts input: not revealing,
// started, caught up with the true index and with time left.
func (s *Sequencer) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress
	if !s.primed || s.phase != PhaseActive || !p.Started || p.Finished || p.Remaining <= 0 {
		return "", false
	}
	if s.displayed != p.Index || s.displayed >= len(s.questions) {
		return "", false
	}
	return s.questions[s.displayed].ID, true
}

// State returns a copy of the sequencer state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		DisplayedIndex: s.displayed,
		TrueIndex:      s.progress.Index,
		Phase:          s.phase,
		Progress:       s.progress,
	}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	return st
}

// DisplayedQuestion returns the question on screen, if the index is in range.
func (s *Sequencer) DisplayedQuestion() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.primed || s.displayed < 0 || s.displayed >= len(s.questions) {
		return domain.Question{}, false
	}
	return s.questions[s.displayed], true
}

// Revealed returns the reveal event of a question, if it has been revealed.
func (s *Sequencer) Revealed(questionID string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.revealed[questionID]
	return ev, ok
}
