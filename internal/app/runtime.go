package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-client/internal/clock"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/leaderboard"
	"live-quiz-client/internal/reveal"
)

// Options holds the runtime timing.
type Options struct {
	Tick               time.Duration
	SyncInterval       time.Duration
	RevealDwell        time.Duration
	PreCountdownWindow time.Duration
	ControlPoll        time.Duration
	SessionCheck       time.Duration
}

func DefaultOptions() Options {
	return Options{
		Tick:               200 * time.Millisecond,
		SyncInterval:       15 * time.Second,
		RevealDwell:        1200 * time.Millisecond,
		PreCountdownWindow: 10 * time.Second,
		ControlPoll:        2 * time.Second,
		SessionCheck:       15 * time.Second,
	}
}

// Deps are the runtime's collaborators. Progress, Remote, Control, Leaderboard
// and Feedback are optional.
type Deps struct {
	Judge       Judge
	Questions   QuestionRepository
	Progress    ProgressStore
	Remote      ProgressReader
	Control     ControlSource
	Leaderboard LeaderboardSource
	Feedback    reveal.Feedback
	Clock       clockwork.Clock
}

// Runtime drives one participant through whichever quiz the control record
// points at and publishes View snapshots.
type Runtime struct {
	deps  Deps
	opts  Options
	clock clockwork.Clock
	sync  *clock.Synchronizer
	sched *clock.Scheduler

	mu            sync.Mutex
	session       domain.SessionContext
	authenticated bool
	control       domain.ControlRecord
	round         *round
	loading       bool
	notice        string
	lastReveal    *reveal.Event
	closed        bool
	subscribers   map[chan View]struct{}
	last          View

	bg sync.WaitGroup
}

func NewRuntime(session domain.SessionContext, deps Deps, opts Options) *Runtime {
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	deps.Clock = clk
	return &Runtime{
		deps:          deps,
		opts:          opts,
		clock:         clk,
		sync:          clock.NewSynchronizer(deps.Judge, clk),
		sched:         clock.NewScheduler(context.Background(), clk),
		session:       session,
		authenticated: session.Token != "",
		control:       domain.ControlRecord{Status: domain.StatusNone},
		subscribers:   make(map[chan View]struct{}),
	}
}

// Start launches the periodic tasks. It returns immediately; Close stops them.
func (r *Runtime) Start() {
	if !r.isAuthenticated() {
		log.Warn().Msg("no session token, sign in required")
	}
	r.sched.Every("clock-sync", r.opts.SyncInterval, func(ctx context.Context) {
		_, _ = r.sync.Sync(ctx)
	})
	if r.deps.Control != nil {
		r.sched.Every("control-poll", r.opts.ControlPoll, r.pollControl)
	}
	r.sched.Every("session-check", r.opts.SessionCheck, r.checkSession)
	r.sched.Every("tick", r.opts.Tick, r.tick)
}

// Close stops every task and the current round and closes all subscriptions.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	rd := r.round
	r.round = nil
	r.mu.Unlock()

	if rd != nil {
		rd.stop()
	}
	r.sched.Stop()
	r.bg.Wait()

	r.mu.Lock()
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
	r.mu.Unlock()
}

// ApplyControl installs a new control record. A change of active quiz discards
// the current round; a scheduled or live quiz without a round gets one loaded.
func (r *Runtime) ApplyControl(ctx context.Context, rec domain.ControlRecord) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	prev := r.control
	r.control = rec
	var old *round
	if r.round != nil && r.round.quizID != rec.ActiveQuizID {
		old = r.round
		r.round = nil
		r.lastReveal = nil
	}
	wantRound := r.authenticated && rec.ActiveQuizID != "" &&
		(rec.Status == domain.StatusLive || rec.Status == domain.StatusScheduled)
	load := wantRound && r.round == nil && !r.loading
	if load {
		r.loading = true
	}
	r.mu.Unlock()

	if prev.Status != rec.Status || prev.ActiveQuizID != rec.ActiveQuizID {
		log.Info().
			Str("status", string(rec.Status)).
			Str("quiz_id", rec.ActiveQuizID).
			Msg("control record changed")
	}
	if old != nil {
		log.Info().Str("quiz_id", old.quizID).Msg("active quiz changed, discarding round")
		old.stop()
	}
	if load {
		r.loadRound(ctx, rec.ActiveQuizID)
	}
	r.publish()
}

func (r *Runtime) pollControl(ctx context.Context) {
	rec, err := r.deps.Control.Control(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("control poll failed")
		}
		return
	}
	r.ApplyControl(ctx, rec)
}

func (r *Runtime) loadRound(ctx context.Context, quizID string) {
	content, err := r.deps.Questions.GetQuestions(ctx, quizID)
	if err != nil {
		r.mu.Lock()
		r.loading = false
		r.notice = "quiz content unavailable"
		r.mu.Unlock()
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("loading questions failed, will retry")
		return
	}
	if content.QuizID == "" {
		content.QuizID = quizID
	}
	if err := reveal.ValidateDwell(r.opts.RevealDwell, content.QuestionDurationSeconds); err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("reveal dwell may skip reveals")
	}

	r.mu.Lock()
	session := r.session
	r.mu.Unlock()

	progress := r.restoreProgress(ctx, quizID, session.ParticipantID)
	rd := r.newRound(content, session)
	rd.answers.Restore(progress)
	rd.lifelines.Restore(progress)

	r.mu.Lock()
	r.loading = false
	if r.closed || !r.authenticated || r.control.ActiveQuizID != quizID {
		r.mu.Unlock()
		rd.stop()
		return
	}
	r.round = rd
	r.notice = ""
	r.mu.Unlock()

	log.Info().
		Str("quiz_id", quizID).
		Int("questions", len(content.Questions)).
		Int("question_seconds", content.QuestionDurationSeconds).
		Int("restored_answers", len(progress.Answers)).
		Msg("quiz loaded")
}

func (r *Runtime) restoreProgress(ctx context.Context, quizID, participantID string) domain.Progress {
	var local, remote domain.Progress
	if r.deps.Progress != nil {
		p, err := r.deps.Progress.LoadProgress(ctx, quizID, participantID)
		if err != nil {
			log.Warn().Err(err).Str("quiz_id", quizID).Msg("local progress unavailable")
		} else {
			local = p
		}
	}
	if r.deps.Remote != nil {
		p, err := r.deps.Remote.LoadProgress(ctx, quizID, participantID)
		if err != nil {
			log.Warn().Err(err).Str("quiz_id", quizID).Msg("judged progress unavailable")
		} else {
			remote = p
		}
	}
	return mergeProgress(local, remote)
}

func (r *Runtime) checkSession(ctx context.Context) {
	r.mu.Lock()
	token := r.session.Token
	authed := r.authenticated
	r.mu.Unlock()
	if !authed {
		return
	}

	judge := &guardedJudge{Judge: r.deps.Judge, onExpired: r.expire}
	p, err := judge.Me(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionExpired) && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("session check failed")
		}
		return
	}
	r.mu.Lock()
	if r.session.DisplayName == "" {
		r.session.DisplayName = p.Username
	}
	r.mu.Unlock()
}

// expire ends the signed-in session. It runs on judge call paths, including
// round callbacks, so the round is stopped off this goroutine.
func (r *Runtime) expire() {
	r.mu.Lock()
	if !r.authenticated {
		r.mu.Unlock()
		return
	}
	r.authenticated = false
	participantID := r.session.ParticipantID
	r.session.Token = ""
	rd := r.round
	r.round = nil
	if rd != nil {
		r.bg.Add(1)
	}
	r.mu.Unlock()

	log.Warn().Str("participant_id", participantID).Msg("session expired, sign in again")
	if r.deps.Progress != nil {
		if err := r.deps.Progress.ClearSessionToken(context.Background(), participantID); err != nil {
			log.Warn().Err(err).Msg("clearing session token failed")
		}
	}
	if rd != nil {
		go func() {
			defer r.bg.Done()
			rd.stop()
		}()
	}
	r.publish()
}

func (r *Runtime) tick(context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("tick panicked")
		}
	}()

	r.mu.Lock()
	rd := r.round
	ctrl := r.control
	r.mu.Unlock()

	if rd != nil && ctrl.StartsAt != nil {
		p := clock.Compute(r.sync.Now(), *ctrl.StartsAt, rd.content.QuestionDurationSeconds, len(rd.content.Questions))
		rd.seq.Observe(p)
	}
	r.publish()
}

func (r *Runtime) onReveal(ev reveal.Event) {
	r.mu.Lock()
	r.lastReveal = &ev
	r.mu.Unlock()

	if r.deps.Feedback != nil {
		r.deps.Feedback.Reveal(ev)
	}
	r.publish()
}

func (r *Runtime) activeRound() (*round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authenticated {
		return nil, domain.ErrSessionExpired
	}
	if r.round == nil || r.round.quizID != r.control.ActiveQuizID {
		return nil, domain.ErrNoActiveQuiz
	}
	return r.round, nil
}

// Submit answers the open question with choiceID.
func (r *Runtime) Submit(ctx context.Context, choiceID string) (domain.AnswerRecord, error) {
	rd, err := r.activeRound()
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	questionID, open := rd.seq.Active()
	if !open {
		return domain.AnswerRecord{}, domain.ErrNotActive
	}
	q, _ := rd.question(questionID)
	if !hasChoice(q, choiceID) || isHidden(rd.lifelines.HiddenChoices(questionID), choiceID) {
		return domain.AnswerRecord{}, domain.ErrChoiceNotFound
	}

	rec, err := rd.answers.Submit(ctx, questionID, choiceID)
	r.publish()
	return rec, err
}

// UseHint spends the hint lifeline on the open question.
func (r *Runtime) UseHint(ctx context.Context) (string, error) {
	rd, err := r.activeRound()
	if err != nil {
		return "", err
	}
	hint, err := rd.lifelines.UseHint(ctx)
	r.publish()
	return hint, err
}

// UseFiftyFifty spends the elimination lifeline on the open question.
func (r *Runtime) UseFiftyFifty(ctx context.Context) ([]string, error) {
	rd, err := r.activeRound()
	if err != nil {
		return nil, err
	}
	hide, err := rd.lifelines.UseFiftyFifty(ctx)
	r.publish()
	return hide, err
}

// Leaderboard fetches and ranks the active quiz's standings.
func (r *Runtime) Leaderboard(ctx context.Context) (domain.Standings, error) {
	if r.deps.Leaderboard == nil {
		return domain.Standings{}, fmt.Errorf("leaderboard: no source configured")
	}
	r.mu.Lock()
	quizID := r.control.ActiveQuizID
	r.mu.Unlock()
	if quizID == "" {
		return domain.Standings{}, domain.ErrNoActiveQuiz
	}
	return leaderboard.Fetch(ctx, r.deps.Leaderboard, quizID)
}

// Subscribe returns a channel of view snapshots, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (r *Runtime) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)
	initial := r.Snapshot()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	ch <- initial
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot builds the current view.
func (r *Runtime) Snapshot() View {
	r.mu.Lock()
	ctrl := r.control
	rd := r.round
	session := r.session
	authed := r.authenticated
	notice := r.notice
	last := r.lastReveal
	r.mu.Unlock()

	v := View{
		ParticipantID:  session.ParticipantID,
		DisplayName:    session.DisplayName,
		Synced:         r.sync.Synced(),
		ServerOffsetMs: r.sync.Offset().Milliseconds(),
		Notice:         notice,
	}
	if !authed {
		v.Mode = ModeUnauthenticated
		return v
	}

	v.QuizID = ctrl.ActiveQuizID
	v.StartsAt = ctrl.StartsAt
	v.Mode, v.SecondsUntilStart, v.Countdown = modeFor(ctrl, r.sync.Now(), r.opts.PreCountdownWindow)
	if rd == nil || rd.quizID != ctrl.ActiveQuizID {
		return v
	}

	v.Score = rd.answers.Score()
	if last != nil {
		ev := *last
		v.LastReveal = &ev
	}
	st := rd.seq.State()
	v.Phase = st.Phase
	if v.Mode == ModeLive && st.Progress.Finished && st.Phase == reveal.PhaseActive {
		v.Mode = ModeFinished
	}
	if v.Mode != ModeLive {
		return v
	}

	_, v.Open = rd.seq.Active()
	v.Remaining = st.Progress.Remaining
	v.Lifelines = map[domain.LifelineKind]bool{
		domain.LifelineHint:       rd.lifelines.Available(domain.LifelineHint),
		domain.LifelineFiftyFifty: rd.lifelines.Available(domain.LifelineFiftyFifty),
	}
	if q, ok := rd.seq.DisplayedQuestion(); ok {
		v.Question = r.questionView(rd, q)
	}
	return v
}

func (r *Runtime) questionView(rd *round, q domain.Question) *QuestionView {
	hidden := rd.lifelines.HiddenChoices(q.ID)
	qv := &QuestionView{
		ID:     q.ID,
		Index:  q.OrderIndex,
		Total:  len(rd.content.Questions),
		Text:   q.Text,
		Level:  q.Level.Name,
		Points: q.PointsValue(),
	}
	for _, c := range q.Choices {
		qv.Choices = append(qv.Choices, ChoiceView{Choice: c, Hidden: isHidden(hidden, c.ID)})
	}
	if hint, ok := rd.lifelines.Hint(q.ID); ok {
		qv.Hint = hint
	}
	if rec, ok := rd.answers.Record(q.ID); ok {
		qv.Picked = rec.ChosenChoiceID
		qv.Locked = true
	}
	if ev, ok := rd.seq.Revealed(q.ID); ok {
		qv.Outcome = ev.Outcome
	}
	return qv
}

// publish broadcasts the current view when it differs from the last one sent.
func (r *Runtime) publish() {
	v := r.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || reflect.DeepEqual(v, r.last) {
		return
	}
	r.last = v
	for ch := range r.subscribers {
		select {
		case ch <- v:
		default:
			// drop the stale view so a slow reader never blocks the tick
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (r *Runtime) isAuthenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authenticated
}

func hasChoice(q domain.Question, choiceID string) bool {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}

func isHidden(hidden []string, choiceID string) bool {
	for _, id := range hidden {
		if id == choiceID {
			return true
		}
	}
	return false
}
