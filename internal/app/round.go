package app

import (
	"context"
	"errors"

	"live-quiz-client/internal/clock"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/ledger"
	"live-quiz-client/internal/reveal"
)

// round is everything scoped to one active quiz. It is discarded when the
// active quiz changes or the session expires.
type round struct {
	quizID    string
	content   domain.QuizContent
	sched     *clock.Scheduler
	answers   *ledger.AnswerLedger
	lifelines *ledger.Lifelines
	seq       *reveal.Sequencer
}

func (r *Runtime) newRound(content domain.QuizContent, session domain.SessionContext) *round {
	rd := &round{
		quizID:  content.QuizID,
		content: content,
		sched:   clock.NewScheduler(r.sched.Context(), r.clock),
	}
	gate := ledger.GateFunc(func() (string, bool) { return rd.seq.Active() })
	judge := &guardedJudge{Judge: r.deps.Judge, onExpired: r.expire}

	var store ledger.ProgressWriter
	if r.deps.Progress != nil {
		store = r.deps.Progress
	}
	rd.answers = ledger.NewAnswerLedger(session, content.QuizID, content.Questions, judge, gate, store, r.clock)
	rd.lifelines = ledger.NewLifelines(session, content.QuizID, judge, gate, store, r.clock)
	rd.seq = reveal.NewSequencer(content.Questions, rd.answers, reveal.FeedbackFunc(r.onReveal), rd.sched, r.opts.RevealDwell)
	return rd
}

func (rd *round) question(id string) (domain.Question, bool) {
	for _, q := range rd.content.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (rd *round) stop() {
	rd.sched.Stop()
}

// guardedJudge reports session expiry to the runtime before returning the error.
type guardedJudge struct {
	Judge
	onExpired func()
}

func (g *guardedJudge) check(err error) error {
	if errors.Is(err, domain.ErrSessionExpired) {
		g.onExpired()
	}
	return err
}

func (g *guardedJudge) SubmitAnswer(ctx context.Context, req domain.AnswerRequest) (domain.AnswerVerdict, error) {
	v, err := g.Judge.SubmitAnswer(ctx, req)
	return v, g.check(err)
}

func (g *guardedJudge) ApplyTimeout(ctx context.Context, req domain.TimeoutRequest) (domain.TimeoutVerdict, error) {
	v, err := g.Judge.ApplyTimeout(ctx, req)
	return v, g.check(err)
}

func (g *guardedJudge) UseHint(ctx context.Context, req domain.LifelineRequest) (domain.HintGrant, error) {
	v, err := g.Judge.UseHint(ctx, req)
	return v, g.check(err)
}

func (g *guardedJudge) UseFiftyFifty(ctx context.Context, req domain.LifelineRequest) (domain.FiftyFiftyGrant, error) {
	v, err := g.Judge.UseFiftyFifty(ctx, req)
	return v, g.check(err)
}

func (g *guardedJudge) Me(ctx context.Context, token string) (domain.Participant, error) {
	p, err := g.Judge.Me(ctx, token)
	return p, g.check(err)
}

// mergeProgress combines the local store with the judge's record. Judged
// answers win; local timeout flags and lifelines fill the gaps.
func mergeProgress(local, remote domain.Progress) domain.Progress {
	out := domain.Progress{Lifelines: local.Lifelines, Score: local.Score}
	seen := make(map[string]struct{}, len(remote.Answers))
	for _, rec := range remote.Answers {
		seen[rec.QuestionID] = struct{}{}
		out.Answers = append(out.Answers, rec)
	}
	for _, rec := range local.Answers {
		if _, ok := seen[rec.QuestionID]; !ok {
			out.Answers = append(out.Answers, rec)
		}
	}
	if remote.Score != nil {
		out.Score = remote.Score
	}
	return out
}
