package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-client/internal/domain"
)

// KeyedQuestion pairs a question with its correct choice. Only the judge sees it.
type KeyedQuestion struct {
	Question        domain.Question
	CorrectChoiceID string
}

// Judge is an in-process stand-in for the remote judge, used by the offline
// demo and tests. A timeout reports a -1 penalty but never lowers the total.
type Judge struct {
	clock clockwork.Clock

	mu           sync.Mutex
	participants map[string]domain.Participant
	questions    map[string]KeyedQuestion
	scores       map[string]int
	answered     map[string]bool
	lifelines    map[string]bool
	lifeCount    map[string]int
	names        map[string]string
	replies      map[string]any
	calls        map[string]int
}

func NewJudge(clk clockwork.Clock) *Judge {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Judge{
		clock:        clk,
		participants: make(map[string]domain.Participant),
		questions:    make(map[string]KeyedQuestion),
		scores:       make(map[string]int),
		answered:     make(map[string]bool),
		lifelines:    make(map[string]bool),
		lifeCount:    make(map[string]int),
		names:        make(map[string]string),
		replies:      make(map[string]any),
		calls:        make(map[string]int),
	}
}

// AddParticipant registers a session token.
func (j *Judge) AddParticipant(token string, p domain.Participant) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.participants[token] = p
}

// AddQuiz registers the answer key for a quiz.
func (j *Judge) AddQuiz(quizID string, questions []KeyedQuestion) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, kq := range questions {
		j.questions[quizID+"/"+kq.Question.ID] = kq
	}
}

// Calls returns how many non-replayed requests reached an endpoint.
func (j *Judge) Calls(endpoint string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls[endpoint]
}

func (j *Judge) SubmitAnswer(_ context.Context, req domain.AnswerRequest) (domain.AnswerVerdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v, ok := j.replies[req.EventID].(domain.AnswerVerdict); ok {
		return v, nil
	}
	p, err := j.participantLocked(req.SessionToken)
	if err != nil {
		return domain.AnswerVerdict{}, err
	}
	kq, ok := j.questions[req.QuizID+"/"+req.QuestionID]
	if !ok {
		return domain.AnswerVerdict{}, fmt.Errorf("%w: %v", domain.ErrRejected, domain.ErrQuestionNotFound)
	}
	if !hasChoice(kq.Question, req.ChoiceID) {
		return domain.AnswerVerdict{}, fmt.Errorf("%w: %v", domain.ErrRejected, domain.ErrChoiceNotFound)
	}
	answerKey := scoreKey(req.QuizID, p.ID) + "/" + req.QuestionID
	if j.answered[answerKey] {
		return domain.AnswerVerdict{}, fmt.Errorf("%w: %v", domain.ErrRejected, domain.ErrAlreadyLocked)
	}
	j.calls["answer"]++
	j.answered[answerKey] = true
	j.names[scoreKey(req.QuizID, p.ID)] = p.Username

	correct := kq.CorrectChoiceID == req.ChoiceID
	if correct {
		j.scores[scoreKey(req.QuizID, p.ID)] += kq.Question.PointsValue()
	}
	total := j.scores[scoreKey(req.QuizID, p.ID)]
	v := domain.AnswerVerdict{IsCorrect: correct, TotalScore: &total}
	j.remember(req.EventID, v)
	return v, nil
}

func (j *Judge) ApplyTimeout(_ context.Context, req domain.TimeoutRequest) (domain.TimeoutVerdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v, ok := j.replies[req.EventID].(domain.TimeoutVerdict); ok {
		return v, nil
	}
	p, err := j.participantLocked(req.SessionToken)
	if err != nil {
		return domain.TimeoutVerdict{}, err
	}
	answerKey := scoreKey(req.QuizID, p.ID) + "/" + req.QuestionID
	if j.answered[answerKey] {
		return domain.TimeoutVerdict{}, fmt.Errorf("%w: %v", domain.ErrRejected, domain.ErrAlreadyAnswered)
	}
	j.calls["timeout"]++
	j.answered[answerKey] = true
	j.names[scoreKey(req.QuizID, p.ID)] = p.Username

	// the tally never decreases; the penalty only drives the feedback signal
	total := j.scores[scoreKey(req.QuizID, p.ID)]
	v := domain.TimeoutVerdict{Penalty: -1, TotalScore: &total}
	j.remember(req.EventID, v)
	return v, nil
}

func (j *Judge) UseHint(_ context.Context, req domain.LifelineRequest) (domain.HintGrant, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v, ok := j.replies[req.EventID].(domain.HintGrant); ok {
		return v, nil
	}
	kq, err := j.spendLocked(req, domain.LifelineHint, "hint")
	if err != nil {
		return domain.HintGrant{}, err
	}
	v := domain.HintGrant{Hint: kq.Question.Hint}
	j.remember(req.EventID, v)
	return v, nil
}

// UseFiftyFifty hides two wrong choices, picked in label order.
func (j *Judge) UseFiftyFifty(_ context.Context, req domain.LifelineRequest) (domain.FiftyFiftyGrant, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v, ok := j.replies[req.EventID].(domain.FiftyFiftyGrant); ok {
		return v, nil
	}
	kq, err := j.spendLocked(req, domain.LifelineFiftyFifty, "fifty")
	if err != nil {
		return domain.FiftyFiftyGrant{}, err
	}
	hide := make([]string, 0, 2)
	for _, c := range kq.Question.Choices {
		if c.ID != kq.CorrectChoiceID && len(hide) < 2 {
			hide = append(hide, c.ID)
		}
	}
	v := domain.FiftyFiftyGrant{HideChoiceIDs: hide}
	j.remember(req.EventID, v)
	return v, nil
}

// ServerTime replies with a bare RFC3339 string.
func (j *Judge) ServerTime(context.Context) (json.RawMessage, error) {
	return json.Marshal(j.clock.Now().UTC().Format(time.RFC3339Nano))
}

func (j *Judge) Me(_ context.Context, token string) (domain.Participant, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.participantLocked(token)
}

// Leaderboard returns unsorted rows for everyone who has played the quiz.
// Latency is not tracked and reported as unknown.
func (j *Judge) Leaderboard(_ context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	prefix := quizID + "/"
	var out []domain.LeaderboardEntry
	for key, name := range j.names {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		out = append(out, domain.LeaderboardEntry{
			ParticipantID:      key[len(prefix):],
			DisplayName:        name,
			Score:              j.scores[key],
			LifelinesUsedCount: j.lifeCount[key],
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ParticipantID < out[b].ParticipantID })
	return out, nil
}

func (j *Judge) spendLocked(req domain.LifelineRequest, kind domain.LifelineKind, endpoint string) (KeyedQuestion, error) {
	p, err := j.participantLocked(req.SessionToken)
	if err != nil {
		return KeyedQuestion{}, err
	}
	kq, ok := j.questions[req.QuizID+"/"+req.QuestionID]
	if !ok {
		return KeyedQuestion{}, fmt.Errorf("%w: %v", domain.ErrRejected, domain.ErrQuestionNotFound)
	}
	key := scoreKey(req.QuizID, p.ID)
	if j.lifelines[key+"/"+string(kind)] {
		return KeyedQuestion{}, fmt.Errorf("%w: %v", domain.ErrRejected, domain.ErrLifelineUsed)
	}
	j.calls[endpoint]++
	j.lifelines[key+"/"+string(kind)] = true
	j.lifeCount[key]++
	j.names[key] = p.Username
	return kq, nil
}

func (j *Judge) participantLocked(token string) (domain.Participant, error) {
	p, ok := j.participants[token]
	if !ok {
		return domain.Participant{}, domain.ErrSessionExpired
	}
	return p, nil
}

func (j *Judge) remember(eventID string, reply any) {
	if eventID != "" {
		j.replies[eventID] = reply
	}
}

func hasChoice(q domain.Question, choiceID string) bool {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}

func scoreKey(quizID, participantID string) string {
	return quizID + "/" + participantID
}
