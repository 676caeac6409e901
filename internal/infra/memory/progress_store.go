package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-client/internal/domain"
)

// ProgressStore keeps crash-recovery progress in process memory.
type ProgressStore struct {
	mu       sync.RWMutex
	progress map[string]*participantProgress
	tokens   map[string]string
}

type participantProgress struct {
	answers   map[string]domain.AnswerRecord
	lifelines map[domain.LifelineKind]domain.LifelineUsage
	score     *int
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		progress: make(map[string]*participantProgress),
		tokens:   make(map[string]string),
	}
}

func (s *ProgressStore) SaveAnswer(_ context.Context, quizID, participantID string, rec domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(quizID, participantID).answers[rec.QuestionID] = rec
	return nil
}

func (s *ProgressStore) SaveLifeline(_ context.Context, quizID, participantID string, usage domain.LifelineUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(quizID, participantID).lifelines[usage.Kind] = usage
	return nil
}

func (s *ProgressStore) SaveScore(_ context.Context, quizID, participantID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(quizID, participantID).score = &score
	return nil
}

// LoadProgress returns what was saved for the participant; unknown pairs yield empty progress.
func (s *ProgressStore) LoadProgress(_ context.Context, quizID, participantID string) (domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[progressKey(quizID, participantID)]
	if !ok {
		return domain.Progress{}, nil
	}

	out := domain.Progress{}
	for _, rec := range p.answers {
		out.Answers = append(out.Answers, rec)
	}
	sort.Slice(out.Answers, func(i, j int) bool {
		return out.Answers[i].QuestionID < out.Answers[j].QuestionID
	})
	for _, kind := range []domain.LifelineKind{domain.LifelineHint, domain.LifelineFiftyFifty} {
		if u, ok := p.lifelines[kind]; ok {
			out.Lifelines = append(out.Lifelines, u)
		}
	}
	if p.score != nil {
		score := *p.score
		out.Score = &score
	}
	return out, nil
}

func (s *ProgressStore) SessionToken(_ context.Context, participantID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[participantID], nil
}

func (s *ProgressStore) SaveSessionToken(_ context.Context, participantID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[participantID] = token
	return nil
}

func (s *ProgressStore) ClearSessionToken(_ context.Context, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, participantID)
	return nil
}

func (s *ProgressStore) entryLocked(quizID, participantID string) *participantProgress {
	key := progressKey(quizID, participantID)
	p, ok := s.progress[key]
	if !ok {
		p = &participantProgress{
			answers:   make(map[string]domain.AnswerRecord),
			lifelines: make(map[domain.LifelineKind]domain.LifelineUsage),
		}
		s.progress[key] = p
	}
	return p
}

func progressKey(quizID, participantID string) string {
	return quizID + "/" + participantID
}
