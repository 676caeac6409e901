package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"live-quiz-client/internal/domain"
)

// QuestionLoader fetches quiz content from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID string) (domain.QuizContent, error)
}

// QuestionRepository caches quiz content with a TTL so concurrent loads of the
// same quiz hit the backing store once.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	rndMu sync.Mutex
	cache map[string]cachedContent
}

type cachedContent struct {
	content   domain.QuizContent
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration, clk clockwork.Clock) *QuestionRepository {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  clk,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedContent),
	}
}

// GetQuestions returns the ordered question set for a quiz.
func (r *QuestionRepository) GetQuestions(ctx context.Context, quizID string) (domain.QuizContent, error) {
	if content, ok := r.cached(quizID); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if content, ok := r.cached(quizID); ok {
			return content, nil
		}

		content, err := r.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return domain.QuizContent{}, err
		}
		content.Questions = domain.OrderQuestions(content.Questions)

		r.mu.Lock()
		r.cache[quizID] = cachedContent{
			content:   content,
			expiresAt: r.clock.Now().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.QuizContent{}, err
	}
	return result.(domain.QuizContent), nil
}

// Invalidate drops a cached quiz so the next read reloads it.
func (r *QuestionRepository) Invalidate(quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.mu.Unlock()
}

func (r *QuestionRepository) cached(quizID string) (domain.QuizContent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock.Now()) {
		return domain.QuizContent{}, false
	}
	return entry.content, true
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader serves content from a map (tests and the offline demo).
type StaticQuestionLoader struct {
	quizzes map[string]domain.QuizContent
}

func NewStaticQuestionLoader(quizzes map[string]domain.QuizContent) *StaticQuestionLoader {
	return &StaticQuestionLoader{quizzes: quizzes}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, quizID string) (domain.QuizContent, error) {
	if content, ok := l.quizzes[quizID]; ok {
		return content, nil
	}
	return domain.QuizContent{}, domain.ErrQuizNotFound
}
