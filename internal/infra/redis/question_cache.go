package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/infra/memory"
)

// QuestionCache keeps ordered quiz content in Redis as one JSON value per quiz
// and falls back to the loader on a miss:
//
//	SET quiz:{quizID}:questions {json} EX ttl
type QuestionCache struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestions(ctx context.Context, quizID string) (domain.QuizContent, error) {
	if content, ok := c.read(ctx, quizID); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// another caller may have filled it
		if content, ok := c.read(ctx, quizID); ok {
			return content, nil
		}

		content, err := c.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return domain.QuizContent{}, err
		}
		content.Questions = domain.OrderQuestions(content.Questions)

		payload, err := json.Marshal(content)
		if err != nil {
			return domain.QuizContent{}, fmt.Errorf("encode quiz %s: %w", quizID, err)
		}
		if err := c.client.Set(ctx, c.key(quizID), payload, c.ttlWithJitter()).Err(); err != nil {
			log.Warn().Err(err).Str("quiz_id", quizID).Msg("question cache write failed")
		}
		return content, nil
	})
	if err != nil {
		return domain.QuizContent{}, err
	}
	return result.(domain.QuizContent), nil
}

// Invalidate removes a cached quiz.
func (c *QuestionCache) Invalidate(ctx context.Context, quizID string) error {
	return c.client.Del(ctx, c.key(quizID)).Err()
}

func (c *QuestionCache) read(ctx context.Context, quizID string) (domain.QuizContent, bool) {
	raw, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("quiz_id", quizID).Msg("question cache read failed")
		}
		return domain.QuizContent{}, false
	}
	var content domain.QuizContent
	if err := json.Unmarshal(raw, &content); err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("dropping undecodable cached quiz")
		return domain.QuizContent{}, false
	}
	return content, true
}

func (c *QuestionCache) key(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
