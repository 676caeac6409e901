package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-client/internal/domain"
)

const (
	answerField   = "answer:"
	lifelineField = "lifeline:"
	scoreField    = "score"
)

// ProgressStore persists crash-recovery progress in one hash per participant and quiz:
//
//	HSET quiz:{quizID}:progress:{participantID} answer:{questionID} {json}
//	HSET quiz:{quizID}:progress:{participantID} lifeline:{kind} {json}
//	HSET quiz:{quizID}:progress:{participantID} score {int}
//
// Session tokens live under participant:{participantID}:session.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) SaveAnswer(ctx context.Context, quizID, participantID string, rec domain.AnswerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	return s.hset(ctx, quizID, participantID, answerField+rec.QuestionID, payload)
}

func (s *ProgressStore) SaveLifeline(ctx context.Context, quizID, participantID string, usage domain.LifelineUsage) error {
	payload, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("encode lifeline: %w", err)
	}
	return s.hset(ctx, quizID, participantID, lifelineField+string(usage.Kind), payload)
}

func (s *ProgressStore) SaveScore(ctx context.Context, quizID, participantID string, score int) error {
	return s.hset(ctx, quizID, participantID, scoreField, score)
}

func (s *ProgressStore) LoadProgress(ctx context.Context, quizID, participantID string) (domain.Progress, error) {
	fields, err := s.client.HGetAll(ctx, s.key(quizID, participantID)).Result()
	if err != nil {
		return domain.Progress{}, fmt.Errorf("load progress: %w", err)
	}

	var out domain.Progress
	for field, value := range fields {
		switch {
		case strings.HasPrefix(field, answerField):
			var rec domain.AnswerRecord
			if err := json.Unmarshal([]byte(value), &rec); err != nil {
				return domain.Progress{}, fmt.Errorf("decode %s: %w", field, err)
			}
			out.Answers = append(out.Answers, rec)
		case strings.HasPrefix(field, lifelineField):
			var usage domain.LifelineUsage
			if err := json.Unmarshal([]byte(value), &usage); err != nil {
				return domain.Progress{}, fmt.Errorf("decode %s: %w", field, err)
			}
			out.Lifelines = append(out.Lifelines, usage)
		case field == scoreField:
			score, err := strconv.Atoi(value)
			if err != nil {
				return domain.Progress{}, fmt.Errorf("decode score: %w", err)
			}
			out.Score = &score
		}
	}
	sort.Slice(out.Answers, func(i, j int) bool { return out.Answers[i].QuestionID < out.Answers[j].QuestionID })
	sort.Slice(out.Lifelines, func(i, j int) bool { return out.Lifelines[i].Kind > out.Lifelines[j].Kind })
	return out, nil
}

func (s *ProgressStore) SessionToken(ctx context.Context, participantID string) (string, error) {
	token, err := s.client.Get(ctx, s.sessionKey(participantID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

func (s *ProgressStore) SaveSessionToken(ctx context.Context, participantID, token string) error {
	return s.client.Set(ctx, s.sessionKey(participantID), token, 0).Err()
}

func (s *ProgressStore) ClearSessionToken(ctx context.Context, participantID string) error {
	return s.client.Del(ctx, s.sessionKey(participantID)).Err()
}

func (s *ProgressStore) hset(ctx context.Context, quizID, participantID, field string, value interface{}) error {
	key := s.key(quizID, participantID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save %s: %w", field, err)
	}
	return nil
}

func (s *ProgressStore) key(quizID, participantID string) string {
	return "quiz:" + quizID + ":progress:" + participantID
}

func (s *ProgressStore) sessionKey(participantID string) string {
	return "participant:" + participantID + ":session"
}
