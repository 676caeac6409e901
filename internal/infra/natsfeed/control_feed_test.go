package natsfeed

import (
	"testing"
	"time"

	"live-quiz-client/internal/domain"
)

func TestDecodeControl(t *testing.T) {
	starts := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	rec, err := DecodeControl([]byte(`{"status":"LIVE","starts_at":"2024-06-01T18:00:00Z","active_quiz_id":"quiz-7"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != domain.StatusLive || rec.ActiveQuizID != "quiz-7" || rec.StartsAt == nil || !rec.StartsAt.Equal(starts) {
		t.Fatalf("unexpected record %+v", rec)
	}

	rec, err = DecodeControl([]byte(`{"status":"paused","starts_at":null,"active_quiz_id":null}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != domain.StatusNone || rec.StartsAt != nil || rec.ActiveQuizID != "" {
		t.Fatalf("expected unknown status to read as none, got %+v", rec)
	}

	if _, err := DecodeControl([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Subject != "quiz.control" || cfg.MaxReconnects != -1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
