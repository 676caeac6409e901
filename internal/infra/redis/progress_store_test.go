package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"live-quiz-client/internal/domain"
)

func TestProgressStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewProgressStore(newClient(mr), time.Hour)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	answers := []domain.AnswerRecord{
		{QuestionID: "q1", ChosenChoiceID: "c2", Outcome: domain.OutcomeCorrect, State: domain.TxConfirmed, SubmittedAt: at},
		{QuestionID: "q2", Outcome: domain.OutcomeTimeout, State: domain.TxPending, SubmittedAt: at},
	}
	for _, rec := range answers {
		if err := store.SaveAnswer(ctx, "quiz-1", "u1", rec); err != nil {
			t.Fatalf("save answer: %v", err)
		}
	}
	if err := store.SaveLifeline(ctx, "quiz-1", "u1", domain.LifelineUsage{Kind: domain.LifelineFiftyFifty, QuestionID: "q1", UsedAt: at}); err != nil {
		t.Fatalf("save lifeline: %v", err)
	}
	if err := store.SaveScore(ctx, "quiz-1", "u1", 3); err != nil {
		t.Fatalf("save score: %v", err)
	}

	if !mr.Exists("quiz:quiz-1:progress:u1") {
		t.Fatalf("expected progress hash")
	}
	if ttl := mr.TTL("quiz:quiz-1:progress:u1"); ttl != time.Hour {
		t.Fatalf("expected ttl refreshed, got %v", ttl)
	}

	p, err := store.LoadProgress(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Answers) != 2 || p.Answers[1].Outcome != domain.OutcomeTimeout || !p.Answers[0].SubmittedAt.Equal(at) {
		t.Fatalf("unexpected answers %+v", p.Answers)
	}
	if len(p.Lifelines) != 1 || p.Lifelines[0].QuestionID != "q1" {
		t.Fatalf("unexpected lifelines %+v", p.Lifelines)
	}
	if p.Score == nil || *p.Score != 3 {
		t.Fatalf("unexpected score %v", p.Score)
	}
}

func TestProgressStoreEmpty(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	p, err := NewProgressStore(newClient(mr), 0).LoadProgress(context.Background(), "quiz-1", "nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Answers) != 0 || p.Score != nil {
		t.Fatalf("expected empty progress, got %+v", p)
	}
}

func TestProgressStoreSessionToken(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewProgressStore(newClient(mr), 0)
	if tok, err := store.SessionToken(ctx, "u1"); err != nil || tok != "" {
		t.Fatalf("expected no token, got %q %v", tok, err)
	}
	_ = store.SaveSessionToken(ctx, "u1", "tok")
	if tok, _ := store.SessionToken(ctx, "u1"); tok != "tok" {
		t.Fatalf("expected token, got %q", tok)
	}
	_ = store.ClearSessionToken(ctx, "u1")
	if mr.Exists("participant:u1:session") {
		t.Fatalf("expected session key removed")
	}
}
