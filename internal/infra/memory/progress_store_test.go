package memory

import (
	"context"
	"testing"

	"live-quiz-client/internal/domain"
)

func TestProgressStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore()

	_ = store.SaveAnswer(ctx, "quiz-1", "u1", domain.AnswerRecord{QuestionID: "q2", Outcome: domain.OutcomeTimeout, State: domain.TxConfirmed})
	_ = store.SaveAnswer(ctx, "quiz-1", "u1", domain.AnswerRecord{QuestionID: "q1", ChosenChoiceID: "c1", Outcome: domain.OutcomeCorrect})
	_ = store.SaveLifeline(ctx, "quiz-1", "u1", domain.LifelineUsage{Kind: domain.LifelineHint, QuestionID: "q1"})
	_ = store.SaveScore(ctx, "quiz-1", "u1", 4)

	p, err := store.LoadProgress(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Answers) != 2 || p.Answers[0].QuestionID != "q1" {
		t.Fatalf("unexpected answers %+v", p.Answers)
	}
	if len(p.Lifelines) != 1 || p.Lifelines[0].Kind != domain.LifelineHint {
		t.Fatalf("unexpected lifelines %+v", p.Lifelines)
	}
	if p.Score == nil || *p.Score != 4 {
		t.Fatalf("unexpected score %v", p.Score)
	}

	other, _ := store.LoadProgress(ctx, "quiz-2", "u1")
	if len(other.Answers) != 0 || other.Score != nil {
		t.Fatalf("progress leaked across quizzes: %+v", other)
	}
}

func TestProgressStoreSessionToken(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore()
	_ = store.SaveSessionToken(ctx, "u1", "tok")
	if tok, _ := store.SessionToken(ctx, "u1"); tok != "tok" {
		t.Fatalf("expected token, got %q", tok)
	}
	_ = store.ClearSessionToken(ctx, "u1")
	if tok, _ := store.SessionToken(ctx, "u1"); tok != "" {
		t.Fatalf("expected token cleared, got %q", tok)
	}
}
