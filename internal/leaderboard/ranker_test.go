package leaderboard

import (
	"context"
	"errors"
	"testing"

	"live-quiz-client/internal/domain"
)

func ids(ranked []domain.RankedEntry) []string {
	out := make([]string, len(ranked))
	for i, e := range ranked {
		out[i] = e.ParticipantID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRankAppliesTieBreakers(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{ParticipantID: "A", Score: 10, LifelinesUsedCount: 1, MeanCorrectAnswerLatencyMs: 3000},
		{ParticipantID: "B", Score: 10, LifelinesUsedCount: 0, MeanCorrectAnswerLatencyMs: 5000},
		{ParticipantID: "C", Score: 10, LifelinesUsedCount: 0, MeanCorrectAnswerLatencyMs: 4000},
	}

	ranked := Rank(entries)
	if got := ids(ranked); !equal(got, []string{"C", "B", "A"}) {
		t.Fatalf("unexpected order %v", got)
	}
	for i, e := range ranked {
		if e.Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, e.Rank)
		}
	}
	if !HasScoreTie(entries) {
		t.Fatalf("expected score tie")
	}
	if entries[0].ParticipantID != "A" {
		t.Fatalf("input must not be reordered")
	}
}

func TestRankScoreDominates(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{ParticipantID: "slow", Score: 3, LifelinesUsedCount: 2, MeanCorrectAnswerLatencyMs: 9000},
		{ParticipantID: "fast", Score: 2, MeanCorrectAnswerLatencyMs: 100},
		{ParticipantID: "top", Score: 5, LifelinesUsedCount: 2},
	}
	if got := ids(Rank(entries)); !equal(got, []string{"top", "slow", "fast"}) {
		t.Fatalf("unexpected order %v", got)
	}
	if HasScoreTie(entries) {
		t.Fatalf("expected no tie")
	}
}

func TestRankUnknownLatencySortsLast(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{ParticipantID: "none", Score: 0},
		{ParticipantID: "known", Score: 0, MeanCorrectAnswerLatencyMs: 8000},
	}
	if got := ids(Rank(entries)); !equal(got, []string{"known", "none"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestRankParticipantIDBreaksFullTie(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{ParticipantID: "zed", Score: 4, MeanCorrectAnswerLatencyMs: 1000},
		{ParticipantID: "amy", Score: 4, MeanCorrectAnswerLatencyMs: 1000},
	}
	if got := ids(Rank(entries)); !equal(got, []string{"amy", "zed"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestRankIsStableUnderInputOrder(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{ParticipantID: "p1", Score: 7, LifelinesUsedCount: 1, MeanCorrectAnswerLatencyMs: 2000},
		{ParticipantID: "p2", Score: 9},
		{ParticipantID: "p3", Score: 7, MeanCorrectAnswerLatencyMs: 2500},
		{ParticipantID: "p4", Score: 7, MeanCorrectAnswerLatencyMs: 2500},
	}
	reversed := make([]domain.LeaderboardEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	if a, b := ids(Rank(entries)), ids(Rank(reversed)); !equal(a, b) {
		t.Fatalf("order depends on input: %v vs %v", a, b)
	}
}

func TestEmptyLeaderboard(t *testing.T) {
	s := Standings("quiz-1", nil)
	if len(s.Entries) != 0 || s.ShowTieBreak {
		t.Fatalf("unexpected standings %+v", s)
	}
}

type stubSource struct {
	entries []domain.LeaderboardEntry
	err     error
}

func (s stubSource) Leaderboard(context.Context, string) ([]domain.LeaderboardEntry, error) {
	return s.entries, s.err
}

func TestFetch(t *testing.T) {
	src := stubSource{entries: []domain.LeaderboardEntry{
		{ParticipantID: "a", Score: 1},
		{ParticipantID: "b", Score: 1},
	}}
	s, err := Fetch(context.Background(), src, "quiz-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if s.QuizID != "quiz-1" || !s.ShowTieBreak || len(s.Entries) != 2 {
		t.Fatalf("unexpected standings %+v", s)
	}

	boom := errors.New("boom")
	if _, err := Fetch(context.Background(), stubSource{err: boom}, "quiz-1"); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}
