package leaderboard

import (
	"context"
	"sort"

	"live-quiz-client/internal/domain"
)

// Source fetches a leaderboard snapshot for a quiz.
type Source interface {
	Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
}

// Rank orders entries by score descending, then fewer lifelines, then lower mean
// latency for correct answers, then participant ID. Unknown latency sorts after
// any known latency. The input is not modified.
func Rank(entries []domain.LeaderboardEntry) []domain.RankedEntry {
	sorted := make([]domain.LeaderboardEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})

	out := make([]domain.RankedEntry, len(sorted))
	for i, e := range sorted {
		out[i] = domain.RankedEntry{Rank: i + 1, LeaderboardEntry: e}
	}
	return out
}

func less(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.LifelinesUsedCount != b.LifelinesUsedCount {
		return a.LifelinesUsedCount < b.LifelinesUsedCount
	}
	if la, lb := latencyKey(a), latencyKey(b); la != lb {
		return la < lb
	}
	return a.ParticipantID < b.ParticipantID
}

func latencyKey(e domain.LeaderboardEntry) int64 {
	if e.MeanCorrectAnswerLatencyMs <= 0 {
		return 1<<63 - 1
	}
	return e.MeanCorrectAnswerLatencyMs
}

// HasScoreTie reports whether at least two entries share a score.
func HasScoreTie(entries []domain.LeaderboardEntry) bool {
	seen := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Score]; ok {
			return true
		}
		seen[e.Score] = struct{}{}
	}
	return false
}

// Standings ranks a snapshot and decides whether the tie-break panel applies.
func Standings(quizID string, entries []domain.LeaderboardEntry) domain.Standings {
	return domain.Standings{
		QuizID:       quizID,
		Entries:      Rank(entries),
		ShowTieBreak: HasScoreTie(entries),
	}
}

// Fetch loads a snapshot from src and ranks it.
func Fetch(ctx context.Context, src Source, quizID string) (domain.Standings, error) {
	entries, err := src.Leaderboard(ctx, quizID)
	if err != nil {
		return domain.Standings{}, err
	}
	return Standings(quizID, entries), nil
}
