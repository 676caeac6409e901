package clock

import (
	"testing"
	"time"
)

func TestComputeBoundaries(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		offset time.Duration
		want   Progress
	}{
		{"before anchor", -time.Millisecond, Progress{Index: 0, Remaining: 5}},
		{"at anchor", 0, Progress{Index: 0, Remaining: 5, Started: true}},
		{"second question", 5000 * time.Millisecond, Progress{Index: 1, Remaining: 5, Started: true}},
		{"last millisecond", 14999 * time.Millisecond, Progress{Index: 2, Remaining: 1, Started: true}},
		{"finished", 15000 * time.Millisecond, Progress{Index: 3, Remaining: 0, Finished: true, Started: true}},
	}
	for _, tc := range cases {
		got := Compute(anchor.Add(tc.offset), anchor, 5, 3)
		if got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestComputeIsMonotonic(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	for _, duration := range []int{1, 3, 7} {
		for _, count := range []int{0, 1, 4} {
			prev := -1
			for ms := -3000; ms <= 40000; ms += 137 {
				p := Compute(anchor.Add(time.Duration(ms)*time.Millisecond), anchor, duration, count)
				if p.Index < prev {
					t.Fatalf("index decreased at %dms (duration=%d count=%d): %d -> %d", ms, duration, count, prev, p.Index)
				}
				if p.Index > count {
					t.Fatalf("index %d beyond count %d", p.Index, count)
				}
				prev = p.Index
			}
		}
	}
}

func TestComputeEmptyQuizFinishesAtAnchor(t *testing.T) {
	anchor := time.Unix(1_700_000_000, 0)
	p := Compute(anchor, anchor, 10, 0)
	if !p.Finished || p.Index != 0 || p.Remaining != 0 {
		t.Fatalf("expected finished at index 0, got %+v", p)
	}
}

func TestComputeClampsDuration(t *testing.T) {
	anchor := time.Unix(1_700_000_000, 0)
	p := Compute(anchor.Add(2500*time.Millisecond), anchor, 0, 5)
	if p.Index != 2 || p.Remaining != 1 {
		t.Fatalf("expected duration clamped to 1s, got %+v", p)
	}
}

func TestPreCountdown(t *testing.T) {
	anchor := time.Unix(1_700_000_000, 0)
	window := 10 * time.Second

	if _, ok := PreCountdown(anchor.Add(-11*time.Second), anchor, window); ok {
		t.Fatalf("expected no countdown outside the window")
	}
	secs, ok := PreCountdown(anchor.Add(-9500*time.Millisecond), anchor, window)
	if !ok || secs != 10 {
		t.Fatalf("expected 10s countdown, got %d ok=%v", secs, ok)
	}
	secs, ok = PreCountdown(anchor.Add(-10*time.Second), anchor, window)
	if !ok || secs != 10 {
		t.Fatalf("expected countdown at the window edge, got %d ok=%v", secs, ok)
	}
	if _, ok := PreCountdown(anchor, anchor, window); ok {
		t.Fatalf("expected countdown to end at the anchor")
	}
}
