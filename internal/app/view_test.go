package app

import (
	"testing"
	"time"

	"live-quiz-client/internal/domain"
)

func TestModeFor(t *testing.T) {
	now := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}
	window := 10 * time.Second

	cases := []struct {
		name       string
		ctrl       domain.ControlRecord
		mode       Mode
		untilStart int
		countdown  int
	}{
		{"no active quiz", domain.ControlRecord{Status: domain.StatusLive, StartsAt: at(0)}, ModeNone, 0, 0},
		{"status none", domain.ControlRecord{Status: domain.StatusNone, ActiveQuizID: "q"}, ModeNone, 0, 0},
		{"finished", domain.ControlRecord{Status: domain.StatusFinished, ActiveQuizID: "q"}, ModeFinished, 0, 0},
		{"scheduled far out", domain.ControlRecord{Status: domain.StatusScheduled, ActiveQuizID: "q", StartsAt: at(90 * time.Second)}, ModeScheduled, 90, 0},
		{"scheduled inside window", domain.ControlRecord{Status: domain.StatusScheduled, ActiveQuizID: "q", StartsAt: at(4500 * time.Millisecond)}, ModeCountdown, 5, 5},
		{"scheduled start passed", domain.ControlRecord{Status: domain.StatusScheduled, ActiveQuizID: "q", StartsAt: at(-time.Second)}, ModeLive, 0, 0},
		{"scheduled without start", domain.ControlRecord{Status: domain.StatusScheduled, ActiveQuizID: "q"}, ModeNone, 0, 0},
		{"live without start", domain.ControlRecord{Status: domain.StatusLive, ActiveQuizID: "q"}, ModeLive, 0, 0},
		{"live exactly at start", domain.ControlRecord{Status: domain.StatusLive, ActiveQuizID: "q", StartsAt: at(0)}, ModeLive, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mode, until, countdown := modeFor(tc.ctrl, now, window)
			if mode != tc.mode || until != tc.untilStart || countdown != tc.countdown {
				t.Fatalf("got (%s, %d, %d), want (%s, %d, %d)", mode, until, countdown, tc.mode, tc.untilStart, tc.countdown)
			}
		})
	}
}
