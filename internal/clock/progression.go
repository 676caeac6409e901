package clock

import "time"

// Progress is the position in the quiz derived from synchronized wall time.
type Progress struct {
	Index     int  `json:"index"`
	Remaining int  `json:"remaining"`
	Finished  bool `json:"finished"`
	// Started is false while now is before the anchor.
	Started bool `json:"started"`
}

// Compute maps now onto (question index, seconds remaining, finished). It is a
// pure function of its inputs, so a missed tick is repaired by the next one.
func Compute(now, anchor time.Time, durationSeconds, count int) Progress {
	if durationSeconds < 1 {
		durationSeconds = 1
	}
	if count < 0 {
		count = 0
	}

	elapsed := now.Sub(anchor)
	if elapsed < 0 {
		return Progress{Index: 0, Remaining: durationSeconds}
	}

	elapsedWhole := int(elapsed / time.Second)
	index := elapsedWhole / durationSeconds
	if index >= count {
		return Progress{Index: count, Remaining: 0, Finished: true, Started: true}
	}
	return Progress{
		Index:     index,
		Remaining: durationSeconds - elapsedWhole%durationSeconds,
		Started:   true,
	}
}

// PreCountdown reports the whole seconds left before the anchor when the anchor
// is within window of now. ok is false outside (0, window].
func PreCountdown(now, anchor time.Time, window time.Duration) (seconds int, ok bool) {
	diff := anchor.Sub(now)
	if diff <= 0 || diff > window {
		return 0, false
	}
	seconds = int(diff / time.Second)
	if diff%time.Second != 0 {
		seconds++
	}
	return seconds, true
}
