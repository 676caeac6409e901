package clock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-client/internal/domain"
)

// scriptedSource replies with the next queued payload and advances the fake
// clock by rtt to simulate the round trip.
type scriptedSource struct {
	clock   *clockwork.FakeClock
	rtt     time.Duration
	replies []json.RawMessage
	errs    []error
	calls   int
}

func (s *scriptedSource) ServerTime(context.Context) (json.RawMessage, error) {
	i := s.calls
	s.calls++
	s.clock.Advance(s.rtt)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.replies[i], nil
}

func TestSyncComputesMidpointOffset(t *testing.T) {
	local := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(local)
	// Server is 3s ahead; reply stamped at the midpoint of a 200ms round trip.
	remote := local.Add(100 * time.Millisecond).Add(3 * time.Second)
	src := &scriptedSource{
		clock:   fc,
		rtt:     200 * time.Millisecond,
		replies: []json.RawMessage{json.RawMessage(`"` + remote.Format(time.RFC3339Nano) + `"`)},
	}
	sync := NewSynchronizer(src, fc)

	offset, err := sync.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if offset != 3*time.Second {
		t.Fatalf("expected 3s offset, got %v", offset)
	}
	if got := sync.Now(); !got.Equal(fc.Now().Add(3 * time.Second)) {
		t.Fatalf("expected corrected now, got %v", got)
	}
}

func TestSyncKeepsOffsetOnBadReply(t *testing.T) {
	local := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(local)
	good := local.Add(2 * time.Second).Format(time.RFC3339Nano)
	src := &scriptedSource{
		clock: fc,
		replies: []json.RawMessage{
			json.RawMessage(`{"server_time":"` + good + `"}`),
			json.RawMessage(`{"unexpected":true}`),
			nil,
		},
		errs: []error{nil, nil, errors.New("network down")},
	}
	sync := NewSynchronizer(src, fc)

	if _, err := sync.Sync(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	offset, err := sync.Sync(context.Background())
	if !errors.Is(err, domain.ErrUnparsableTime) {
		t.Fatalf("expected unparsable error, got %v", err)
	}
	if offset != 2*time.Second {
		t.Fatalf("expected previous offset retained, got %v", offset)
	}
	if _, err := sync.Sync(context.Background()); err == nil {
		t.Fatalf("expected network error")
	}
	if sync.Offset() != 2*time.Second || !sync.Synced() {
		t.Fatalf("expected offset to survive failures, got %v", sync.Offset())
	}
}

func TestNormalizeServerTimeShapes(t *testing.T) {
	want := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	stamp := want.Format(time.RFC3339Nano)
	shapes := []string{
		`"` + stamp + `"`,
		`[{"server_time":"` + stamp + `"}]`,
		`{"now":"` + stamp + `"}`,
		`{"timestamp":` + jsonInt(want.UnixMilli()) + `}`,
		jsonInt(want.UnixMilli()),
	}
	for _, shape := range shapes {
		got, err := NormalizeServerTime(json.RawMessage(shape))
		if err != nil {
			t.Fatalf("shape %s: %v", shape, err)
		}
		if !got.Equal(want) {
			t.Fatalf("shape %s: expected %v, got %v", shape, want, got)
		}
	}

	for _, bad := range []string{``, `[]`, `[{"a":1},{"b":2}]`, `{"other":"x"}`, `true`, `"yesterday"`} {
		if _, err := NormalizeServerTime(json.RawMessage(bad)); !errors.Is(err, domain.ErrUnparsableTime) {
			t.Fatalf("shape %q: expected unparsable, got %v", bad, err)
		}
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
