package clock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-client/internal/domain"
)

// TimeSource returns the authoritative server time in whatever shape the
// server replies with.
type TimeSource interface {
	ServerTime(ctx context.Context) (json.RawMessage, error)
}

// Synchronizer estimates the offset between the local clock and the server
// clock from a single round trip, assuming symmetric latency.
type Synchronizer struct {
	source TimeSource
	clock  clockwork.Clock

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

func NewSynchronizer(source TimeSource, clk clockwork.Clock) *Synchronizer {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Synchronizer{source: source, clock: clk}
}

// Sync performs one round trip and returns the offset now in effect. On any
// failure the previous offset is retained and returned alongside the error.
func (s *Synchronizer) Sync(ctx context.Context) (time.Duration, error) {
	t0 := s.clock.Now()
	raw, err := s.source.ServerTime(ctx)
	t1 := s.clock.Now()
	if err != nil {
		log.Debug().Err(err).Msg("server time request failed, keeping previous offset")
		return s.Offset(), err
	}

	remote, err := NormalizeServerTime(raw)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring server time reply")
		return s.Offset(), err
	}

	midpoint := t0.Add(t1.Sub(t0) / 2)
	offset := remote.Sub(midpoint)

	s.mu.Lock()
	s.offset = offset
	s.synced = true
	s.mu.Unlock()

	log.Debug().
		Dur("offset", offset).
		Dur("rtt", t1.Sub(t0)).
		Msg("clock offset updated")
	return offset, nil
}

// Offset returns the last good offset (zero before the first successful sync).
func (s *Synchronizer) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Synced reports whether at least one sync succeeded.
func (s *Synchronizer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Now is the local clock corrected by the current offset.
func (s *Synchronizer) Now() time.Time {
	return s.clock.Now().Add(s.Offset())
}

var timeKeys = []string{"server_time", "now", "time", "timestamp"}

// NormalizeServerTime accepts a bare timestamp, a single-element array holding
// a timestamp-bearing record, or a keyed record.
func NormalizeServerTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}, domain.ErrUnparsableTime
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || len(items) != 1 {
			return time.Time{}, domain.ErrUnparsableTime
		}
		return fromRecord(items[0])
	case '{':
		return fromRecord(raw)
	default:
		return fromScalar(raw)
	}
}

func fromRecord(raw json.RawMessage) (time.Time, error) {
	var record map[string]json.RawMessage
	if err := json.Unmarshal(raw, &record); err != nil {
		return time.Time{}, domain.ErrUnparsableTime
	}
	for _, key := range timeKeys {
		if v, ok := record[key]; ok {
			return fromScalar(v)
		}
	}
	return time.Time{}, domain.ErrUnparsableTime
}

func fromScalar(raw json.RawMessage) (time.Time, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return parseTimestamp(str)
	}
	var ms json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&ms); err == nil {
		return fromEpochMillis(ms.String())
	}
	return time.Time{}, domain.ErrUnparsableTime
}

func parseTimestamp(str string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05.999999-07:00"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t, nil
		}
	}
	if t, err := fromEpochMillis(str); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", domain.ErrUnparsableTime, str)
}

func fromEpochMillis(str string) (time.Time, error) {
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || f <= 0 {
		return time.Time{}, domain.ErrUnparsableTime
	}
	return time.UnixMilli(int64(f)), nil
}
