package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Scheduler owns a group of named periodic tasks and one-shot timers that are
// cancelled together by Stop. Callbacks never run after Stop returns.
type Scheduler struct {
	clock  clockwork.Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	timers  map[string]clockwork.Timer
}

func NewScheduler(parent context.Context, clk clockwork.Clock) *Scheduler {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		clock:  clk,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]clockwork.Timer),
	}
}

// Context is cancelled when the scheduler stops.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// Clock returns the clock driving the scheduler.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Every runs fn immediately and then on every interval until Stop. A slow fn
// delays only its own next run.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()

		log.Debug().Str("task", name).Dur("interval", interval).Msg("periodic task started")
		fn(s.ctx)
		for {
			select {
			case <-s.ctx.Done():
				log.Debug().Str("task", name).Msg("periodic task stopped")
				return
			case <-ticker.Chan():
				if s.ctx.Err() != nil {
					return
				}
				fn(s.ctx)
			}
		}
	}()
}

// After schedules fn once after d, replacing any pending timer with the same name.
func (s *Scheduler) After(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if existing, ok := s.timers[name]; ok {
		if existing.Stop() {
			s.wg.Done()
		}
		log.Debug().Str("timer", name).Msg("replaced pending timer")
	}

	var timer clockwork.Timer
	s.wg.Add(1)
	timer = s.clock.AfterFunc(d, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if current, ok := s.timers[name]; ok && current == timer {
			delete(s.timers, name)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[name] = timer
}

// Cancel stops a pending one-shot timer. It reports whether one was pending.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[name]
	if !ok {
		return false
	}
	delete(s.timers, name)
	if timer.Stop() {
		s.wg.Done()
		return true
	}
	return false
}

// Go runs fn in a goroutine tracked by the scheduler so Stop waits for it.
func (s *Scheduler) Go(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Stop cancels every task and timer and waits for running callbacks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for name, timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, name)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

