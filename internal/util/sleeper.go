package util

import (
	"context"
	"sync"
	"time"
)

// Sleeper blocks for a duration or until the context is cancelled.
// Every wait in the sync pipeline goes through a Sleeper so tests can
// observe the requested delays without actually waiting.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper waits on a timer
type RealSleeper struct{}

// Sleep blocks for d or until ctx is done
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecordingSleeper returns immediately and remembers every requested delay.
// Hook, when set, runs after each recorded sleep.
type RecordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
	Hook   func(d time.Duration)
}

// Sleep records d and returns ctx.Err()
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	hook := s.Hook
	s.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Sleeps returns a copy of the recorded delays
func (s *RecordingSleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]time.Duration, len(s.sleeps))
	copy(out, s.sleeps)
	return out
}

// Count returns how many times d was requested
func (s *RecordingSleeper) Count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, slept := range s.sleeps {
		if slept == d {
			n++
		}
	}
	return n
}
