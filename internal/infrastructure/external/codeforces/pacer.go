package codeforces

import (
	"context"
	"sync"
	"time"
)

// Pacer serializes outbound calls and sleeps a fixed delay before each one.
// The delay is unconditional: it does not account for time already passed
// since the previous call. Codeforces allows roughly one request per second.
type Pacer struct {
	mu    sync.Mutex
	delay time.Duration

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a Pacer with the given delay.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay, sleep: sleepCtx}
}

// Do waits for the pacing delay and then runs call, holding the pacer
// for the whole duration so no two calls overlap.
func (p *Pacer) Do(ctx context.Context, call func(ctx context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.sleep(ctx, p.delay); err != nil {
		return err
	}
	return call(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
