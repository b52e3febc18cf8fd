// Package limits implements the two-tier script execution budget: an
// operation counter decremented per bytecode step and a wall-clock deadline
// consulted only when the counter runs out.
package limits

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExecutionLimit is returned when both the operation budget and the
// deadline are exhausted. The current frame's scripts are aborted.
var ErrExecutionLimit = errors.New("script execution limit exceeded")

// Default values match the legacy player's 15 second script timeout.
const (
	DefaultMaxOps  = 10000
	DefaultTimeout = 15 * time.Second
)

// Limit tracks the budget for one frame's script execution.
type Limit struct {
	maxOps  int
	timeout time.Duration

	remaining int
	deadline  time.Time
	ctx       context.Context
	now       func() time.Time

	expired bool
	checks  int
}

// New creates a limit that consults the clock every maxOps operations and
// aborts once timeout has elapsed since Start.
func New(maxOps int, timeout time.Duration) *Limit {
	if maxOps <= 0 {
		maxOps = DefaultMaxOps
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Limit{
		maxOps:  maxOps,
		timeout: timeout,
		now:     time.Now,
		ctx:     context.Background(),
	}
}

// SetClock replaces the time source (tests use a fake clock).
func (l *Limit) SetClock(now func() time.Time) {
	l.now = now
}

// Start resets the budget for a new frame. Cancelling ctx also aborts
// execution at the next clock check.
func (l *Limit) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.ctx = ctx
	l.remaining = l.maxOps
	l.deadline = l.now().Add(l.timeout)
	l.expired = false
	l.checks = 0
}

// Tick consumes one operation. It returns ErrExecutionLimit once the
// counter is exhausted and the deadline has passed; after that every call
// fails until Start is called again.
func (l *Limit) Tick() error {
	if l.expired {
		return ErrExecutionLimit
	}
	l.remaining--
	if l.remaining > 0 {
		return nil
	}
	return l.check()
}

func (l *Limit) check() error {
	l.checks++
	if err := l.ctx.Err(); err != nil {
		l.expired = true
		return fmt.Errorf("%w: %v", ErrExecutionLimit, err)
	}
	if !l.now().Before(l.deadline) {
		l.expired = true
		return ErrExecutionLimit
	}
	l.remaining = l.maxOps
	return nil
}

// Expired reports whether the limit has tripped since the last Start.
func (l *Limit) Expired() bool {
	return l.expired
}

// ClockChecks returns how many times the clock was consulted since Start.
func (l *Limit) ClockChecks() int {
	return l.checks
}
