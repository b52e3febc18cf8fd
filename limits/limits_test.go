package limits

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func TestTickWithinBudget(t *testing.T) {
	l := New(100, time.Second)
	l.Start(context.Background())
	for i := 0; i < 99; i++ {
		if err := l.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if l.ClockChecks() != 0 {
		t.Errorf("clock consulted %d times before the counter ran out", l.ClockChecks())
	}
}

func TestCounterRefillsBeforeDeadline(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(10, time.Second)
	l.SetClock(clock.now)
	l.Start(context.Background())

	for i := 0; i < 50; i++ {
		if err := l.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if l.ClockChecks() != 5 {
		t.Errorf("ClockChecks = %d, want 5", l.ClockChecks())
	}
}

func TestAbortsWhenBothExhausted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(10, time.Second)
	l.SetClock(clock.now)
	l.Start(context.Background())

	clock.t = clock.t.Add(2 * time.Second)
	var err error
	n := 0
	for err == nil && n < 100 {
		err = l.Tick()
		n++
	}
	if !errors.Is(err, ErrExecutionLimit) {
		t.Fatalf("err = %v, want ErrExecutionLimit", err)
	}
	if n != 10 {
		t.Errorf("aborted after %d ticks, want 10", n)
	}
	if !l.Expired() {
		t.Error("Expired should be true")
	}
	if err := l.Tick(); !errors.Is(err, ErrExecutionLimit) {
		t.Error("an expired limit must keep failing")
	}

	l.Start(context.Background())
	if err := l.Tick(); err != nil {
		t.Errorf("Start should reset the limit: %v", err)
	}
}

func TestCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(1, time.Hour)
	l.Start(ctx)
	cancel()
	if err := l.Tick(); !errors.Is(err, ErrExecutionLimit) {
		t.Fatalf("err = %v, want ErrExecutionLimit", err)
	}
}
