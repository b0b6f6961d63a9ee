package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("device down")

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	b := New(threshold, cooldown)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestBreaker_PassesThroughWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	if err := b.Do("router", succeed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Do("router", fail); !errors.Is(err, errDown) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	_ = b.Do("router", fail)
	_ = b.Do("router", fail)
	if err := b.Do("router", fail); !errors.Is(err, errDown) {
		t.Fatalf("third call should still reach the device, got %v", err)
	}

	called := false
	err := b.Do("router", func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	_ = b.Do("router", fail)
	_ = b.Do("router", succeed)
	_ = b.Do("router", fail)
	if err := b.Do("router", succeed); err != nil {
		t.Fatalf("non-consecutive failures must not open the circuit: %v", err)
	}
}

func TestBreaker_SingleTrialAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	_ = b.Do("router", fail)

	*clock = clock.Add(30 * time.Second)
	if err := b.Do("router", succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen before cooldown, got %v", err)
	}

	*clock = clock.Add(time.Minute)
	var concurrent error
	err := b.Do("router", func() error {
		concurrent = b.Do("router", succeed)
		return nil
	})
	if err != nil {
		t.Fatalf("trial call should run: %v", err)
	}
	if !errors.Is(concurrent, ErrOpen) {
		t.Fatalf("second call during the trial should be rejected, got %v", concurrent)
	}
	if err := b.Do("router", succeed); err != nil {
		t.Fatalf("successful trial should close the circuit: %v", err)
	}
}

func TestBreaker_FailedTrialRestartsCooldown(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	_ = b.Do("router", fail)

	*clock = clock.Add(2 * time.Minute)
	if err := b.Do("router", fail); !errors.Is(err, errDown) {
		t.Fatalf("trial should reach the device, got %v", err)
	}

	*clock = clock.Add(30 * time.Second)
	if err := b.Do("router", succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen after failed trial, got %v", err)
	}
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	_ = b.Do("router-a", fail)
	if err := b.Do("router-b", succeed); err != nil {
		t.Fatalf("failure on one key must not open another: %v", err)
	}
}
