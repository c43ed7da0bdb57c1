package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3}.Do(context.Background(), func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(), func(int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestExhaustionWrapsLastError(t *testing.T) {
	sink := errors.New("sink down")
	err := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}.Do(context.Background(), func(int) error {
		return sink
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, sink) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
}

func TestNonRetryableStopsEarly(t *testing.T) {
	fatal := errors.New("bad request")
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}
	err := p.Do(context.Background(), func(int) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("non-retryable error must not be reported as exhaustion")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestContextCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Policy{MaxAttempts: 3, BaseDelay: time.Minute}.Do(ctx, func(int) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestAttemptNumbersAndBackoffDoubling(t *testing.T) {
	var attempts []int
	start := time.Now()
	p := Policy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond}
	p.Do(context.Background(), func(n int) error {
		attempts = append(attempts, n)
		return errors.New("transient")
	})
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Errorf("unexpected attempt numbering: %v", attempts)
	}
	// Delays of 5ms then 10ms must have elapsed.
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("backoff too short: %v", elapsed)
	}
}
