package watch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrier_SucceedsFirstTry(t *testing.T) {
	retrier := NewRetrier(3, time.Millisecond)

	calls := 0
	err := retrier.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected exactly 1 call, got %d", calls)
	}
}

func TestRetrier_RetriesUntilSuccess(t *testing.T) {
	retrier := NewRetrier(3, time.Millisecond)

	calls := 0
	err := retrier.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("listing site down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success after retries, got: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetrier_ExhaustsRetries(t *testing.T) {
	retrier := NewRetrier(2, time.Millisecond)

	calls := 0
	err := retrier.Execute(context.Background(), func() error {
		calls++
		return errors.New("listing site down")
	})
	if err == nil {
		t.Fatal("Expected the last error after exhausting retries")
	}
	if err.Error() != "listing site down" {
		t.Errorf("Expected the last error, got: %v", err)
	}

	// Initial attempt plus two retries
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetrier_SingleAttemptWithZeroRetries(t *testing.T) {
	retrier := NewRetrier(0, time.Millisecond)

	calls := 0
	retrier.Execute(context.Background(), func() error {
		calls++
		return errors.New("listing site down")
	})
	if calls != 1 {
		t.Errorf("Expected a single attempt with zero retries, got %d", calls)
	}
}

func TestRetrier_CancelledDuringBackoff(t *testing.T) {
	retrier := NewRetrier(3, 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	start := time.Now()
	err := retrier.Execute(ctx, func() error {
		calls++
		return errors.New("listing site down")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected cancellation before the second attempt, got %d calls", calls)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("Expected cancellation to cut the backoff short, waited %v", elapsed)
	}
}
