package poll

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestUntilToleratesNotReady(t *testing.T) {
	tests := []struct {
		name     string
		failures int
	}{
		{"immediate", 0},
		{"few", 3},
		{"many", 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			attempts, err := Until(context.Background(), fastPolicy(), func(ctx context.Context) (bool, error) {
				calls++
				return calls > tt.failures, nil
			})
			if err != nil {
				t.Fatalf("Until() error = %v", err)
			}
			if attempts != tt.failures+1 {
				t.Errorf("attempts = %d, want %d", attempts, tt.failures+1)
			}
		})
	}
}

func TestUntilStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	attempts, err := Until(context.Background(), fastPolicy(), func(ctx context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Until() error = %v, want boom", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestUntilTimeout(t *testing.T) {
	policy := fastPolicy()
	policy.Timeout = 20 * time.Millisecond

	_, err := Until(context.Background(), policy, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Until() error = %v, want ErrNotReady", err)
	}
}

func TestUntilContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Until(ctx, fastPolicy(), func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Until() error = %v, want deadline exceeded", err)
	}
}
