package indexer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyStopsAfterMaxRetries(t *testing.T) {
	p := newRetryPolicy(2, time.Nanosecond)
	calls := 0
	err := p.do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 3 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestRetryPolicyHonorsCancel(t *testing.T) {
	p := newRetryPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	p := newRetryPolicy(-1, 0)
	if p.maxRetries != 0 || p.baseDelay != 100*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}
