package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLinear_Delays(t *testing.T) {
	b := &Linear{Step: 10 * time.Millisecond}
	for i, want := range []time.Duration{10, 20, 30} {
		if got := b.NextBackOff(); got != want*time.Millisecond {
			t.Errorf("attempt %d: got %v, want %v", i+1, got, want*time.Millisecond)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 10*time.Millisecond {
		t.Errorf("after reset: got %v", got)
	}
}

func TestDo_RetriesUntilExhausted(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), 2, time.Millisecond, func() (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnSuccess(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), 5, time.Millisecond, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil || v != "ok" || calls != 2 {
		t.Fatalf("got v=%q err=%v calls=%d", v, err, calls)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), 0, time.Millisecond, func() (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single failing call, err=%v calls=%d", err, calls)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	_, err := Do(ctx, 5, time.Hour, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry after cancel, got %d calls", calls)
	}
}
