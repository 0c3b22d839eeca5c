package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func newTestLimiter(count int, window time.Duration) (*Limiter, *time.Time) {
	l := New(Config{Window: window, Count: count, SweepInterval: time.Hour}, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.SetNow(func() time.Time { return now })
	return l, &now
}

func TestAdmitUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(3, 10*time.Minute)

	for i := 0; i < 3; i++ {
		if err := l.Admit("user"); err != nil {
			t.Fatalf("admission %d should pass: %v", i+1, err)
		}
	}
}

func TestAdmitRejectsOverLimit(t *testing.T) {
	l, now := newTestLimiter(2, 10*time.Minute)

	l.Admit("user")
	*now = now.Add(time.Minute)
	l.Admit("user")
	*now = now.Add(time.Minute)

	err := l.Admit("user")
	var limited *LimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected LimitedError, got %v", err)
	}
	// Oldest admission at 12:00, window 10m, now 12:02.
	if limited.RetryAfter != 8*time.Minute {
		t.Errorf("RetryAfter = %v, want 8m", limited.RetryAfter)
	}
}

func TestAdmitWindowSlides(t *testing.T) {
	l, now := newTestLimiter(2, 10*time.Minute)

	l.Admit("user")
	l.Admit("user")
	if err := l.Admit("user"); err == nil {
		t.Fatal("third admission should be rejected")
	}

	// Once the oldest admission leaves the window, capacity frees up.
	*now = now.Add(10*time.Minute + time.Second)
	if err := l.Admit("user"); err != nil {
		t.Errorf("admission after window slide should pass: %v", err)
	}
}

func TestAdmitIsPerUser(t *testing.T) {
	l, _ := newTestLimiter(1, 10*time.Minute)

	if err := l.Admit("alice"); err != nil {
		t.Fatalf("alice should pass: %v", err)
	}
	if err := l.Admit("bob"); err != nil {
		t.Errorf("bob has their own window: %v", err)
	}
	if err := l.Admit("alice"); err == nil {
		t.Error("alice's second admission should be rejected")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		retryAfter time.Duration
		want       int
	}{
		{900 * time.Millisecond, 1},
		{1 * time.Second, 1},
		{59*time.Second + time.Millisecond, 60},
	}
	for _, tc := range cases {
		e := &LimitedError{RetryAfter: tc.retryAfter}
		if got := e.RetryAfterSeconds(); got != tc.want {
			t.Errorf("RetryAfterSeconds(%v) = %d, want %d", tc.retryAfter, got, tc.want)
		}
	}
}

func TestSweepRemovesIdleUsers(t *testing.T) {
	l, now := newTestLimiter(5, 10*time.Minute)

	l.Admit("idle")
	*now = now.Add(5 * time.Minute)
	l.Admit("active")

	*now = now.Add(6 * time.Minute)
	l.Sweep()

	l.mu.Lock()
	_, idleKept := l.users["idle"]
	_, activeKept := l.users["active"]
	l.mu.Unlock()

	if idleKept {
		t.Error("idle user should be swept")
	}
	if !activeKept {
		t.Error("active user must survive the sweep")
	}
}
