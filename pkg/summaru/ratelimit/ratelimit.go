// Package ratelimit enforces a per-user sliding-window command quota.
// Windows are pruned lazily on admission and swept periodically so idle
// users don't accumulate in memory.
package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the rate limit parameters.
type Config struct {
	// Window is the sliding window size.
	Window time.Duration `yaml:"window"`

	// Count is the maximum admissions per user within the window.
	Count int `yaml:"count"`

	// SweepInterval is how often idle users are purged from memory.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the stock limits: 30 commands per 10 minutes,
// swept every 2 hours.
func DefaultConfig() Config {
	return Config{
		Window:        10 * time.Minute,
		Count:         30,
		SweepInterval: 2 * time.Hour,
	}
}

// LimitedError reports a rejected admission and how long to wait.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("ratelimit: too many requests, retry in %s", e.RetryAfter)
}

// RetryAfterSeconds returns the wait rounded up to whole seconds, for
// user-facing messages.
func (e *LimitedError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Limiter tracks admission timestamps per user.
type Limiter struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	users map[string][]time.Time

	cron *cron.Cron
}

// New creates a Limiter.
func New(cfg Config, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		cfg:    cfg,
		logger: logger.With("component", "ratelimit"),
		now:    time.Now,
		users:  make(map[string][]time.Time),
	}
}

// SetNow overrides the clock. Tests only.
func (l *Limiter) SetNow(now func() time.Time) { l.now = now }

// Admit records one admission for userID, or rejects it with a LimitedError
// carrying the wait until the oldest in-window admission expires.
func (l *Limiter) Admit(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Prune timestamps that slid out of the window.
	recent := l.users[userID][:0]
	for _, ts := range l.users[userID] {
		if now.Sub(ts) < l.cfg.Window {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.cfg.Count {
		retryAfter := recent[0].Add(l.cfg.Window).Sub(now)
		l.users[userID] = recent
		l.logger.Info("user rate-limited", "user_id", userID, "retry_after", retryAfter)
		return &LimitedError{RetryAfter: retryAfter}
	}

	l.users[userID] = append(recent, now)
	return nil
}

// Sweep removes users whose newest admission has left the window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cleaned := 0
	for userID, timestamps := range l.users {
		if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > l.cfg.Window {
			delete(l.users, userID)
			cleaned++
		}
	}
	if cleaned > 0 {
		l.logger.Debug("swept idle rate limit entries", "cleaned", cleaned)
	}
}

// StartSweeper schedules Sweep at the configured interval. Stop with
// StopSweeper on shutdown.
func (l *Limiter) StartSweeper() {
	l.cron = cron.New()
	l.cron.Schedule(cron.Every(l.cfg.SweepInterval), cron.FuncJob(l.Sweep))
	l.cron.Start()
}

// StopSweeper cancels the periodic sweep.
func (l *Limiter) StopSweeper() {
	if l.cron != nil {
		l.cron.Stop()
	}
}
