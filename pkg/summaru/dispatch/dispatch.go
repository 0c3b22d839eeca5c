// Package dispatch runs generation requests against an ordered list of model
// backends, failing over on transient errors and applying per-model
// circuit-breaking cooldowns. All concurrent requests share one status table.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Finish classifies how a generation attempt ended.
type Finish int

const (
	// FinishSuccess means the response completed for an accepted reason
	// (ran to the end, or was truncated by the output token limit).
	FinishSuccess Finish = iota

	// FinishBlocked means the response was rejected for policy reasons.
	// Terminal for the whole dispatch: another model would refuse too.
	FinishBlocked

	// FinishSoft covers every other finish reason. The model gets no
	// penalty and the dispatcher moves on to the next one.
	FinishSoft
)

// Result is a single generation attempt's outcome.
type Result struct {
	// Text is the generated text (success only).
	Text string

	// Finish classifies the model's finish reason.
	Finish Finish

	// Reason is the raw finish/block reason label, surfaced to users on
	// policy blocks.
	Reason string

	// PromptBlocked is non-empty when the request itself was rejected
	// before generation, carrying the block reason.
	PromptBlocked string
}

// Generator is the abstract generation backend.
type Generator interface {
	// Generate runs one attempt against the named model. Errors must be
	// wrapped so they match ErrRateLimited (transient overload) or
	// ErrInputTooLarge (prompt exceeds the model's context window);
	// anything else is treated as fatal.
	Generate(ctx context.Context, model, prompt, systemInstruction string) (Result, error)
}

// Sentinel errors for Generator implementations and dispatch outcomes.
var (
	// ErrRateLimited marks a transient overload from the backend.
	ErrRateLimited = fmt.Errorf("dispatch: model is rate-limited")

	// ErrInputTooLarge marks a prompt that exceeds one model's capacity.
	ErrInputTooLarge = fmt.Errorf("dispatch: prompt exceeds model input limit")

	// ErrAllUnavailable is returned when every model is on cooldown before
	// any attempt is made.
	ErrAllUnavailable = fmt.Errorf("dispatch: all models are on cooldown")

	// ErrAllBusy is returned when every eligible model was tried without a
	// terminal outcome.
	ErrAllBusy = fmt.Errorf("dispatch: all models are busy or rate-limited")

	// ErrPromptTooLarge is returned when the dispatch exhausted all models
	// and at least one of them rejected the prompt for size.
	ErrPromptTooLarge = fmt.Errorf("dispatch: prompt too large for every available model")
)

// BlockedError reports a policy block, terminal for the whole dispatch.
type BlockedError struct {
	// Stage is "input" when the prompt was rejected before generation,
	// "output" when the generated response was rejected.
	Stage string

	// Reason is the policy category reported by the backend.
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("dispatch: %s blocked for %s", e.Stage, e.Reason)
}

// status is the shared per-model state. availableAfter in the future means
// the model is cooling down; failCount tracks consecutive rate limits so
// repeated failures escalate to the long cooldown.
type status struct {
	availableAfter time.Time
	failCount      int
}

// Config holds dispatcher tuning.
type Config struct {
	// Models is the fallback priority order.
	Models []string `yaml:"models"`

	// ShortCooldown is applied after a single rate-limit failure.
	ShortCooldown time.Duration `yaml:"short_cooldown"`

	// LongCooldown is applied after repeated rate-limit failures.
	LongCooldown time.Duration `yaml:"long_cooldown"`
}

// Dispatcher tries models in priority order, sharing cooldown state across
// concurrent requests.
type Dispatcher struct {
	gen    Generator
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	status map[string]*status
}

// New creates a Dispatcher for the configured model list.
func New(gen Generator, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	st := make(map[string]*status, len(cfg.Models))
	for _, m := range cfg.Models {
		st[m] = &status{}
	}
	return &Dispatcher{
		gen:    gen,
		cfg:    cfg,
		logger: logger.With("component", "dispatch"),
		now:    time.Now,
		status: st,
	}
}

// SetNow overrides the clock. Tests only.
func (d *Dispatcher) SetNow(now func() time.Time) { d.now = now }

// AnyAvailable reports whether at least one model is off cooldown, for
// cheap pre-flight checks before doing retrieval work.
func (d *Dispatcher) AnyAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for _, m := range d.cfg.Models {
		if !d.status[m].availableAfter.After(now) {
			return true
		}
	}
	return false
}

// snapshot returns the model's current state for the optimistic
// already-penalized check.
func (d *Dispatcher) snapshot(model string) (time.Time, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status[model]
	return st.availableAfter, st.failCount
}

// Dispatch runs prompt against the model list in priority order and returns
// the generated text together with the model that produced it.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, systemInstruction string) (string, string, error) {
	attempted := 0
	promptTooLarge := false

	for _, model := range d.cfg.Models {
		d.mu.Lock()
		onCooldown := d.status[model].availableAfter.After(d.now())
		d.mu.Unlock()
		if onCooldown {
			d.logger.Debug("skipping model on cooldown", "model", model)
			continue
		}
		attempted++

		// Snapshot before the attempt so a concurrent request that already
		// penalized this model is detected and the penalty not doubled.
		availableBefore, failsBefore := d.snapshot(model)

		d.logger.Debug("attempting model", "model", model)
		res, err := d.gen.Generate(ctx, model, prompt, systemInstruction)
		if err != nil {
			switch {
			case errors.Is(err, ErrInputTooLarge):
				// No penalty; a smaller-context model failing says nothing
				// about the larger ones further down the list.
				d.logger.Warn("model input limit exceeded, trying next", "model", model)
				promptTooLarge = true
				continue

			case errors.Is(err, ErrRateLimited):
				d.penalize(model, availableBefore, failsBefore)
				continue

			default:
				d.logger.Error("unrecoverable model error", "model", model, "error", err)
				return "", "", fmt.Errorf("dispatch: model %s failed: %w", model, err)
			}
		}

		if res.PromptBlocked != "" {
			d.logger.Warn("prompt blocked", "model", model, "reason", res.PromptBlocked)
			return "", "", &BlockedError{Stage: "input", Reason: res.PromptBlocked}
		}

		switch res.Finish {
		case FinishBlocked:
			d.logger.Warn("response blocked", "model", model, "reason", res.Reason)
			return "", "", &BlockedError{Stage: "output", Reason: res.Reason}

		case FinishSuccess:
			d.mu.Lock()
			st := d.status[model]
			st.availableAfter = time.Time{}
			st.failCount = 0
			d.mu.Unlock()
			d.logger.Info("generation succeeded", "model", model)
			return res.Text, model, nil

		default:
			// Soft failure: unexpected finish reason, no penalty.
			d.logger.Warn("model finished unexpectedly, trying next", "model", model, "reason", res.Reason)
			continue
		}
	}

	if attempted == 0 {
		return "", "", ErrAllUnavailable
	}
	if promptTooLarge {
		return "", "", ErrPromptTooLarge
	}
	return "", "", ErrAllBusy
}

// penalize applies a rate-limit cooldown unless a concurrent request
// already advanced this model's state past the snapshot. The check is
// optimistic, not a lock: the worst case is one skipped (not doubled)
// penalty.
func (d *Dispatcher) penalize(model string, availableBefore time.Time, failsBefore int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.status[model]
	if st.availableAfter.After(availableBefore) || st.failCount > failsBefore {
		d.logger.Warn("model already penalized by a concurrent request", "model", model)
		return
	}

	st.failCount++
	cooldown := d.cfg.ShortCooldown
	if st.failCount > 1 {
		cooldown = d.cfg.LongCooldown
	}
	st.availableAfter = d.now().Add(cooldown)
	d.logger.Warn("model rate-limited, applying cooldown",
		"model", model, "fail_count", st.failCount, "cooldown", cooldown)
}
