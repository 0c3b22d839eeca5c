// Package assistant orchestrates a Summaru request end to end: rate-limit
// admission, readiness gating, context retrieval, prompt assembly, and
// dispatch across the model fallback chain.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/summaru/pkg/summaru/dispatch"
	"github.com/jholhewres/summaru/pkg/summaru/history"
	"github.com/jholhewres/summaru/pkg/summaru/prompt"
	"github.com/jholhewres/summaru/pkg/summaru/ratelimit"
)

// Kind selects the command flavor.
type Kind int

const (
	// KindSummarize condenses the retrieved conversation.
	KindSummarize Kind = iota

	// KindAsk answers a question, with the conversation as optional context.
	KindAsk
)

// Request is one user command.
type Request struct {
	Kind      Kind
	ChannelID string
	UserID    string

	// Mode selects how much context to retrieve.
	Mode history.Mode

	// Instructions are optional steering for KindSummarize.
	Instructions string

	// Question is the user's request for KindAsk.
	Question string
}

// Response is a completed generation.
type Response struct {
	// Text is the generated reply.
	Text string

	// Model is the model that produced it.
	Model string

	// Processed is how many context messages were used.
	Processed int

	// ContextLabel describes the retrieval scope for display
	// ("The last 30 messages").
	ContextLabel string
}

// Assistant wires the core subsystems together.
type Assistant struct {
	sync       *history.Synchronizer
	retriever  *history.Retriever
	dispatcher *dispatch.Dispatcher
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// New creates an Assistant.
func New(sync *history.Synchronizer, retriever *history.Retriever, dispatcher *dispatch.Dispatcher, limiter *ratelimit.Limiter, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		sync:       sync,
		retriever:  retriever,
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     logger.With("component", "assistant"),
	}
}

// Ready reports whether context-requiring commands can be served yet.
func (a *Assistant) Ready() bool { return a.sync.Ready() }

// HandleEvent forwards a live platform event into the cache pipeline.
func (a *Assistant) HandleEvent(evt history.Event) { a.sync.HandleEvent(evt) }

// Handle runs one command. Errors are typed: history.ErrNotReady,
// ratelimit.LimitedError, history.ErrInsufficientContext,
// history.ErrNoPriorMessage, dispatch.ErrAllUnavailable,
// dispatch.BlockedError, dispatch.ErrPromptTooLarge, dispatch.ErrAllBusy.
func (a *Assistant) Handle(ctx context.Context, req Request) (*Response, error) {
	reqID := uuid.NewString()
	logger := a.logger.With("request_id", reqID, "channel_id", req.ChannelID, "user_id", req.UserID)

	needsContext := req.Mode.Kind != history.ModeNone
	if needsContext && !a.sync.Ready() {
		return nil, history.ErrNotReady
	}

	if err := a.limiter.Admit(req.UserID); err != nil {
		return nil, err
	}

	// Pre-flight: don't spend retrieval work when every model is cooling down.
	if !a.dispatcher.AnyAvailable() {
		logger.Info("pre-flight check failed, all models on cooldown")
		return nil, dispatch.ErrAllUnavailable
	}

	started := time.Now()
	msgs, err := a.retriever.Retrieve(ctx, req.ChannelID, req.Mode)
	if err != nil {
		return nil, err
	}
	logger.Debug("context retrieved", "messages", len(msgs), "took", time.Since(started))

	formatted := history.FormatByDay(msgs)

	var p, system string
	switch req.Kind {
	case KindSummarize:
		p = prompt.Summarize(formatted, req.Instructions)
		system = prompt.SummarizeSystemInstruction
	case KindAsk:
		p = prompt.Ask(formatted, req.Question)
		system = prompt.AskSystemInstruction
	default:
		return nil, fmt.Errorf("assistant: unknown command kind %d", req.Kind)
	}

	text, model, err := a.dispatcher.Dispatch(ctx, p, system)
	if err != nil {
		return nil, err
	}
	logger.Info("request completed", "model", model, "context_messages", len(msgs), "took", time.Since(started))

	return &Response{
		Text:         text,
		Model:        model,
		Processed:    len(msgs),
		ContextLabel: ContextLabel(req.Mode),
	}, nil
}

// ContextLabel renders a human-readable description of a retrieval mode.
func ContextLabel(mode history.Mode) string {
	switch mode.Kind {
	case history.ModeAmount:
		return fmt.Sprintf("The last %d messages", mode.Count)
	case history.ModeDuration:
		if mode.Span >= 24*time.Hour && mode.Span%(24*time.Hour) == 0 {
			return fmt.Sprintf("Messages from the last %d day(s)", int(mode.Span/(24*time.Hour)))
		}
		return fmt.Sprintf("Messages from the last %.3g hour(s)", mode.Span.Hours())
	case history.ModeSinceLast:
		return "Messages since your last message"
	default:
		return "Without message context"
	}
}
