package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/summaru/pkg/summaru/dispatch"
	"github.com/jholhewres/summaru/pkg/summaru/history"
	"github.com/jholhewres/summaru/pkg/summaru/ratelimit"
)

// stubGen returns a fixed successful generation and remembers the prompt.
type stubGen struct {
	lastPrompt string
	lastSystem string
}

func (g *stubGen) Generate(_ context.Context, _, prompt, system string) (dispatch.Result, error) {
	g.lastPrompt = prompt
	g.lastSystem = system
	return dispatch.Result{Text: "generated", Finish: dispatch.FinishSuccess}, nil
}

// emptyFetcher has no history to serve.
type emptyFetcher struct{}

func (emptyFetcher) FetchPage(context.Context, string, string, int) ([]history.Message, error) {
	return nil, nil
}

func newTestAssistant(t *testing.T, gen dispatch.Generator, ready bool) (*Assistant, *history.Store) {
	t.Helper()

	store := history.NewStore(100, nil)
	sy := history.NewSynchronizer(store, emptyFetcher{}, history.SyncConfig{
		PageSize: 100, PopulationAmount: 100, MaxFetch: 200,
	}, nil)
	if ready {
		if err := sy.Run(context.Background(), nil); err != nil {
			t.Fatal(err)
		}
	}

	retriever := history.NewRetriever(store, emptyFetcher{}, history.RetrieveConfig{
		MaxMessages: 100, PageSize: 100, BufferMultiplier: 1.5, LowerFetchFloor: 100,
	}, nil)

	dispatcher := dispatch.New(gen, dispatch.Config{
		Models:        []string{"model-a"},
		ShortCooldown: time.Minute,
		LongCooldown:  time.Hour,
	}, nil)

	limiter := ratelimit.New(ratelimit.Config{
		Window: 10 * time.Minute, Count: 30, SweepInterval: time.Hour,
	}, nil)

	return New(sy, retriever, dispatcher, limiter, nil), store
}

func TestHandleNotReadyGatesContextModes(t *testing.T) {
	a, _ := newTestAssistant(t, &stubGen{}, false)

	_, err := a.Handle(context.Background(), Request{
		Kind: KindSummarize, ChannelID: "ch", UserID: "u",
		Mode: history.Mode{Kind: history.ModeAmount, Count: 5},
	})
	if !errors.Is(err, history.ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestHandleNoContextModeSkipsReadinessGate(t *testing.T) {
	gen := &stubGen{}
	a, _ := newTestAssistant(t, gen, false)

	resp, err := a.Handle(context.Background(), Request{
		Kind: KindAsk, ChannelID: "ch", UserID: "u",
		Mode: history.Mode{Kind: history.ModeNone}, Question: "hello?",
	})
	if err != nil {
		t.Fatalf("ModeNone must work before the cache is ready: %v", err)
	}
	if resp.Text != "generated" || resp.Model != "model-a" {
		t.Errorf("got (%q, %q)", resp.Text, resp.Model)
	}
	if resp.Processed != 0 {
		t.Errorf("Processed = %d, want 0", resp.Processed)
	}
	if !strings.Contains(gen.lastPrompt, "hello?") {
		t.Errorf("question missing from prompt: %q", gen.lastPrompt)
	}
}

func TestHandleSummarizeWithContext(t *testing.T) {
	gen := &stubGen{}
	a, store := newTestAssistant(t, gen, true)

	for i := 1; i <= 3; i++ {
		store.Upsert(history.Message{
			ID:         "00000" + string(rune('0'+i)),
			ChannelID:  "ch",
			CreatedAt:  time.Date(2025, 6, 1, 12, i, 0, 0, time.UTC),
			Content:    "hello",
			AuthorID:   "u2",
			AuthorName: "alice",
		})
	}

	resp, err := a.Handle(context.Background(), Request{
		Kind: KindSummarize, ChannelID: "ch", UserID: "u",
		Mode: history.Mode{Kind: history.ModeAmount, Count: 3},
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if resp.Processed != 3 {
		t.Errorf("Processed = %d, want 3", resp.Processed)
	}
	if resp.ContextLabel != "The last 3 messages" {
		t.Errorf("ContextLabel = %q", resp.ContextLabel)
	}
	if !strings.Contains(gen.lastPrompt, "--- 2025-06-01 ---") {
		t.Errorf("formatted history missing from prompt: %q", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastSystem, "summarizes Discord chat conversations") {
		t.Errorf("wrong system instruction: %q", gen.lastSystem)
	}
}

func TestHandleRateLimited(t *testing.T) {
	a, _ := newTestAssistant(t, &stubGen{}, true)

	// Exhaust the quota.
	for i := 0; i < 30; i++ {
		_, err := a.Handle(context.Background(), Request{
			Kind: KindAsk, ChannelID: "ch", UserID: "u",
			Mode: history.Mode{Kind: history.ModeNone}, Question: "q",
		})
		if err != nil {
			t.Fatalf("admission %d failed: %v", i+1, err)
		}
	}

	_, err := a.Handle(context.Background(), Request{
		Kind: KindAsk, ChannelID: "ch", UserID: "u",
		Mode: history.Mode{Kind: history.ModeNone}, Question: "q",
	})
	var limited *ratelimit.LimitedError
	if !errors.As(err, &limited) {
		t.Errorf("expected LimitedError, got %v", err)
	}
}

func TestHandleInsufficientContext(t *testing.T) {
	a, _ := newTestAssistant(t, &stubGen{}, true)

	_, err := a.Handle(context.Background(), Request{
		Kind: KindSummarize, ChannelID: "empty", UserID: "u",
		Mode: history.Mode{Kind: history.ModeAmount, Count: 10},
	})
	if !errors.Is(err, history.ErrInsufficientContext) {
		t.Errorf("expected ErrInsufficientContext, got %v", err)
	}
}

func TestContextLabel(t *testing.T) {
	cases := []struct {
		name string
		mode history.Mode
		want string
	}{
		{"amount", history.Mode{Kind: history.ModeAmount, Count: 30}, "The last 30 messages"},
		{"whole days", history.Mode{Kind: history.ModeDuration, Span: 48 * time.Hour}, "Messages from the last 2 day(s)"},
		{"hours", history.Mode{Kind: history.ModeDuration, Span: 90 * time.Minute}, "Messages from the last 1.5 hour(s)"},
		{"since last", history.Mode{Kind: history.ModeSinceLast}, "Messages since your last message"},
		{"none", history.Mode{Kind: history.ModeNone}, "Without message context"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContextLabel(tc.mode); got != tc.want {
				t.Errorf("ContextLabel = %q, want %q", got, tc.want)
			}
		})
	}
}
