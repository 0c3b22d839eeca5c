package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// SyncState tracks startup progress. READY is terminal: once reached, the
// synchronizer never buffers again for the lifetime of the process.
type SyncState int32

const (
	StateCold SyncState = iota
	StateBackfilling
	StateDraining
	StateReady
)

// String returns a human-readable label for the state.
func (s SyncState) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateBackfilling:
		return "backfilling"
	case StateDraining:
		return "draining"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// EventKind identifies a live cache mutation.
type EventKind int

const (
	EventUpsert EventKind = iota
	EventUpdate
	EventRemove
	EventRemoveMany
	EventDropChannel
)

// Event is a normalized live mutation from the platform gateway.
type Event struct {
	Kind      EventKind
	ChannelID string

	// Message is set for EventUpsert and EventUpdate.
	Message Message

	// MessageID is set for EventRemove.
	MessageID string

	// MessageIDs is set for EventRemoveMany.
	MessageIDs []string
}

// SyncConfig bounds the startup backfill.
type SyncConfig struct {
	// PageSize is how many messages each backward fetch requests.
	PageSize int `yaml:"page_size"`

	// PopulationAmount is how many valid messages to accumulate per channel.
	PopulationAmount int `yaml:"population_amount"`

	// MaxFetch caps the total messages examined per channel, protecting
	// against channels saturated with invalid (bot-only) history.
	MaxFetch int `yaml:"max_fetch"`
}

// Synchronizer drives the cold start: it backfills every known channel in
// parallel while buffering live events, then replays the buffer in arrival
// order exactly once before declaring the store ready. After that, events
// apply synchronously as they arrive.
type Synchronizer struct {
	store   *Store
	fetcher Fetcher
	cfg     SyncConfig
	logger  *slog.Logger

	mu      sync.Mutex
	state   SyncState
	pending []func()
}

// NewSynchronizer creates a Synchronizer in the COLD state.
func NewSynchronizer(store *Store, fetcher Fetcher, cfg SyncConfig, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.With("component", "sync"),
	}
}

// State returns the current startup state.
func (sy *Synchronizer) State() SyncState {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	return sy.state
}

// Ready reports whether the cache is fully synchronized.
func (sy *Synchronizer) Ready() bool {
	return sy.State() == StateReady
}

// HandleEvent applies a live mutation. Before the store is ready the event
// is buffered as a deferred callback; afterwards it applies immediately.
// Buffered events replay in FIFO order during the drain, so no live event
// is lost or reordered relative to other live events.
func (sy *Synchronizer) HandleEvent(evt Event) {
	sy.mu.Lock()
	if sy.state != StateReady {
		sy.pending = append(sy.pending, func() { sy.apply(evt) })
		sy.mu.Unlock()
		return
	}
	sy.mu.Unlock()

	sy.apply(evt)
}

func (sy *Synchronizer) apply(evt Event) {
	switch evt.Kind {
	case EventUpsert:
		sy.store.Upsert(evt.Message)
	case EventUpdate:
		sy.store.Update(evt.Message)
	case EventRemove:
		sy.store.Remove(evt.ChannelID, evt.MessageID)
	case EventRemoveMany:
		sy.store.RemoveMany(evt.ChannelID, evt.MessageIDs)
	case EventDropChannel:
		sy.store.DropChannel(evt.ChannelID)
	}
}

// Run performs the full COLD → BACKFILLING → DRAINING → READY sequence for
// the given channels. It blocks until the store is ready and must be called
// exactly once.
func (sy *Synchronizer) Run(ctx context.Context, channelIDs []string) error {
	sy.mu.Lock()
	if sy.state != StateCold {
		sy.mu.Unlock()
		return errors.New("history: synchronizer already started")
	}
	sy.state = StateBackfilling
	sy.mu.Unlock()

	sy.logger.Info("starting cache population", "channels", len(channelIDs),
		"population_amount", sy.cfg.PopulationAmount, "page_size", sy.cfg.PageSize)

	var wg sync.WaitGroup
	for _, channelID := range channelIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sy.populateChannel(ctx, id)
		}(channelID)
	}
	wg.Wait()

	sy.mu.Lock()
	sy.state = StateDraining
	sy.logger.Info("backfill complete, draining buffered events", "events", len(sy.pending))
	sy.mu.Unlock()

	// Drain until no event arrived mid-drain, then flip to READY while
	// holding the lock so nothing slips between the last drain and the flip.
	for {
		sy.mu.Lock()
		if len(sy.pending) == 0 {
			sy.state = StateReady
			sy.mu.Unlock()
			break
		}
		queued := sy.pending
		sy.pending = nil
		sy.mu.Unlock()

		for _, fn := range queued {
			fn()
		}
	}

	sy.logger.Info("cache fully synchronized")
	return nil
}

// populateChannel pages backward through one channel's history, accumulating
// up to PopulationAmount valid messages, and installs them as a fresh cache
// in chronological order. Stops early when a page comes back short (history
// exhausted) or the fetch ceiling is hit. A permission error skips the
// channel without failing the others.
func (sy *Synchronizer) populateChannel(ctx context.Context, channelID string) {
	var collected []Message
	var beforeID string

	pages := (sy.cfg.MaxFetch + sy.cfg.PageSize - 1) / sy.cfg.PageSize

outer:
	for i := 0; i < pages; i++ {
		batch, err := sy.fetcher.FetchPage(ctx, channelID, beforeID, sy.cfg.PageSize)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				sy.logger.Warn("skipping channel backfill, missing permissions", "channel_id", channelID)
			} else {
				sy.logger.Error("channel backfill failed", "channel_id", channelID, "error", err)
			}
			return
		}
		if len(batch) == 0 {
			break
		}

		for _, msg := range batch {
			if msg.Valid() {
				collected = append(collected, msg)
				if len(collected) >= sy.cfg.PopulationAmount {
					break outer
				}
			}
		}
		beforeID = batch[len(batch)-1].ID

		if len(batch) < sy.cfg.PageSize {
			break
		}
	}

	if len(collected) == 0 {
		sy.logger.Debug("no valid messages found to cache", "channel_id", channelID)
		return
	}

	// Fetched newest-first; reverse so the cache is built oldest-first and
	// eviction ordering stays correct.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	sy.store.ReplaceChannel(channelID, collected)
	sy.logger.Debug("channel backfilled", "channel_id", channelID, "cached", sy.store.Size(channelID))
}
