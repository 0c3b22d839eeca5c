package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ModeKind selects how much conversation context a request wants.
type ModeKind int

const (
	// ModeNone requests no context at all.
	ModeNone ModeKind = iota

	// ModeAmount requests the last Count messages.
	ModeAmount

	// ModeDuration requests messages from the trailing Span.
	ModeDuration

	// ModeSinceLast requests everything after the requester's own most
	// recent message.
	ModeSinceLast
)

// Mode describes one retrieval request.
type Mode struct {
	Kind ModeKind

	// Count is the requested message count for ModeAmount.
	Count int

	// Span is the trailing window for ModeDuration.
	Span time.Duration

	// ActorID is the requesting user for ModeSinceLast.
	ActorID string
}

// RetrieveConfig bounds retrieval work.
type RetrieveConfig struct {
	// MaxMessages is the global cap on context size for any mode.
	MaxMessages int `yaml:"max_messages"`

	// PageSize is how many messages each backward fetch requests.
	PageSize int `yaml:"page_size"`

	// BufferMultiplier inflates the fetch budget so pages full of invalid
	// (bot/empty) messages don't starve the request.
	BufferMultiplier float64 `yaml:"buffer_multiplier"`

	// LowerFetchFloor keeps the budget from collapsing when the cache has
	// already supplied most of the needed messages.
	LowerFetchFloor int `yaml:"lower_fetch_floor"`
}

// collector accumulates messages newest-first, deduplicated by id.
type collector struct {
	msgs []Message
	seen map[string]struct{}
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

func (c *collector) add(msg Message) {
	if _, dup := c.seen[msg.ID]; dup {
		return
	}
	c.seen[msg.ID] = struct{}{}
	c.msgs = append(c.msgs, msg)
}

func (c *collector) size() int { return len(c.msgs) }

// oldestID returns the id of the oldest collected message, the cursor for
// the next backward fetch. Empty means "start from the newest message".
func (c *collector) oldestID() string {
	if len(c.msgs) == 0 {
		return ""
	}
	return c.msgs[len(c.msgs)-1].ID
}

// chronological reverses the newest-first accumulation in place.
func (c *collector) chronological() []Message {
	for i, j := 0, len(c.msgs)-1; i < j; i, j = i+1, j-1 {
		c.msgs[i], c.msgs[j] = c.msgs[j], c.msgs[i]
	}
	return c.msgs
}

// Retriever assembles chronological context for a channel, reading the cache
// first and falling back to paginated backward fetches only when the cache
// cannot satisfy the request.
type Retriever struct {
	store   *Store
	fetcher Fetcher
	cfg     RetrieveConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewRetriever creates a Retriever over the given store and fetcher.
func NewRetriever(store *Store, fetcher Fetcher, cfg RetrieveConfig, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.With("component", "retriever"),
		now:     time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (r *Retriever) SetNow(now func() time.Time) { r.now = now }

// Retrieve returns the requested context in chronological order (oldest
// first), capped at MaxMessages. ModeNone always succeeds with an empty
// slice and touches neither the cache nor the fetcher. For every other mode,
// finding no usable message after exhausting all sources is
// ErrInsufficientContext, and ModeSinceLast without a boundary message is
// ErrNoPriorMessage.
func (r *Retriever) Retrieve(ctx context.Context, channelID string, mode Mode) ([]Message, error) {
	if mode.Kind == ModeNone {
		return nil, nil
	}

	c := newCollector()
	var err error
	switch mode.Kind {
	case ModeAmount:
		err = r.retrieveAmount(ctx, c, channelID, mode.Count)
	case ModeDuration:
		err = r.retrieveDuration(ctx, c, channelID, mode.Span)
	case ModeSinceLast:
		err = r.retrieveSinceLast(ctx, c, channelID, mode.ActorID)
	default:
		return nil, fmt.Errorf("history: unknown retrieval mode %d", mode.Kind)
	}
	if err != nil {
		return nil, err
	}

	if c.size() < 1 {
		return nil, ErrInsufficientContext
	}
	return c.chronological(), nil
}

// fetchBudget computes how many pages the fetch loop may request: enough for
// the remaining messages with headroom for invalid ones, never below the
// configured floor.
func (r *Retriever) fetchBudget(remaining int) int {
	need := math.Max(float64(remaining)*r.cfg.BufferMultiplier, float64(r.cfg.LowerFetchFloor))
	return int(math.Ceil(need / float64(r.cfg.PageSize)))
}

// retrieveAmount collects the newest count messages, cache first.
func (r *Retriever) retrieveAmount(ctx context.Context, c *collector, channelID string, count int) error {
	if count > r.cfg.MaxMessages {
		count = r.cfg.MaxMessages
	}

	for _, msg := range r.store.SnapshotNewestFirst(channelID) {
		if c.size() >= count {
			break
		}
		// Cached messages passed the validity predicate on insertion.
		c.add(msg)
	}
	r.logger.Debug("cache read", "mode", "amount", "channel_id", channelID, "hit", c.size())

	if c.size() >= count {
		return nil
	}

	beforeID := c.oldestID()
	pages := r.fetchBudget(count - c.size())
outer:
	for i := 0; i < pages; i++ {
		batch, err := r.fetcher.FetchPage(ctx, channelID, beforeID, r.cfg.PageSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, msg := range batch {
			if c.size() >= count {
				break outer
			}
			if msg.Valid() {
				c.add(msg)
			}
		}
		beforeID = batch[len(batch)-1].ID

		if len(batch) < r.cfg.PageSize {
			break
		}
	}
	return nil
}

// retrieveDuration collects messages newer than now-span, cache first,
// stopping the moment an older message is seen.
func (r *Retriever) retrieveDuration(ctx context.Context, c *collector, channelID string, span time.Duration) error {
	cutoff := r.now().Add(-span)

	reachedCutoff := false
	for _, msg := range r.store.SnapshotNewestFirst(channelID) {
		if msg.CreatedAt.Before(cutoff) {
			reachedCutoff = true
			break
		}
		if c.size() >= r.cfg.MaxMessages {
			break
		}
		c.add(msg)
	}
	r.logger.Debug("cache read", "mode", "duration", "channel_id", channelID, "hit", c.size())

	// Either the cache reaches past the window, so everything inside it was
	// already collected, or the cap is hit. No fetch needed in either case.
	if reachedCutoff || c.size() >= r.cfg.MaxMessages {
		return nil
	}

	beforeID := c.oldestID()
	pages := r.fetchBudget(r.cfg.MaxMessages - c.size())
outer:
	for i := 0; i < pages; i++ {
		batch, err := r.fetcher.FetchPage(ctx, channelID, beforeID, r.cfg.PageSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, msg := range batch {
			if msg.CreatedAt.Before(cutoff) {
				break outer
			}
			if c.size() >= r.cfg.MaxMessages {
				break outer
			}
			if msg.Valid() {
				c.add(msg)
			}
		}
		beforeID = batch[len(batch)-1].ID

		if len(batch) < r.cfg.PageSize {
			break
		}
	}
	return nil
}

// retrieveSinceLast collects messages until one authored by actorID is
// found. The boundary message itself is excluded. No boundary anywhere in
// the search budget means the whole mode fails: partial context would
// misrepresent "since your last message".
func (r *Retriever) retrieveSinceLast(ctx context.Context, c *collector, channelID, actorID string) error {
	found := false
	for _, msg := range r.store.SnapshotNewestFirst(channelID) {
		if msg.AuthorID == actorID {
			found = true
			break
		}
		if c.size() >= r.cfg.MaxMessages {
			break
		}
		c.add(msg)
	}
	r.logger.Debug("cache read", "mode", "since_last", "channel_id", channelID, "hit", c.size(), "boundary", found)

	if !found && c.size() < r.cfg.MaxMessages {
		beforeID := c.oldestID()
		pages := r.fetchBudget(r.cfg.MaxMessages - c.size())
	outer:
		for i := 0; i < pages; i++ {
			batch, err := r.fetcher.FetchPage(ctx, channelID, beforeID, r.cfg.PageSize)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				break
			}

			for _, msg := range batch {
				if msg.AuthorID == actorID {
					found = true
					break outer
				}
				if c.size() >= r.cfg.MaxMessages {
					break outer
				}
				if msg.Valid() {
					c.add(msg)
				}
			}
			beforeID = batch[len(batch)-1].ID

			if len(batch) < r.cfg.PageSize {
				break
			}
		}
	}

	if !found {
		return ErrNoPriorMessage
	}
	return nil
}
