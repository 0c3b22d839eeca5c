package history

import (
	"log/slog"
	"sync"

	"github.com/elliotchance/orderedmap/v3"
)

// channelCache is a bounded, insertion-ordered, id-deduplicated message
// container. Insertion order reflects observation order; after a backfill
// (inserted oldest-first) iteration front-to-back is chronological, and live
// messages keep appending at the back. On overflow the front (oldest
// inserted) entry is evicted.
type channelCache struct {
	entries  *orderedmap.OrderedMap[string, Message]
	capacity int
}

func newChannelCache(capacity int) *channelCache {
	return &channelCache{
		entries:  orderedmap.NewOrderedMap[string, Message](),
		capacity: capacity,
	}
}

func (c *channelCache) set(msg Message) {
	c.entries.Set(msg.ID, msg)
	for c.entries.Len() > c.capacity {
		c.entries.Delete(c.entries.Front().Key)
	}
}

// Store holds one bounded cache per channel. All mutations run under a
// single mutex; critical sections are short and never perform I/O.
type Store struct {
	mu       sync.Mutex
	channels map[string]*channelCache
	capacity int
	logger   *slog.Logger
}

// NewStore creates a Store whose per-channel caches hold up to capacity
// messages each.
func NewStore(capacity int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		channels: make(map[string]*channelCache),
		capacity: capacity,
		logger:   logger.With("component", "history"),
	}
}

// Upsert inserts or overwrites msg in its channel's cache, creating the
// cache if needed. An invalid message instead removes any cached entry with
// the same id: an edit can turn a previously valid message into one we no
// longer want (content cleared, for example).
func (s *Store) Upsert(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.channels[msg.ChannelID]
	if !ok {
		cache = newChannelCache(s.capacity)
		s.channels[msg.ChannelID] = cache
	}

	if !msg.Valid() {
		cache.entries.Delete(msg.ID)
		return
	}
	cache.set(msg)
}

// Update overwrites an already-cached message in place. Unlike Upsert it
// never inserts: an edit to a message that was evicted or never cached must
// not re-enter the cache in the newest slot, where it would distort the
// observation order that retrieval depends on. An edit that turns the
// message invalid removes it.
func (s *Store) Update(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.channels[msg.ChannelID]
	if !ok {
		return
	}
	if _, cached := cache.entries.Get(msg.ID); !cached {
		return
	}
	if !msg.Valid() {
		cache.entries.Delete(msg.ID)
		return
	}
	// Set on an existing key keeps its position in the insertion order.
	cache.entries.Set(msg.ID, msg)
}

// Remove deletes a single message. No-op if the channel or id is unknown.
func (s *Store) Remove(channelID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cache, ok := s.channels[channelID]; ok {
		cache.entries.Delete(messageID)
	}
}

// RemoveMany deletes a batch of messages from one channel (bulk deletion
// events). No-op for unknown channels or ids.
func (s *Store) RemoveMany(channelID string, messageIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.channels[channelID]
	if !ok {
		return
	}
	for _, id := range messageIDs {
		cache.entries.Delete(id)
	}
}

// DropChannel discards the entire cache for a channel, typically because the
// channel was deleted upstream.
func (s *Store) DropChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[channelID]; ok {
		delete(s.channels, channelID)
		s.logger.Debug("dropped channel cache", "channel_id", channelID)
	}
}

// ReplaceChannel installs a fresh cache populated with msgs in the given
// order (oldest first, so eviction ordering stays correct when msgs exceeds
// the capacity). Used by the startup backfill.
func (s *Store) ReplaceChannel(channelID string, msgs []Message) {
	cache := newChannelCache(s.capacity)
	for _, msg := range msgs {
		if msg.Valid() {
			cache.set(msg)
		}
	}

	s.mu.Lock()
	s.channels[channelID] = cache
	s.mu.Unlock()
}

// SnapshotNewestFirst returns a point-in-time copy of a channel's cache in
// reverse-chronological order (newest observed first). Later mutations do
// not affect the returned slice.
func (s *Store) SnapshotNewestFirst(channelID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]Message, 0, cache.entries.Len())
	for el := cache.entries.Back(); el != nil; el = el.Prev() {
		out = append(out, el.Value)
	}
	return out
}

// Size returns the number of cached messages for a channel.
func (s *Store) Size(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cache, ok := s.channels[channelID]; ok {
		return cache.entries.Len()
	}
	return 0
}
