package history

import (
	"fmt"
	"testing"
	"time"
)

// msg builds a valid test message. IDs are zero-padded so lexicographic
// ordering matches the numeric ordering snowflakes have.
func msg(channelID string, n int) Message {
	return Message{
		ID:         fmt.Sprintf("%06d", n),
		ChannelID:  channelID,
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
		Content:    fmt.Sprintf("message %d", n),
		AuthorID:   "user-1",
		AuthorName: "alice",
	}
}

func TestMessageValid(t *testing.T) {
	base := msg("ch", 1)

	cases := []struct {
		name   string
		mutate func(*Message)
		want   bool
	}{
		{"valid", func(*Message) {}, true},
		{"no author", func(m *Message) { m.AuthorID = "" }, false},
		{"bot author", func(m *Message) { m.Bot = true }, false},
		{"empty content", func(m *Message) { m.Content = "" }, false},
		{"whitespace content", func(m *Message) { m.Content = "  \n\t " }, false},
		{"no channel", func(m *Message) { m.ChannelID = "" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := base
			tc.mutate(&m)
			if got := m.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStoreUpsertAndSnapshot(t *testing.T) {
	s := NewStore(100, nil)

	for i := 1; i <= 3; i++ {
		s.Upsert(msg("ch", i))
	}

	snap := s.SnapshotNewestFirst("ch")
	if len(snap) != 3 {
		t.Fatalf("expected 3 cached messages, got %d", len(snap))
	}
	// Newest observed first.
	if snap[0].ID != "000003" || snap[2].ID != "000001" {
		t.Errorf("unexpected snapshot order: %s ... %s", snap[0].ID, snap[2].ID)
	}
}

func TestStoreUpsertOverwritesInPlace(t *testing.T) {
	s := NewStore(100, nil)
	s.Upsert(msg("ch", 1))
	s.Upsert(msg("ch", 2))

	edited := msg("ch", 1)
	edited.Content = "edited content"
	s.Upsert(edited)

	if got := s.Size("ch"); got != 2 {
		t.Fatalf("overwrite should not grow the cache, size = %d", got)
	}
	snap := s.SnapshotNewestFirst("ch")
	// Overwriting an existing id keeps its position in the insertion order.
	if snap[0].ID != "000002" {
		t.Errorf("newest entry should still be 000002, got %s", snap[0].ID)
	}
	if snap[1].ID != "000001" || snap[1].Content != "edited content" {
		t.Errorf("expected edited content in place, got %s %q", snap[1].ID, snap[1].Content)
	}
}

func TestStoreUpdateNeverInserts(t *testing.T) {
	s := NewStore(100, nil)
	s.Upsert(msg("ch", 1))
	s.Upsert(msg("ch", 2))

	// An edit to a message that was never cached (or already evicted) must
	// not enter the cache.
	s.Update(msg("ch", 99))
	if got := s.Size("ch"); got != 2 {
		t.Fatalf("update of an uncached id must be a no-op, size = %d", got)
	}

	// An edit to a cached message overwrites it in place.
	edited := msg("ch", 1)
	edited.Content = "edited content"
	s.Update(edited)

	snap := s.SnapshotNewestFirst("ch")
	if snap[0].ID != "000002" {
		t.Errorf("newest entry should still be 000002, got %s", snap[0].ID)
	}
	if snap[1].Content != "edited content" {
		t.Errorf("expected edited content in place, got %q", snap[1].Content)
	}

	// An edit that clears the content removes the entry.
	cleared := msg("ch", 1)
	cleared.Content = ""
	s.Update(cleared)
	if got := s.Size("ch"); got != 1 {
		t.Errorf("invalid update should remove the entry, size = %d", got)
	}

	// Unknown channel is a no-op.
	s.Update(msg("elsewhere", 1))
	if got := s.Size("elsewhere"); got != 0 {
		t.Errorf("update must not create a channel cache, size = %d", got)
	}
}

func TestStoreUpsertInvalidRemovesExisting(t *testing.T) {
	s := NewStore(100, nil)
	s.Upsert(msg("ch", 1))

	cleared := msg("ch", 1)
	cleared.Content = ""
	s.Upsert(cleared)

	if got := s.Size("ch"); got != 0 {
		t.Errorf("invalid upsert should remove the cached entry, size = %d", got)
	}
}

func TestStoreEviction(t *testing.T) {
	s := NewStore(3, nil)
	for i := 1; i <= 5; i++ {
		s.Upsert(msg("ch", i))
	}

	if got := s.Size("ch"); got != 3 {
		t.Fatalf("expected capacity-bounded size 3, got %d", got)
	}
	snap := s.SnapshotNewestFirst("ch")
	if snap[len(snap)-1].ID != "000003" {
		t.Errorf("oldest surviving message should be 000003, got %s", snap[len(snap)-1].ID)
	}
}

func TestStoreRemoveAndRemoveMany(t *testing.T) {
	s := NewStore(100, nil)
	for i := 1; i <= 4; i++ {
		s.Upsert(msg("ch", i))
	}

	s.Remove("ch", "000002")
	if got := s.Size("ch"); got != 3 {
		t.Fatalf("expected 3 after Remove, got %d", got)
	}

	s.RemoveMany("ch", []string{"000001", "000004", "missing"})
	if got := s.Size("ch"); got != 1 {
		t.Fatalf("expected 1 after RemoveMany, got %d", got)
	}

	// Unknown channel is a no-op.
	s.Remove("nope", "000003")
	s.RemoveMany("nope", []string{"000003"})
	if got := s.Size("ch"); got != 1 {
		t.Errorf("unknown-channel removal should be a no-op, size = %d", got)
	}
}

func TestStoreDropChannel(t *testing.T) {
	s := NewStore(100, nil)
	s.Upsert(msg("a", 1))
	s.Upsert(msg("b", 2))

	s.DropChannel("a")

	if got := s.Size("a"); got != 0 {
		t.Errorf("dropped channel should be empty, size = %d", got)
	}
	if got := s.Size("b"); got != 1 {
		t.Errorf("other channels must be untouched, size = %d", got)
	}
}

func TestStoreReplaceChannel(t *testing.T) {
	s := NewStore(3, nil)
	s.Upsert(msg("ch", 99))

	// Oldest-first input, one invalid entry, one over capacity.
	bot := msg("ch", 2)
	bot.Bot = true
	s.ReplaceChannel("ch", []Message{msg("ch", 1), bot, msg("ch", 3), msg("ch", 4), msg("ch", 5), msg("ch", 6)})

	if got := s.Size("ch"); got != 3 {
		t.Fatalf("expected capacity-bounded size 3, got %d", got)
	}
	snap := s.SnapshotNewestFirst("ch")
	if snap[0].ID != "000006" || snap[2].ID != "000004" {
		t.Errorf("expected newest 000006 and oldest 000004, got %s ... %s", snap[0].ID, snap[2].ID)
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore(100, nil)
	s.Upsert(msg("ch", 1))

	snap := s.SnapshotNewestFirst("ch")
	s.Upsert(msg("ch", 2))

	if len(snap) != 1 {
		t.Errorf("snapshot must not observe later mutations, len = %d", len(snap))
	}
}
