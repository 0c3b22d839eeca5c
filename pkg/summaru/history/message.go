// Package history maintains the per-channel conversation memory for Summaru:
// a bounded message cache fed by live gateway events, an asynchronous startup
// backfill that replays buffered events exactly once, and a hybrid retriever
// that combines cache reads with paginated backward fetches from the platform.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is the minimal canonical record kept for each chat message.
// It is immutable once created; channel caches own their copies.
type Message struct {
	// ID is the platform-issued message identifier (a snowflake).
	// IDs are time-ordered, so newer messages compare greater.
	ID string

	// ChannelID identifies the channel the message belongs to.
	ChannelID string

	// CreatedAt is when the message was posted.
	CreatedAt time.Time

	// Content is the raw text content.
	Content string

	// AuthorID identifies the author on the platform.
	AuthorID string

	// AuthorName is the author's display name at observation time.
	AuthorName string

	// Bot marks messages posted by automated participants.
	Bot bool
}

// Valid reports whether the message should be kept as conversation context.
// The same predicate is applied to live events, backfill pages, and
// retrieval-time fetches: the author must exist and not be a bot, the
// content must be non-blank, and the message must belong to a channel.
func (m Message) Valid() bool {
	if m.AuthorID == "" {
		return false
	}
	if m.Bot {
		return false
	}
	if strings.TrimSpace(m.Content) == "" {
		return false
	}
	if m.ChannelID == "" {
		return false
	}
	return true
}

// Fetcher pages backward through a channel's authoritative message history.
// Implementations return messages newest-first. An empty beforeID means
// "start from the newest message".
type Fetcher interface {
	// FetchPage returns up to pageSize messages older than beforeID,
	// newest-first. Messages are normalized but NOT validity-filtered;
	// callers apply Message.Valid themselves.
	FetchPage(ctx context.Context, channelID, beforeID string, pageSize int) ([]Message, error)
}

// Errors surfaced by the history subsystem.
var (
	// ErrNotReady is returned while the startup backfill has not finished.
	ErrNotReady = fmt.Errorf("history: cache is still warming up")

	// ErrPermissionDenied is returned by Fetcher implementations when the
	// bot cannot read a channel. Backfill skips such channels silently.
	ErrPermissionDenied = fmt.Errorf("history: missing permission to read channel")

	// ErrInsufficientContext is returned when retrieval exhausted every
	// source and still found no usable message.
	ErrInsufficientContext = fmt.Errorf("history: not enough messages for context")

	// ErrNoPriorMessage is returned by the since-last mode when no message
	// authored by the requesting user exists within the search budget.
	ErrNoPriorMessage = fmt.Errorf("history: no prior message from this user found")
)
