// Package discord implements the Discord side of Summaru using discordgo.
//
// Responsibilities:
//   - Gateway session with message-content intents
//   - Live message events forwarded into the history synchronizer
//   - Authoritative backward history fetches (history.Fetcher)
//   - Slash command interactions (/summarize, /ask) and the Make Public button
//   - Embed rendering with per-request footer attribution
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/summaru/pkg/summaru/assistant"
	"github.com/jholhewres/summaru/pkg/summaru/history"
)

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// ApplicationID is the bot application id for command registration.
	ApplicationID string

	// TestGuildID scopes command registration to one guild. Empty means global.
	TestGuildID string

	// BotName is shown in /ask reply titles.
	BotName string

	// EmbedColor is the embed accent color.
	EmbedColor int

	// MaxEmbedChars caps embed descriptions (Discord limit: 4096).
	MaxEmbedChars int

	// MaxMessages bounds the count option on slash commands.
	MaxMessages int

	// MaxDays bounds the days option on slash commands.
	MaxDays int
}

// Discord connects the bot to the gateway and bridges events and
// interactions to the assistant.
type Discord struct {
	cfg       Config
	logger    *slog.Logger
	session   *discordgo.Session
	assistant *assistant.Assistant

	connected atomic.Bool

	// Guild availability tracking: the READY payload announces how many
	// guilds will stream in as GUILD_CREATE events; backfill waits for all
	// of them so no channel is missed.
	mu             sync.Mutex
	expectedGuilds int
	seenGuilds     int
	readySeen      bool
	synced         chan struct{}
	syncedOnce     sync.Once
}

// New creates a Discord channel instance.
func New(cfg Config, a *assistant.Assistant, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:       cfg,
		logger:    logger.With("component", "discord"),
		assistant: a,
		synced:    make(chan struct{}),
	}
}

// SetAssistant wires the assistant in. The adapter is also the history
// fetcher the assistant's pipeline is built on, so it has to exist first;
// call this before Connect.
func (d *Discord) SetAssistant(a *assistant.Assistant) {
	d.assistant = a
}

// Connect opens the gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onReady)
	session.AddHandler(d.onGuildCreate)
	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onMessageUpdate)
	session.AddHandler(d.onMessageDelete)
	session.AddHandler(d.onMessageDeleteBulk)
	session.AddHandler(d.onChannelDelete)
	session.AddHandler(d.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the gateway connection.
func (d *Discord) Disconnect() error {
	if d.session != nil {
		d.session.Close()
	}
	d.connected.Store(false)
	d.logger.Info("disconnected")
	return nil
}

// IsConnected returns true while the gateway session is open.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// WaitGuildsSynced blocks until every guild announced in READY has streamed
// in, so BackfillChannelIDs sees the complete channel list.
func (d *Discord) WaitGuildsSynced(ctx context.Context) error {
	select {
	case <-d.synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackfillChannelIDs lists every text-capable channel the bot can read,
// across all guilds.
func (d *Discord) BackfillChannelIDs() []string {
	var ids []string
	for _, guild := range d.session.State.Guilds {
		for _, ch := range guild.Channels {
			if !textCapable(ch) {
				continue
			}
			perms, err := d.session.State.UserChannelPermissions(d.session.State.User.ID, ch.ID)
			if err != nil || perms&discordgo.PermissionViewChannel == 0 {
				continue
			}
			ids = append(ids, ch.ID)
		}
	}
	return ids
}

func textCapable(ch *discordgo.Channel) bool {
	return ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews
}

// ---------- history.Fetcher ----------

// FetchPage implements history.Fetcher on top of the channel messages API.
// Results arrive newest-first; an empty beforeID starts from the newest
// message.
func (d *Discord) FetchPage(ctx context.Context, channelID, beforeID string, pageSize int) ([]history.Message, error) {
	batch, err := d.session.ChannelMessages(channelID, pageSize, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil {
			code := restErr.Message.Code
			if code == discordgo.ErrCodeMissingAccess || code == discordgo.ErrCodeMissingPermissions {
				return nil, fmt.Errorf("%w: channel %s: %s", history.ErrPermissionDenied, channelID, restErr.Message.Message)
			}
		}
		return nil, fmt.Errorf("discord: fetching messages for %s: %w", channelID, err)
	}

	out := make([]history.Message, 0, len(batch))
	for _, m := range batch {
		out = append(out, normalize(m))
	}
	return out, nil
}

// ---------- Event Normalization ----------

// normalize converts a raw Discord message into the canonical minimal
// record. Validity is judged later by history.Message.Valid, uniformly for
// live, backfill, and retrieval-time messages.
func normalize(m *discordgo.Message) history.Message {
	msg := history.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		CreatedAt: m.Timestamp,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = displayName(m)
		msg.Bot = m.Author.Bot
	}
	return msg
}

// displayName prefers the guild nickname, then the global display name,
// then the username.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// ---------- Gateway Event Handlers ----------

func (d *Discord) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	d.mu.Lock()
	d.expectedGuilds = len(r.Guilds)
	d.readySeen = true
	d.checkSyncedLocked()
	d.mu.Unlock()
	d.logger.Info("gateway ready", "guilds", len(r.Guilds))
}

func (d *Discord) onGuildCreate(_ *discordgo.Session, _ *discordgo.GuildCreate) {
	d.mu.Lock()
	d.seenGuilds++
	d.checkSyncedLocked()
	d.mu.Unlock()
}

func (d *Discord) checkSyncedLocked() {
	if d.readySeen && d.seenGuilds >= d.expectedGuilds {
		d.syncedOnce.Do(func() { close(d.synced) })
	}
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author != nil && m.Author.ID == s.State.User.ID {
		return
	}
	d.assistant.HandleEvent(history.Event{
		Kind:      history.EventUpsert,
		ChannelID: m.ChannelID,
		Message:   normalize(m.Message),
	})
}

func (d *Discord) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	// Edits only ever overwrite messages that are already cached; an edit
	// that turns the message invalid (content cleared) removes it.
	d.assistant.HandleEvent(history.Event{
		Kind:      history.EventUpdate,
		ChannelID: m.ChannelID,
		Message:   normalize(m.Message),
	})
}

func (d *Discord) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	d.assistant.HandleEvent(history.Event{
		Kind:      history.EventRemove,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
	})
}

func (d *Discord) onMessageDeleteBulk(_ *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	d.assistant.HandleEvent(history.Event{
		Kind:       history.EventRemoveMany,
		ChannelID:  m.ChannelID,
		MessageIDs: m.Messages,
	})
}

func (d *Discord) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	d.assistant.HandleEvent(history.Event{
		Kind:      history.EventDropChannel,
		ChannelID: c.ID,
	})
}

// interactionTimeout bounds one command's retrieval plus generation work.
const interactionTimeout = 5 * time.Minute

func (d *Discord) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		d.handleComponent(s, i)
	case discordgo.InteractionApplicationCommand:
		d.handleCommand(s, i)
	}
}
