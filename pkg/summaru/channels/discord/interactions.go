package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/summaru/pkg/summaru/assistant"
	"github.com/jholhewres/summaru/pkg/summaru/dispatch"
	"github.com/jholhewres/summaru/pkg/summaru/history"
	"github.com/jholhewres/summaru/pkg/summaru/ratelimit"
)

// interactionUser extracts the invoking user from guild or DM interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// ---------- Slash Commands ----------

func (d *Discord) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "summarize" && data.Name != "ask" {
		return
	}

	user := interactionUser(i)
	if user == nil {
		return
	}

	req, public, err := d.parseCommand(data, user.ID)
	if err != nil {
		d.logger.Warn("bad command options", "command", data.Name, "error", err)
		return
	}
	req.ChannelID = i.ChannelID

	// Acknowledge within Discord's 3s window; the real reply comes later
	// via the interaction edit.
	respData := &discordgo.InteractionResponseData{}
	if !public {
		respData.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: respData,
	}); err != nil {
		d.logger.Warn("failed to defer interaction", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
		defer cancel()

		resp, err := d.assistant.Handle(ctx, req)
		if err != nil {
			d.editText(s, i, userMessageFor(err, req.Mode))
			return
		}
		d.replyEmbed(s, i, user, req, resp, public)
	}()
}

// parseCommand maps slash command options onto an assistant request.
func (d *Discord) parseCommand(data discordgo.ApplicationCommandInteractionData, userID string) (assistant.Request, bool, error) {
	req := assistant.Request{UserID: userID}
	if data.Name == "summarize" {
		req.Kind = assistant.KindSummarize
	} else {
		req.Kind = assistant.KindAsk
	}

	if len(data.Options) == 0 {
		return req, false, fmt.Errorf("missing subcommand")
	}
	sub := data.Options[0]

	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options))
	for _, o := range sub.Options {
		opts[o.Name] = o
	}

	public := false
	if o, ok := opts["public"]; ok {
		public = o.BoolValue()
	}
	if o, ok := opts["instructions"]; ok {
		req.Instructions = o.StringValue()
	}
	if o, ok := opts["request"]; ok {
		req.Question = o.StringValue()
	}

	switch sub.Name {
	case "now":
		req.Mode = history.Mode{Kind: history.ModeNone}
	case "amount":
		o, ok := opts["count"]
		if !ok {
			return req, public, fmt.Errorf("missing count option")
		}
		req.Mode = history.Mode{Kind: history.ModeAmount, Count: int(o.IntValue())}
	case "days":
		o, ok := opts["duration"]
		if !ok {
			return req, public, fmt.Errorf("missing duration option")
		}
		span := time.Duration(o.FloatValue() * 24 * float64(time.Hour))
		req.Mode = history.Mode{Kind: history.ModeDuration, Span: span}
	case "hours":
		o, ok := opts["duration"]
		if !ok {
			return req, public, fmt.Errorf("missing duration option")
		}
		span := time.Duration(o.FloatValue() * float64(time.Hour))
		req.Mode = history.Mode{Kind: history.ModeDuration, Span: span}
	case "since_last":
		req.Mode = history.Mode{Kind: history.ModeSinceLast, ActorID: userID}
	default:
		return req, public, fmt.Errorf("unknown subcommand %q", sub.Name)
	}

	return req, public, nil
}

// userMessageFor translates typed pipeline errors into user-facing replies.
func userMessageFor(err error, mode history.Mode) string {
	var limited *ratelimit.LimitedError
	var blocked *dispatch.BlockedError

	switch {
	case errors.Is(err, history.ErrNotReady):
		return "I'm still starting up. Please try again in a moment! You can use commands that don't require context in the meantime."
	case errors.As(err, &limited):
		return fmt.Sprintf("You are making requests too quickly. Please try again in **%d** second(s).", limited.RetryAfterSeconds())
	case errors.Is(err, history.ErrNoPriorMessage):
		return "Couldn't find one of your messages in the channel's recent history. Please send a message first or use a different summarize option."
	case errors.Is(err, history.ErrInsufficientContext):
		return fmt.Sprintf("Not enough messages found in %s to provide context. Need at least 1 non-bot message with content.",
			strings.ToLower(assistant.ContextLabel(mode)[:1])+assistant.ContextLabel(mode)[1:])
	case errors.As(err, &blocked):
		if blocked.Stage == "input" {
			return fmt.Sprintf("The request could not be completed because the input conversation or your instructions were flagged for **%s**.", blocked.Reason)
		}
		return fmt.Sprintf("The request could not be completed because the generated response was flagged for **%s**.", blocked.Reason)
	case errors.Is(err, dispatch.ErrPromptTooLarge):
		return "The conversation you requested is too long. Please try summarizing a smaller amount or shorter time frame."
	case errors.Is(err, dispatch.ErrAllUnavailable):
		return "All AI models are currently on cooldown. Please try again later."
	case errors.Is(err, dispatch.ErrAllBusy):
		return "All AI models are currently busy or rate-limited. Please try again later."
	default:
		return "An unexpected error occurred while processing the command. If this keeps happening, please contact the bot owner."
	}
}

func (d *Discord) editText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		d.logger.Warn("failed to edit interaction response", "error", err)
	}
}

// replyEmbed renders a successful generation as an embed, with a Make
// Public button on ephemeral replies.
func (d *Discord) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, user *discordgo.User, req assistant.Request, resp *assistant.Response, public bool) {
	title := "Chat Summary"
	if req.Kind == assistant.KindAsk {
		title = d.cfg.BotName + " says"
	}
	if resp.Processed > 0 {
		title = fmt.Sprintf("%s - %s (%d messages processed)", title, resp.ContextLabel, resp.Processed)
	}

	var description string
	switch {
	case req.Kind == assistant.KindSummarize && req.Instructions != "":
		description = fmt.Sprintf("**Instructions:** %s\n\n**Summary:**\n %s", req.Instructions, resp.Text)
	case req.Kind == assistant.KindAsk:
		description = fmt.Sprintf("**Request:** %s\n\n**Response:** %s", req.Question, resp.Text)
	default:
		description = resp.Text
	}
	description = truncateWithEllipsis(description, d.cfg.MaxEmbedChars)

	embed := &discordgo.MessageEmbed{
		Color:       d.cfg.EmbedColor,
		Title:       title,
		Description: description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("Requested by %s • Made with %s", userDisplayName(user), resp.Model),
			IconURL: user.AvatarURL(""),
		},
	}

	edit := &discordgo.WebhookEdit{Embeds: &[]*discordgo.MessageEmbed{embed}}
	if !public {
		components := []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						// The requester's id rides along for ownership checks.
						CustomID: "make_public:" + user.ID,
						Label:    "Make Public",
						Style:    discordgo.SecondaryButton,
						Emoji:    &discordgo.ComponentEmoji{Name: "📢"},
					},
				},
			},
		}
		edit.Components = &components
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		d.logger.Warn("failed to send embed reply", "error", err)
	}
}

// truncateWithEllipsis caps s at max bytes, backing up to a rune boundary
// so the cut never splits a multi-byte character.
func truncateWithEllipsis(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func userDisplayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// ---------- Components ----------

// handleComponent processes the Make Public button: reposts the ephemeral
// embed to the channel, visible to everyone, then removes the ephemeral
// reply. Only the original requester may do this.
func (d *Discord) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	action, ownerID, ok := strings.Cut(data.CustomID, ":")
	if !ok || action != "make_public" {
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		d.logger.Warn("failed to ack component", "error", err)
		return
	}

	user := interactionUser(i)
	if user == nil || user.ID != ownerID {
		d.followUpEphemeral(s, i, "You are not the original author of this request and cannot make it public.")
		return
	}

	if i.Message == nil || len(i.Message.Embeds) == 0 {
		d.followUpEphemeral(s, i, "An error occurred: The original message content could not be found.")
		return
	}

	if _, err := s.ChannelMessageSendEmbed(i.ChannelID, i.Message.Embeds[0]); err != nil {
		d.logger.Warn("failed to repost embed", "error", err)
		d.followUpEphemeral(s, i, "Couldn't make this message public, likely due to missing permissions.")
		return
	}

	if err := s.InteractionResponseDelete(i.Interaction); err != nil {
		d.logger.Warn("failed to delete ephemeral reply", "error", err)
	}
}

func (d *Discord) followUpEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		d.logger.Warn("failed to send follow-up", "error", err)
	}
}
