package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// option builders kept small; every subcommand shares the public flag and
// most share the instructions/request field.

func publicOption(noun string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        "public",
		Description: fmt.Sprintf("Share the %s publicly? (Default: False)", noun),
	}
}

func instructionsOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "instructions",
		Description: "Special instructions for the summary.",
	}
}

func requestOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "request",
		Description: "Your question or instruction for the AI.",
		Required:    true,
	}
}

// Commands builds the application command set. Bounds come from config so
// re-registration follows limit changes.
func (d *Discord) Commands() []*discordgo.ApplicationCommand {
	maxMessages := float64(d.cfg.MaxMessages)
	maxDays := float64(d.cfg.MaxDays)
	maxHours := maxDays * 24
	minCount := float64(1)
	minDuration := 0.01

	countOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "count",
			Description: desc,
			Required:    true,
			MinValue:    &minCount,
			MaxValue:    maxMessages,
		}
	}
	durationOption := func(desc string, max float64) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionNumber,
			Name:        "duration",
			Description: desc,
			Required:    true,
			MinValue:    &minDuration,
			MaxValue:    max,
		}
	}

	summarize := &discordgo.ApplicationCommand{
		Name:        "summarize",
		Description: "Summarize messages in the current channel.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "amount",
				Description: "Summarize the last X messages.",
				Options: []*discordgo.ApplicationCommandOption{
					countOption(fmt.Sprintf("Number of past messages to summarize (max %d)", d.cfg.MaxMessages)),
					instructionsOption(),
					publicOption("summary"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "days",
				Description: "Summarize messages from the past X days.",
				Options: []*discordgo.ApplicationCommandOption{
					durationOption(fmt.Sprintf("Number of past days to summarize (max %d days, up to %d messages)", d.cfg.MaxDays, d.cfg.MaxMessages), maxDays),
					instructionsOption(),
					publicOption("summary"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "hours",
				Description: "Summarize messages from the past X hours.",
				Options: []*discordgo.ApplicationCommandOption{
					durationOption(fmt.Sprintf("Number of past hours to summarize (max %d hours, up to %d messages)", d.cfg.MaxDays*24, d.cfg.MaxMessages), maxHours),
					instructionsOption(),
					publicOption("summary"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "since_last",
				Description: "Summarize everything since you last spoke in this channel.",
				Options: []*discordgo.ApplicationCommandOption{
					instructionsOption(),
					publicOption("summary"),
				},
			},
		},
	}

	ask := &discordgo.ApplicationCommand{
		Name:        "ask",
		Description: "Ask the AI for anything, with optional chat context.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "now",
				Description: "Make a request without providing any chat history.",
				Options: []*discordgo.ApplicationCommandOption{
					requestOption(),
					publicOption("response"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "amount",
				Description: "Make a request based on the last X messages.",
				Options: []*discordgo.ApplicationCommandOption{
					countOption(fmt.Sprintf("Number of messages to use as context (max %d)", d.cfg.MaxMessages)),
					requestOption(),
					publicOption("response"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "days",
				Description: "Make a request based on messages from the past X days.",
				Options: []*discordgo.ApplicationCommandOption{
					durationOption(fmt.Sprintf("Number of past days to use as context (max %d days, up to %d messages)", d.cfg.MaxDays, d.cfg.MaxMessages), maxDays),
					requestOption(),
					publicOption("response"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "hours",
				Description: "Make a request based on messages from the past X hours.",
				Options: []*discordgo.ApplicationCommandOption{
					durationOption(fmt.Sprintf("Number of past hours to use as context (max %d hours, up to %d messages)", d.cfg.MaxDays*24, d.cfg.MaxMessages), maxHours),
					requestOption(),
					publicOption("response"),
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "since_last",
				Description: "Make a request based on everything since your last message.",
				Options: []*discordgo.ApplicationCommandOption{
					requestOption(),
					publicOption("response"),
				},
			},
		},
	}

	return []*discordgo.ApplicationCommand{summarize, ask}
}

// RegisterCommands bulk-overwrites the application command set, scoped to
// the test guild when one is configured.
func (d *Discord) RegisterCommands() error {
	if d.cfg.ApplicationID == "" {
		return fmt.Errorf("discord: application id is required to register commands")
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	cmds := d.Commands()
	if d.cfg.TestGuildID != "" {
		_, err = session.ApplicationCommandBulkOverwrite(d.cfg.ApplicationID, d.cfg.TestGuildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: registering guild commands: %w", err)
		}
		d.logger.Info("registered guild commands", "guild_id", d.cfg.TestGuildID, "commands", len(cmds))
		return nil
	}

	_, err = session.ApplicationCommandBulkOverwrite(d.cfg.ApplicationID, "", cmds)
	if err != nil {
		return fmt.Errorf("discord: registering global commands: %w", err)
	}
	d.logger.Info("registered global commands", "commands", len(cmds))
	return nil
}
