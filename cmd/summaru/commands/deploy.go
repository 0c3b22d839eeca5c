package commands

import (
	"github.com/spf13/cobra"

	"github.com/jholhewres/summaru/pkg/summaru/channels/discord"
)

// newDeployCmd creates the `summaru deploy` command that registers the
// slash commands with Discord.
func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Register the /summarize and /ask slash commands",
		Long: `Register (bulk-overwrite) the application command set.

When discord.test_guild_id (or TEST_GUILD_ID) is set, commands are scoped
to that guild and become visible immediately. Otherwise they are registered
globally, which can take up to an hour to propagate.`,
		RunE: runDeploy,
	}
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}

	dc := discord.New(discord.Config{
		Token:         cfg.Discord.Token,
		ApplicationID: cfg.Discord.ApplicationID,
		TestGuildID:   cfg.Discord.TestGuildID,
		MaxMessages:   cfg.Retrieve.MaxMessages,
		MaxDays:       cfg.Discord.MaxDays,
	}, nil, logger)

	return dc.RegisterCommands()
}
