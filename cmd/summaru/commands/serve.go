package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/summaru/pkg/summaru/assistant"
	"github.com/jholhewres/summaru/pkg/summaru/channels/discord"
	"github.com/jholhewres/summaru/pkg/summaru/config"
	"github.com/jholhewres/summaru/pkg/summaru/dispatch"
	"github.com/jholhewres/summaru/pkg/summaru/history"
	"github.com/jholhewres/summaru/pkg/summaru/ratelimit"
)

// guildSyncTimeout bounds how long startup waits for all guilds to stream
// in before backfilling whatever is known.
const guildSyncTimeout = 30 * time.Second

// newServeCmd creates the `summaru serve` command that runs the bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve summarize/ask commands",
		Long: `Start Summaru: connect to the Discord gateway, backfill the
per-channel message caches, and serve /summarize and /ask.

Examples:
  summaru serve
  summaru serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Core subsystems ──
	store := history.NewStore(cfg.Cache.SizePerChannel, logger)

	gemini, err := dispatch.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Generation, logger)
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(gemini, cfg.Gemini.Fallback, logger)

	limiter := ratelimit.New(cfg.RateLimit, logger)
	limiter.StartSweeper()
	defer limiter.StopSweeper()

	// ── Discord channel ──
	// The fetcher is the Discord adapter itself, so the retriever and
	// synchronizer are created after it.
	dc := discord.New(discord.Config{
		Token:         cfg.Discord.Token,
		ApplicationID: cfg.Discord.ApplicationID,
		TestGuildID:   cfg.Discord.TestGuildID,
		BotName:       cfg.Name,
		EmbedColor:    cfg.Embed.Color,
		MaxEmbedChars: cfg.Embed.MaxChars,
		MaxMessages:   cfg.Retrieve.MaxMessages,
		MaxDays:       cfg.Discord.MaxDays,
	}, nil, logger)

	syncer := history.NewSynchronizer(store, dc, cfg.Cache.Backfill, logger)
	retriever := history.NewRetriever(store, dc, cfg.Retrieve, logger)
	a := assistant.New(syncer, retriever, dispatcher, limiter, logger)
	dc.SetAssistant(a)

	if err := dc.Connect(ctx); err != nil {
		return err
	}
	defer dc.Disconnect()

	// ── Startup backfill ──
	// Live events buffer inside the synchronizer until the drain finishes;
	// commands that need context are refused with a friendly retry message
	// in the meantime.
	go func() {
		syncCtx, syncCancel := context.WithTimeout(ctx, guildSyncTimeout)
		defer syncCancel()
		if err := dc.WaitGuildsSynced(syncCtx); err != nil {
			logger.Warn("guild sync incomplete, backfilling known channels", "error", err)
		}

		started := time.Now()
		if err := syncer.Run(ctx, dc.BackfillChannelIDs()); err != nil {
			logger.Error("cache synchronization failed", "error", err)
			return
		}
		logger.Info("startup complete", "took", time.Since(started))
	}()

	// ── Wait for shutdown signal ──
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return nil
}

// loadConfigAndLogger resolves the config file flag, loads configuration,
// and builds the slog logger from it.
func loadConfigAndLogger(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	if cfg.Discord.Token == "" {
		fmt.Fprintln(os.Stderr, "warning: no Discord token configured")
	}
	return cfg, logger, nil
}
