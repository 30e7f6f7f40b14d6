package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"metasolver/internal/channel"
	"metasolver/internal/completion"
	"metasolver/internal/config"
	"metasolver/internal/domain"
	"metasolver/internal/feedback"
	"metasolver/internal/intent"
	"metasolver/internal/journal"
	"metasolver/internal/metrics"
	"metasolver/internal/prompt"
	"metasolver/internal/provider"
	"metasolver/internal/responder"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "metasolver",
		Short: "Meta Solver: Slack support bot for Meta and WhatsApp Business API questions",
		Long: `Meta Solver answers support questions posted in Slack with an LLM completion,
thanks users when an answer helped and records that feedback in Notion.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional path to a JSON config file (environment variables override it)")

	root.AddCommand(serveCmd())
	root.AddCommand(askCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(configCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env, the optional config file and the environment, then
// swaps the global logger for one built from the log settings.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger = newLogger(cfg.Log, os.Stderr)
	return cfg, nil
}

func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var h slog.Handler
	switch lc.Format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "pretty":
		h = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h).With("service", "metasolver")
}

func loadCatalog(cfg *config.Config) (*prompt.Catalog, error) {
	if cfg.Prompt.Path != "" {
		return prompt.Load(cfg.Prompt.Path)
	}
	return prompt.Default()
}

func newRequester(cfg *config.Config, cat *prompt.Catalog) (*completion.Requester, *provider.OpenAI) {
	timeout := time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second
	prov := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		APIBase:    cfg.OpenAI.APIBase,
		Model:      cfg.OpenAI.Model,
		HTTPClient: provider.SharedHTTPClient(timeout),
		Logger:     logger,
	})
	req := completion.NewRequester(completion.RequesterConfig{
		Provider:    prov,
		Catalog:     cat,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Logger:      logger,
	})
	return req, prov
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Slack events server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.RequireServe(cfg); err != nil {
		logger.Error("refusing to start", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("prompt catalog: %w", err)
	}
	requester, _ := newRequester(cfg, cat)

	slackAPI := channel.NewSlack(channel.SlackConfig{
		BotToken:   cfg.Slack.BotToken,
		APIURL:     cfg.Slack.APIURL,
		HTTPClient: provider.SharedHTTPClient(30 * time.Second),
		Logger:     logger,
	})
	botUID, err := slackAPI.Connect(ctx)
	if err != nil {
		return err
	}

	var store domain.FeedbackStore
	if cfg.Feedback.Enabled {
		store = feedback.NewNotion(feedback.NotionConfig{
			Token:      cfg.Feedback.Token,
			DatabaseID: cfg.Feedback.DatabaseID,
			APIBase:    cfg.Feedback.APIBase,
			Version:    cfg.Feedback.NotionVersion,
			HTTPClient: provider.SharedHTTPClient(30 * time.Second),
			Logger:     logger,
		})
	} else {
		logger.Info("feedback capture disabled")
	}

	var events responder.Journal
	if cfg.Journal.Path != "" {
		j, err := journal.NewSQLiteStore(cfg.Journal.Path, logger)
		if err != nil {
			return err
		}
		defer j.Close()
		events = j
	}

	resp := responder.New(responder.Config{
		Publisher:         slackAPI,
		Feedback:          store,
		Completion:        requester,
		Router:            intent.NewRouter(cat.Gratitude, logger),
		Catalog:           cat,
		Journal:           events,
		Dedup:             cfg.Journal.Dedup,
		BotUserID:         botUID,
		Logger:            logger,
		Category:          cfg.Feedback.Category,
		ValidatedCategory: cfg.Feedback.ValidatedCategory,
	})

	srvCfg := channel.ServerConfig{
		Addr:       cfg.Server.Addr(),
		EventsPath: cfg.Server.EventsPath,
		Events: channel.NewWebhook(channel.WebhookConfig{
			SigningSecret: cfg.Slack.SigningSecret,
			Dispatcher:    resp,
			Logger:        logger,
		}),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		Logger:      logger,
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsPath = cfg.Metrics.Endpoint
		srvCfg.Metrics = metrics.Collector.Handler()
	}

	logger.Info("meta solver starting",
		"version", version,
		"model", cfg.OpenAI.Model,
		"feedback", cfg.Feedback.Enabled,
		"journal", cfg.Journal.Path != "",
	)
	return channel.NewServer(srvCfg).Start(ctx)
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [text]",
		Short: "Route a message and print the reply without Slack or Notion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return fmt.Errorf("prompt catalog: %w", err)
			}

			text := strings.Join(args, " ")
			switch intent.NewRouter(cat.Gratitude, logger).Classify(text) {
			case intent.None:
				return fmt.Errorf("nothing to ask: text is blank")
			case intent.Gratitude:
				fmt.Fprintln(cmd.OutOrStdout(), cat.GratitudeReply)
				return nil
			}

			if err := config.RequireProvider(cfg); err != nil {
				return err
			}
			requester, _ := newRequester(cfg, cat)
			answer, err := requester.Answer(cmd.Context(), text)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), cat.ErrorNotice(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})
	return cmd
}

func journalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the most recently handled events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("journal disabled: set journal.path or JOURNAL_PATH")
			}
			store, err := journal.NewSQLiteStore(cfg.Journal.Path, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-8s %-18s %-10s %s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Kind, e.Outcome, e.User, e.Key)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no events journaled yet")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "metasolver %s\n", version)
		},
	}
}
