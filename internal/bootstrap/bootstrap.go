// Package bootstrap assembles a ready Slack bot from configuration. The CLI
// server, the Lambda entry point and the Cloud Functions entry point all
// start here.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"kbbot/internal/bot"
	"kbbot/internal/cloud"
	"kbbot/internal/config"
	"kbbot/internal/lookup"
	"kbbot/internal/slackapp"
)

// NewLogger builds the process logger from general.logLevel/logFormat.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads .env, then the config file (or the environment alone when
// the file does not exist), then resolves ssm: secrets.
func LoadConfig(ctx context.Context, path string, logger *slog.Logger) (*config.Config, error) {
	config.LoadDotEnv(logger)
	cfg, err := config.LoadOrEnv(path)
	if err != nil {
		return nil, err
	}
	if config.NeedsSSM(cfg) {
		awsCfg, err := cloud.LoadAWS(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		if err := config.ResolveSecrets(ctx, cfg, cloud.NewSSM(awsCfg)); err != nil {
			return nil, err
		}
		logger.Debug("secrets resolved from ssm")
	}
	return cfg, nil
}

// Bot is the assembled Slack app and its lookup backend.
type Bot struct {
	App     *slackapp.App
	Backend *lookup.Backend
}

// Close releases the lookup backend.
func (b *Bot) Close() error {
	return b.Backend.Close()
}

// Build wires the message handler into a Slack app. When
// slack.verifyTokenOnStart is set it also calls auth.test so the bot can
// recognise its own messages.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Bot, error) {
	if err := cfg.RequireSlack(); err != nil {
		return nil, err
	}

	backend, err := lookup.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("lookup backend: %w", err)
	}

	app := slackapp.New(slackapp.Config{
		BotToken:      cfg.Slack.BotToken,
		SigningSecret: cfg.Slack.SigningSecret,
		APIURL:        cfg.Slack.APIURL,
		Logger:        logger,
	})
	bot.NewHandler(backend.Answerer, logger).Register(app)

	if cfg.Slack.VerifyTokenOnStart {
		if err := app.Init(ctx); err != nil {
			backend.Close()
			return nil, err
		}
	}
	return &Bot{App: app, Backend: backend}, nil
}

// FromEnv is the serverless path. Config comes from the environment plus an
// optional file named by KBBOT_CONFIG; logs are JSON on stdout unless
// KBBOT_LOG_FORMAT says otherwise. The knowledge base defaults to
// config.ServerlessDBPath unless KBBOT_DB_PATH or the file names another.
func FromEnv(ctx context.Context) (*Bot, *slog.Logger, error) {
	logger := NewLogger(os.Stdout, os.Getenv(config.EnvLogLevel), "json")
	cfg, err := LoadConfig(ctx, os.Getenv(config.EnvConfigPath), logger)
	if err != nil {
		return nil, logger, err
	}
	serverlessDefaults(cfg)
	logger = NewLogger(os.Stdout, cfg.General.LogLevel, formatOr(os.Getenv(config.EnvLogFormat), "json"))
	b, err := Build(ctx, cfg, logger)
	return b, logger, err
}

// serverlessDefaults moves a knowledge base left at the home directory
// default to /tmp, since HOME is unset or read-only on serverless runtimes.
func serverlessDefaults(cfg *config.Config) {
	if os.Getenv(config.EnvDBPath) != "" {
		return
	}
	if cfg.Knowledge.DBPath == config.DefaultDBPath || cfg.Knowledge.DBPath == config.ExpandPath(config.DefaultDBPath) {
		cfg.Knowledge.DBPath = config.ServerlessDBPath
	}
}

func formatOr(format, def string) string {
	if format == "" {
		return def
	}
	return format
}
