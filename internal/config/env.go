package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvBotToken      = "SLACK_BOT_TOKEN"
	EnvSigningSecret = "SLACK_SIGNING_SECRET"
	EnvSlackAPIURL   = "KBBOT_SLACK_API_URL"
	EnvConfigPath    = "KBBOT_CONFIG"
	EnvLogLevel      = "KBBOT_LOG_LEVEL"
	EnvLogFormat     = "KBBOT_LOG_FORMAT"
	EnvBackend       = "KBBOT_LOOKUP_BACKEND"
	EnvLookupURL     = "KBBOT_LOOKUP_URL"
	EnvLookupToken   = "KBBOT_LOOKUP_TOKEN"
	EnvDBPath        = "KBBOT_DB_PATH"
	EnvPort          = "PORT"
	EnvAWSRegion     = "AWS_REGION"
)

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Variables that are already set win. A missing
// file is not an error.
func LoadDotEnv(logger *slog.Logger, files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logger.Warn("cannot load env file", "file", f, "err", err)
			continue
		}
		logger.Debug("env file loaded", "file", f)
	}
}

// ApplyEnv overrides cfg with any non-empty environment variables.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Slack.BotToken, EnvBotToken)
	setString(&cfg.Slack.SigningSecret, EnvSigningSecret)
	setString(&cfg.Slack.APIURL, EnvSlackAPIURL)
	setString(&cfg.General.LogLevel, EnvLogLevel)
	setString(&cfg.General.LogFormat, EnvLogFormat)
	setString(&cfg.Lookup.Backend, EnvBackend)
	setString(&cfg.Lookup.HTTP.URL, EnvLookupURL)
	setString(&cfg.Lookup.HTTP.Token, EnvLookupToken)
	setString(&cfg.Knowledge.DBPath, EnvDBPath)
	setString(&cfg.AWS.Region, EnvAWSRegion)

	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
