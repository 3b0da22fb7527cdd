package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for kbbot.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	Slack     SlackConfig     `json:"slack" yaml:"slack"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Lookup    LookupConfig    `json:"lookup" yaml:"lookup"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	AWS       AWSConfig       `json:"aws" yaml:"aws"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel"`   // debug | info | warn | error
	LogFormat string `json:"logFormat" yaml:"logFormat"` // text | json
}

// SlackConfig holds the two secrets the bot needs plus API overrides.
// Either secret may be written as "ssm:/parameter/name".
type SlackConfig struct {
	BotToken           string `json:"botToken" yaml:"botToken"`
	SigningSecret      string `json:"signingSecret" yaml:"signingSecret"`
	APIURL             string `json:"apiUrl" yaml:"apiUrl"`
	VerifyTokenOnStart bool   `json:"verifyTokenOnStart" yaml:"verifyTokenOnStart"`
}

type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"` // events endpoint
}

// LookupConfig selects the answer backend.
type LookupConfig struct {
	Backend string           `json:"backend" yaml:"backend"` // knowledge | http | bedrock
	HTTP    HTTPLookupConfig `json:"http" yaml:"http"`
	Bedrock BedrockConfig    `json:"bedrock" yaml:"bedrock"`
}

type HTTPLookupConfig struct {
	URL            string `json:"url" yaml:"url"`
	Token          string `json:"token" yaml:"token"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"` // 0 = no timeout
}

type BedrockConfig struct {
	ModelID   string `json:"modelId" yaml:"modelId"`
	MaxTokens int    `json:"maxTokens" yaml:"maxTokens"`
}

// KnowledgeConfig configures the local SQLite knowledge base.
type KnowledgeConfig struct {
	DBPath       string `json:"dbPath" yaml:"dbPath"`
	ChunkSize    int    `json:"chunkSize" yaml:"chunkSize"`       // words per chunk
	ChunkOverlap int    `json:"chunkOverlap" yaml:"chunkOverlap"` // words shared by neighbouring chunks
	SearchTopK   int    `json:"searchTopK" yaml:"searchTopK"`
	NoAnswer     string `json:"noAnswer" yaml:"noAnswer"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

type AWSConfig struct {
	Region string `json:"region" yaml:"region"`
}

// Lookup backends.
const (
	BackendKnowledge = "knowledge"
	BackendHTTP      = "http"
	BackendBedrock   = "bedrock"
)

// DefaultConfigDir returns the default config directory (~/.kbbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbbot"
	}
	return filepath.Join(home, ".kbbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file, expands ${VAR} references, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// FromEnv builds a config from defaults and environment variables alone.
// Serverless deployments usually run this way.
func FromEnv() (*Config, error) {
	return finish(Defaults())
}

// LoadOrEnv loads path when it exists and falls back to FromEnv otherwise.
func LoadOrEnv(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); errors.Is(err, os.ErrNotExist) {
		return FromEnv()
	}
	return Load(path)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnv(cfg)
	cfg.Knowledge.DBPath = ExpandPath(cfg.Knowledge.DBPath)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the value of VAR. ${VAR:-default} falls
// back to default when VAR is unset or empty; a bare ${VAR} with no value is
// left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if val := os.Getenv(groups[1]); val != "" {
			return val
		}
		if strings.Contains(match, ":-") {
			return groups[2]
		}
		return match
	})
}

// Save writes cfg as indented JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		errs = append(errs, "server.path must start with /")
	}

	switch cfg.Lookup.Backend {
	case BackendKnowledge, BackendBedrock:
	case BackendHTTP:
		if cfg.Lookup.HTTP.URL == "" {
			errs = append(errs, "lookup.http.url is required for the http backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("lookup.backend %q is not one of: knowledge, http, bedrock", cfg.Lookup.Backend))
	}
	if cfg.Lookup.HTTP.TimeoutSeconds < 0 {
		errs = append(errs, "lookup.http.timeoutSeconds must be >= 0")
	}
	if cfg.Lookup.Backend == BackendBedrock && cfg.Lookup.Bedrock.ModelID == "" {
		errs = append(errs, "lookup.bedrock.modelId is required for the bedrock backend")
	}

	if cfg.Knowledge.ChunkSize < 1 {
		errs = append(errs, "knowledge.chunkSize must be >= 1")
	}
	if cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		errs = append(errs, "knowledge.chunkOverlap must be >= 0 and smaller than chunkSize")
	}
	if cfg.Knowledge.SearchTopK < 1 {
		errs = append(errs, "knowledge.searchTopK must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireSlack reports whether both Slack secrets are present. Commands that
// never talk to Slack (kb, config) skip this check.
func (c *Config) RequireSlack() error {
	var missing []string
	if c.Slack.BotToken == "" {
		missing = append(missing, "slack.botToken (SLACK_BOT_TOKEN)")
	}
	if c.Slack.SigningSecret == "" {
		missing = append(missing, "slack.signingSecret (SLACK_SIGNING_SECRET)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing slack credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
