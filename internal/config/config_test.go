package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// --- Validate ---

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.General.LogLevel = "loud" }, "general.logLevel"},
		{"bad log format", func(c *Config) { c.General.LogFormat = "xml" }, "general.logFormat"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"relative path", func(c *Config) { c.Server.Path = "events" }, "server.path"},
		{"unknown backend", func(c *Config) { c.Lookup.Backend = "oracle" }, "lookup.backend"},
		{"http without url", func(c *Config) { c.Lookup.Backend = BackendHTTP }, "lookup.http.url"},
		{"negative timeout", func(c *Config) { c.Lookup.HTTP.TimeoutSeconds = -5 }, "timeoutSeconds"},
		{"bedrock without model", func(c *Config) {
			c.Lookup.Backend = BackendBedrock
			c.Lookup.Bedrock.ModelID = ""
		}, "lookup.bedrock.modelId"},
		{"zero chunk size", func(c *Config) { c.Knowledge.ChunkSize = 0 }, "knowledge.chunkSize"},
		{"overlap too large", func(c *Config) { c.Knowledge.ChunkOverlap = c.Knowledge.ChunkSize }, "chunkOverlap"},
		{"zero topK", func(c *Config) { c.Knowledge.SearchTopK = 0 }, "searchTopK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Knowledge.SearchTopK = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "searchTopK") {
		t.Errorf("expected both problems reported, got: %v", err)
	}
}

func TestRequireSlack(t *testing.T) {
	cfg := Defaults()
	err := cfg.RequireSlack()
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "SLACK_BOT_TOKEN") || !strings.Contains(err.Error(), "SLACK_SIGNING_SECRET") {
		t.Errorf("error should name both variables: %v", err)
	}

	cfg.Slack.BotToken = "xoxb-1"
	cfg.Slack.SigningSecret = "s3cret"
	if err := cfg.RequireSlack(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Load ---

func TestLoad_JSONWithEnvExpansion(t *testing.T) {
	t.Setenv("KB_TEST_URL", "http://answers.internal/ask")
	t.Setenv(EnvBotToken, "")
	t.Setenv(EnvSigningSecret, "")

	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"slack": {"botToken": "xoxb-file", "signingSecret": "${KB_TEST_SECRET:-fallback}"},
		"lookup": {"backend": "http", "http": {"url": "${KB_TEST_URL}"}}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Lookup.HTTP.URL != "http://answers.internal/ask" {
		t.Errorf("url = %q", cfg.Lookup.HTTP.URL)
	}
	if cfg.Slack.SigningSecret != "fallback" {
		t.Errorf("signingSecret = %q, want fallback", cfg.Slack.SigningSecret)
	}
	if cfg.Slack.BotToken != "xoxb-file" {
		t.Errorf("botToken = %q", cfg.Slack.BotToken)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Path != "/slack/events" {
		t.Errorf("server.path = %q", cfg.Server.Path)
	}
	if !cfg.Slack.VerifyTokenOnStart {
		t.Error("verifyTokenOnStart should default to true")
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv(EnvPort, "")
	path := filepath.Join(t.TempDir(), "kbbot.yaml")
	data := `
server:
  port: 8088
knowledge:
  searchTopK: 7
  noAnswer: "no idea"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Knowledge.SearchTopK != 7 || cfg.Knowledge.NoAnswer != "no idea" {
		t.Errorf("knowledge = %+v", cfg.Knowledge)
	}
	if cfg.Knowledge.ChunkSize != 200 {
		t.Errorf("chunkSize default lost: %d", cfg.Knowledge.ChunkSize)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvBotToken, "xoxb-env")
	t.Setenv(EnvSigningSecret, "env-secret")
	t.Setenv(EnvPort, "9999")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"slack":{"botToken":"xoxb-file"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.BotToken != "xoxb-env" || cfg.Slack.SigningSecret != "env-secret" {
		t.Errorf("env did not override: %+v", cfg.Slack)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrEnv_FallsBackToEnv(t *testing.T) {
	t.Setenv(EnvBotToken, "xoxb-only-env")
	t.Setenv(EnvSigningSecret, "only-env")

	cfg, err := LoadOrEnv(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.BotToken != "xoxb-only-env" {
		t.Errorf("botToken = %q", cfg.Slack.BotToken)
	}
	if err := cfg.RequireSlack(); err != nil {
		t.Errorf("env-only config should be complete: %v", err)
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	t.Setenv(EnvBotToken, "")
	t.Setenv(EnvSigningSecret, "")
	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := Defaults()
			cfg.Lookup.Backend = BackendHTTP
			cfg.Lookup.HTTP.URL = "http://localhost:7000/answer"
			if err := Save(path, cfg); err != nil {
				t.Fatal(err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if got.Lookup.Backend != BackendHTTP || got.Lookup.HTTP.URL != cfg.Lookup.HTTP.URL {
				t.Errorf("lookup = %+v", got.Lookup)
			}
		})
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("KB_SET", "value")
	t.Setenv("KB_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"${KB_SET}", "value"},
		{"${KB_UNSET_X}", "${KB_UNSET_X}"},
		{"${KB_UNSET_X:-dflt}", "dflt"},
		{"${KB_EMPTY:-dflt}", "dflt"},
		{"${KB_UNSET_X:-}", ""},
		{"a-${KB_SET}-b", "a-value-b"},
		{"no refs", "no refs"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- dotenv ---

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "KB_DOTENV_NEW=from-file\nKB_DOTENV_SET=from-file\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KB_DOTENV_SET", "from-env")
	t.Cleanup(func() { os.Unsetenv("KB_DOTENV_NEW") })

	LoadDotEnv(testLogger(), envFile, filepath.Join(dir, "missing.env"))

	if got := os.Getenv("KB_DOTENV_NEW"); got != "from-file" {
		t.Errorf("KB_DOTENV_NEW = %q", got)
	}
	if got := os.Getenv("KB_DOTENV_SET"); got != "from-env" {
		t.Errorf("existing variable was overridden: %q", got)
	}
}

// --- SSM secrets ---

type fakeSSM struct {
	values map[string]string
	calls  []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(in.Name)
	f.calls = append(f.calls, name)
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	v, ok := f.values[name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Slack.BotToken = "ssm:/kbbot/bot-token"
	cfg.Slack.SigningSecret = "plain-secret"

	if !NeedsSSM(cfg) {
		t.Fatal("NeedsSSM should be true")
	}

	client := &fakeSSM{values: map[string]string{"/kbbot/bot-token": "xoxb-from-ssm"}}
	if err := ResolveSecrets(context.Background(), cfg, client); err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.BotToken != "xoxb-from-ssm" {
		t.Errorf("botToken = %q", cfg.Slack.BotToken)
	}
	if cfg.Slack.SigningSecret != "plain-secret" {
		t.Errorf("plain value changed: %q", cfg.Slack.SigningSecret)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 ssm call, got %v", client.calls)
	}
	if NeedsSSM(cfg) {
		t.Error("NeedsSSM should be false after resolution")
	}
}

func TestResolveSecrets_Missing(t *testing.T) {
	cfg := Defaults()
	cfg.Slack.SigningSecret = "ssm:/kbbot/absent"
	err := ResolveSecrets(context.Background(), cfg, &fakeSSM{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "slack.signingSecret") {
		t.Errorf("error should name the field: %v", err)
	}
}
