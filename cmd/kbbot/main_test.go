package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kbbot/internal/config"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel = "", ""
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvDBPath, filepath.Join(dir, "kb.db"))
	t.Setenv(config.EnvBotToken, "")
	t.Setenv(config.EnvSigningSecret, "")
	t.Setenv(config.EnvBackend, "")
	return filepath.Join(dir, "config.json")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "kbbot "+version {
		t.Errorf("out = %q", out)
	}
}

func TestInitAndConfig(t *testing.T) {
	cfgPath := testEnv(t)

	if _, err := run(t, "--config", cfgPath, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "init"); err == nil {
		t.Error("second init should refuse to overwrite")
	}

	if _, err := run(t, "--config", cfgPath, "config", "set", "knowledge.searchTopK", "5"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := run(t, "--config", cfgPath, "config", "get", "knowledge.searchTopK")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Errorf("searchTopK = %q", out)
	}

	if _, err := run(t, "--config", cfgPath, "config", "set", "server.port", "99999"); err == nil {
		t.Error("invalid port should be rejected")
	}

	if _, err := run(t, "--config", cfgPath, "config", "set", "slack.signingSecret", "0123456789abcdef"); err != nil {
		t.Fatalf("config set secret: %v", err)
	}
	out, err = run(t, "--config", cfgPath, "config", "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("config list leaked a secret")
	}
	if !strings.Contains(out, `slack.signingSecret = "0123****cdef"`) {
		t.Errorf("masked secret missing:\n%s", out)
	}

	out, _ = run(t, "--config", cfgPath, "config", "path")
	if strings.TrimSpace(out) != cfgPath {
		t.Errorf("path = %q", out)
	}
}

func TestKnowledgeCommands(t *testing.T) {
	cfgPath := testEnv(t)
	doc := filepath.Join(t.TempDir(), "refunds.md")
	if err := os.WriteFile(doc, []byte("Refunds are processed within 5 business days."), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfgPath, "kb", "add", doc)
	if err != nil {
		t.Fatalf("kb add: %v", err)
	}
	if !strings.Contains(out, "added refunds.md") {
		t.Errorf("add output = %q", out)
	}
	id := strings.TrimSpace(out[strings.LastIndex(out, " as ")+4:])

	out, err = run(t, "--config", cfgPath, "kb", "list")
	if err != nil {
		t.Fatalf("kb list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "refunds.md") {
		t.Errorf("list output = %q", out)
	}

	out, err = run(t, "--config", cfgPath, "kb", "search", "refund")
	if err != nil {
		t.Fatalf("kb search: %v", err)
	}
	if !strings.Contains(out, "5 business days") {
		t.Errorf("search output = %q", out)
	}

	out, err = run(t, "--config", cfgPath, "kb", "ask", "How", "long", "do", "refunds", "take?")
	if err != nil {
		t.Fatalf("kb ask: %v", err)
	}
	if strings.TrimSpace(out) != "Refunds are processed within 5 business days." {
		t.Errorf("ask output = %q", out)
	}

	if _, err := run(t, "--config", cfgPath, "kb", "delete", id); err != nil {
		t.Fatalf("kb delete: %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "kb", "delete", id); err == nil {
		t.Error("deleting twice should fail")
	}
	out, _ = run(t, "--config", cfgPath, "kb", "list")
	if !strings.Contains(out, "empty") {
		t.Errorf("list after delete = %q", out)
	}
}

func TestDoctorFailsWithoutCredentials(t *testing.T) {
	cfgPath := testEnv(t)
	out, err := run(t, "--config", cfgPath, "doctor")
	if err == nil {
		t.Fatal("doctor should fail without Slack credentials")
	}
	if !strings.Contains(out, "[FAIL] Slack credentials") {
		t.Errorf("doctor output:\n%s", out)
	}
}
