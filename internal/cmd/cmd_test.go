package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/promptstudio/promptstudio/internal/config"
)

func TestVersion(t *testing.T) {
	root := NewRootCmd("1.2.3")
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != "promptstudio 1.2.3" {
		t.Errorf("version output = %q", got)
	}
}

func TestInitDefaults(t *testing.T) {
	t.Setenv(config.EnvAddr, ":7777")
	dir := t.TempDir()
	output := filepath.Join(dir, "cfg.json")

	root := NewRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--defaults", "--env-file", filepath.Join(dir, "missing.env"), "-o", output})
	if err := root.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("server.addr = %q, want :7777", cfg.Server.Addr)
	}
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "promptstudio.json")
	if err := os.WriteFile(existing, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "run"}
		c.Flags().StringP("config", "c", "", "")
		return c
	}

	if got := resolveConfigPath(newCmd(), []string{"arg.json"}, existing); got != "arg.json" {
		t.Errorf("positional: got %q", got)
	}

	c := newCmd()
	_ = c.Flags().Set("config", "flag.json")
	if got := resolveConfigPath(c, nil, existing); got != "flag.json" {
		t.Errorf("flag: got %q", got)
	}

	if got := resolveConfigPath(newCmd(), nil, existing); got != existing {
		t.Errorf("existing default: got %q", got)
	}
	if got := resolveConfigPath(newCmd(), nil, filepath.Join(dir, "absent.json")); got != "" {
		t.Errorf("absent default: got %q, want empty", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info logged at warn level")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("not JSON: %q", out)
	}
	if rec["msg"] != "shown" || rec["component"] != "test" {
		t.Errorf("unexpected record: %v", rec)
	}

	buf.Reset()
	newLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("dbg")
	if !strings.Contains(buf.String(), "msg=dbg") {
		t.Errorf("text handler output = %q", buf.String())
	}
}
