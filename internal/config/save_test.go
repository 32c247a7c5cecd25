package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Provider = "local"
	cfg.Providers["local"] = ProviderConfig{Type: "openai", BaseURL: "http://localhost:11434/v1", Model: "llama3"}
	cfg.Retry.MaxInterval = Duration(30 * time.Second)
	cfg.Engine.Workers = 6

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if !strings.Contains(string(data), `"max_interval": "30s"`) {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := DefaultConfig()
	first.LogLevel = "debug"
	if err := Save(first, path); err != nil {
		t.Fatal(err)
	}
	second := DefaultConfig()
	second.LogLevel = "warn"
	if err := Save(second, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", loaded.LogLevel)
	}
}
