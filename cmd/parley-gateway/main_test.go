package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/2389/parley/internal/config"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("PARLEY_CONFIG", "/etc/parley.yaml")
	if got := getConfigPath(); got != "/etc/parley.yaml" {
		t.Errorf("expected env override, got %s", got)
	}

	t.Setenv("PARLEY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := getConfigPath(); got != filepath.Join("/xdg", "parley", "gateway.yaml") {
		t.Errorf("unexpected xdg path %s", got)
	}
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := getDataPath(); got != filepath.Join("/data", "parley") {
		t.Errorf("unexpected data path %s", got)
	}
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}

	// Derived handlers share the parent's mutex.
	h := logger.Handler().(*colorHandler)
	child := h.WithAttrs([]slog.Attr{slog.String("component", "test")}).(*colorHandler)
	if child.mu != h.mu {
		t.Error("derived handler should share the mutex")
	}
	if len(child.attrs) != 1 || len(h.attrs) != 0 {
		t.Error("WithAttrs should not modify the parent")
	}

	if _, ok := setupLogger(config.LoggingConfig{Format: "json"}).Handler().(*slog.JSONHandler); !ok {
		t.Error("expected json handler")
	}
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		":8080":          "http://localhost:8080",
		"127.0.0.1:9000": "http://127.0.0.1:9000",
	}
	for addr, want := range cases {
		cfg := &config.Config{Server: config.ServerConfig{HTTPAddr: addr}}
		if got := baseURL(cfg); got != want {
			t.Errorf("baseURL(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("unexpected %q", got)
	}
}
