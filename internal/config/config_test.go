package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("RNG_SEED", "42")
	t.Setenv("SNAPSHOT_BACKEND", "redis")

	cfg := Load()
	if cfg.HTTPPort != "9999" {
		t.Errorf("HTTPPort = %s, want 9999", cfg.HTTPPort)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("TickInterval = %v, want 250ms", cfg.TickInterval)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.SnapshotBackend != "redis" {
		t.Errorf("SnapshotBackend = %s, want redis", cfg.SnapshotBackend)
	}
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "not-a-duration")
	t.Setenv("ARCHIVE_LIMIT", "lots")
	t.Setenv("RNG_SEED", "-1")

	cfg := Load()
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %v, want default 1s", cfg.TickInterval)
	}
	if cfg.ArchiveLimit != 256 {
		t.Errorf("ArchiveLimit = %d, want default 256", cfg.ArchiveLimit)
	}
	if cfg.Seed != 0 {
		t.Errorf("Seed = %d, want default 0", cfg.Seed)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("facility online", "facility", "forge_one")
	logger.Debug("suppressed")

	if !strings.Contains(stderr.String(), "facility online") {
		t.Errorf("stderr output missing message: %q", stderr.String())
	}
	if !strings.Contains(file.String(), `"facility":"forge_one"`) {
		t.Errorf("file output missing JSON attr: %q", file.String())
	}
	if strings.Contains(stderr.String(), "suppressed") {
		t.Error("debug line leaked through info level")
	}
}
