package logging

import (
	"testing"
)

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, "error"},
		{-1, "error"},
		{1, "warn"},
		{2, "info"},
		{3, "debug"},
		{7, "debug"},
	}

	for _, tt := range tests {
		if got := LevelForVerbosity(tt.count); got != tt.want {
			t.Errorf("LevelForVerbosity(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("New should fail for an unknown level")
	}
}

func TestNewFormats(t *testing.T) {
	for _, format := range []string{"", "console", "json"} {
		logger, err := New(Config{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("New(%q) failed: %v", format, err)
		}
		if !logger.Core().Enabled(-1) {
			t.Errorf("format %q: debug level should be enabled", format)
		}
	}
}

func TestFromEnvOverride(t *testing.T) {
	t.Setenv("GIT_CREDENTIAL_KEEPASSXC_LOG_LEVEL", "info")
	cfg := FromEnv(0)
	if cfg.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("Format = %q, want console", cfg.Format)
	}
}
