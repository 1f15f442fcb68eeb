package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvSocket, "")
	t.Setenv(EnvUnlock, "")

	opts, err := Load(Flags{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if filepath.Base(opts.ConfigPath) != FileName {
		t.Errorf("ConfigPath = %q, want a %s file", opts.ConfigPath, FileName)
	}
	if opts.SocketPath == "" {
		t.Error("SocketPath should default to the KeePassXC endpoint")
	}
	if opts.Unlock != nil {
		t.Errorf("Unlock = %+v, want nil", opts.Unlock)
	}
}

func TestLoadFlagsBeatEnv(t *testing.T) {
	t.Setenv(EnvConfig, "/env/config")
	t.Setenv(EnvSocket, "/env/socket")
	t.Setenv(EnvUnlock, "")

	opts, err := Load(Flags{Config: "/flag/config", Unlock: "100,3"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if opts.ConfigPath != "/flag/config" {
		t.Errorf("ConfigPath = %q, want /flag/config", opts.ConfigPath)
	}
	if opts.SocketPath != "/env/socket" {
		t.Errorf("SocketPath = %q, want /env/socket", opts.SocketPath)
	}
	if opts.Unlock == nil || opts.Unlock.Interval != 100*time.Millisecond || opts.Unlock.Budget.Remaining() != 3 {
		t.Errorf("Unlock = %+v, want 100ms with 3 retries", opts.Unlock)
	}
}

func TestLoadRejectsBadUnlock(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/config")
	tests := []string{"100", "x,1", "1,-1"}
	for _, raw := range tests {
		if _, err := Load(Flags{Unlock: raw}); err == nil {
			t.Errorf("Load(--unlock %q) should fail", raw)
		}
	}
}
