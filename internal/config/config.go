// Package config holds the options of one invocation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rsclarke/git-credential-keepassxc/internal/caller"
	"github.com/rsclarke/git-credential-keepassxc/internal/keepassxc"
	"github.com/rsclarke/git-credential-keepassxc/internal/unlock"
)

// FileName is the store's name inside the user configuration directory.
const FileName = "git-credential-keepassxc"

// Environment variables consulted when the matching flag is not given.
const (
	EnvConfig = "GIT_CREDENTIAL_KEEPASSXC_CONFIG"
	EnvSocket = "GIT_CREDENTIAL_KEEPASSXC_SOCKET"
	EnvUnlock = "GIT_CREDENTIAL_KEEPASSXC_UNLOCK"
)

// Options is built once from flags and the environment.
type Options struct {
	ConfigPath   string
	SocketPath   string
	Unlock       *unlock.Policy
	StrictCaller bool
}

// Flags are the raw global flag values.
type Flags struct {
	Config string
	Socket string
	Unlock string
}

// Load resolves flags, environment and platform defaults into Options.
func Load(f Flags) (Options, error) {
	opts := Options{
		ConfigPath:   getEnv(EnvConfig, f.Config),
		SocketPath:   getEnv(EnvSocket, f.Socket),
		StrictCaller: caller.StrictDefault,
	}
	if opts.ConfigPath == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return Options{}, err
		}
		opts.ConfigPath = path
	}
	if opts.SocketPath == "" {
		opts.SocketPath = keepassxc.DefaultEndpoint()
	}
	if raw := getEnv(EnvUnlock, f.Unlock); raw != "" {
		p, err := unlock.ParsePolicy(raw)
		if err != nil {
			return Options{}, err
		}
		opts.Unlock = p
	}
	return opts, nil
}

// DefaultConfigPath returns the store location in the user configuration
// directory.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, FileName), nil
}

// getEnv returns the flag value when set, then the environment.
func getEnv(key, flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(key)
}
