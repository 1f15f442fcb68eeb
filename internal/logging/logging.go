// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger writing to stderr. Stdout is
// reserved for the git credential protocol.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.ErrorLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "console"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.DisableStacktrace = true
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = ""
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zcfg.Build()
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// LevelForVerbosity maps the number of -v flags to a level name.
func LevelForVerbosity(count int) string {
	switch {
	case count <= 0:
		return "error"
	case count == 1:
		return "warn"
	case count == 2:
		return "info"
	default:
		return "debug"
	}
}

// FromEnv creates a Config from environment variables, falling back to the
// level derived from the verbosity count.
func FromEnv(verbosity int) Config {
	return Config{
		Level:  getenv("GIT_CREDENTIAL_KEEPASSXC_LOG_LEVEL", LevelForVerbosity(verbosity)),
		Format: getenv("GIT_CREDENTIAL_KEEPASSXC_LOG_FORMAT", "console"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// DatabaseID returns a zap field for a KeePassXC database association id.
func DatabaseID(id string) zap.Field { return zap.String("database_id", id) }

// URL returns a zap field for a credential URL.
func URL(url string) zap.Field { return zap.String("url", url) }

// PID returns a zap field for a process id.
func PID(pid int) zap.Field { return zap.Int("pid", pid) }

// Path returns a zap field for a filesystem path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Count returns a zap field for a count of items.
func Count(n int) zap.Field { return zap.Int("count", n) }

// Action returns a zap field for a KeePassXC protocol action.
func Action(action string) zap.Field { return zap.String("action", action) }

// Profile returns a zap field for an encryption profile descriptor.
func Profile(profile string) zap.Field { return zap.String("profile", profile) }

// Remaining returns a zap field for a remaining retry budget.
func Remaining(remaining string) zap.Field { return zap.String("remaining", remaining) }
