package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/git-credential-keepassxc/internal/app"
	"github.com/rsclarke/git-credential-keepassxc/internal/config"
	"github.com/rsclarke/git-credential-keepassxc/internal/logging"
)

var logger *zap.Logger

var rootFlags struct {
	config  string
	socket  string
	unlock  string
	verbose int
}

var rootCmd = &cobra.Command{
	Use:   "git-credential-keepassxc",
	Short: "Git credential helper backed by KeePassXC",
	Long: `git-credential-keepassxc answers git credential requests from the
logins stored in a running KeePassXC, using the KeePassXC browser
integration protocol.

Set it up with:
  git-credential-keepassxc configure
  git config --global credential.helper keepassxc`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv(rootFlags.verbose))
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		hardenProcess(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "path to the configuration file (env: "+config.EnvConfig+")")
	pf.StringVar(&rootFlags.socket, "socket", "", "path to the KeePassXC socket (env: "+config.EnvSocket+")")
	pf.StringVar(&rootFlags.unlock, "unlock", "", `wait for locked databases: "interval_ms,max_retries", 0 retries waits forever`)
	pf.CountVarP(&rootFlags.verbose, "verbose", "v", "raise the log level, repeatable")
}

// Execute runs the root command and exits non-zero on failure. Nothing is
// written to stdout on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if logger == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger.Error(rootCause(err).Error(), zap.Error(err))
	logging.Sync(logger)
	os.Exit(1)
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func newApp() (*app.App, error) {
	opts, err := config.Load(config.Flags{
		Config: rootFlags.config,
		Socket: rootFlags.socket,
		Unlock: rootFlags.unlock,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("options loaded", logging.Path(opts.ConfigPath), zap.String("socket", opts.SocketPath))
	return app.New(opts, logger)
}

// withApp opens the store for the duration of fn.
func withApp(fn func(a *app.App) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
