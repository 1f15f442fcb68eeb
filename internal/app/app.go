// Package app wires the subcommands of the helper together.
package app

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/rsclarke/git-credential-keepassxc/internal/caller"
	"github.com/rsclarke/git-credential-keepassxc/internal/config"
	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/keepassxc"
	"github.com/rsclarke/git-credential-keepassxc/internal/prompt"
	"github.com/rsclarke/git-credential-keepassxc/internal/store"
	"github.com/rsclarke/git-credential-keepassxc/internal/vault"
)

// Session is a negotiated KeePassXC session.
type Session interface {
	Associate(ctx context.Context, idPublicKey string) (string, error)
	TestAssociate(ctx context.Context, id, idPublicKey string, triggerUnlock bool) error
	GetDatabaseHash(ctx context.Context) (string, error)
	CreateNewGroup(ctx context.Context, name string) (keepassxc.Group, error)
	GetLogins(ctx context.Context, url string, keys []keepassxc.KeyPair) ([]keepassxc.LoginEntry, error)
	SetLogin(ctx context.Context, p keepassxc.SetLoginParams) (keepassxc.SetLoginResult, error)
	Close() error
}

// Dialer opens a session.
type Dialer func(ctx context.Context) (Session, error)

// App runs one invocation against one store.
type App struct {
	opts     config.Options
	store    *store.Store
	verifier *caller.Verifier
	dial     Dialer
	prompt   vault.Prompter
	logger   *zap.Logger

	stdin  io.Reader
	stdout io.Writer

	closers []io.Closer
}

// Option customises an App.
type Option func(*App)

// WithDialer replaces the KeePassXC connection.
func WithDialer(d Dialer) Option { return func(a *App) { a.dial = d } }

// WithVerifier replaces the caller verifier.
func WithVerifier(v *caller.Verifier) Option { return func(a *App) { a.verifier = v } }

// WithPrompter replaces the terminal prompter.
func WithPrompter(p vault.Prompter) Option { return func(a *App) { a.prompt = p } }

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.stdin = in
		a.stdout = out
	}
}

// New opens the store named in opts.
func New(opts config.Options, logger *zap.Logger, options ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := store.Open(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	a := &App{
		opts:   opts,
		store:  s,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	a.verifier = &caller.Verifier{Resolver: caller.NewResolver(), Strict: opts.StrictCaller, Logger: logger.Named("caller")}
	a.dial = func(ctx context.Context) (Session, error) {
		c, err := keepassxc.Connect(ctx, opts.SocketPath, logger.Named("keepassxc"))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	for _, o := range options {
		o(a)
	}
	if a.prompt == nil {
		lazy := &prompt.Lazy{}
		a.prompt = lazy
		a.closers = append(a.closers, lazy)
	}
	return a, nil
}

// Close releases the store and the terminal.
func (a *App) Close() error {
	for _, c := range a.closers {
		_ = c.Close()
	}
	return a.store.Close()
}

func (a *App) newVault(cfg *store.Config) *vault.Vault {
	return vault.New(cfg.Profiles, a.prompt, a.logger.Named("vault"))
}

// verify checks the parent process. Sealed callers are only decrypted when
// there are any.
func (a *App) verify(cfg *store.Config, v *vault.Vault) (*caller.Identity, error) {
	var callers []db.Caller
	if cfg.CountCallers() > 0 {
		list, err := cfg.CallerList(v)
		if err != nil {
			return nil, err
		}
		callers = list
	}
	return a.verifier.Verify(callers, cfg.CountDatabases())
}
