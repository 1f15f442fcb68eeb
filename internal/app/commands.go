package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rsclarke/git-credential-keepassxc/internal/credential"
	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/gitcred"
	"github.com/rsclarke/git-credential-keepassxc/internal/keepassxc"
	"github.com/rsclarke/git-credential-keepassxc/internal/logging"
	"github.com/rsclarke/git-credential-keepassxc/internal/store"
	"github.com/rsclarke/git-credential-keepassxc/internal/unlock"
	"github.com/rsclarke/git-credential-keepassxc/internal/vault"
)

// DefaultGroup is the KeePassXC group new logins are stored in.
const DefaultGroup = "Git"

func parseProfile(s string) (*vault.Spec, error) {
	if s == "" {
		return nil, nil
	}
	spec, err := vault.ParseSpec(s)
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// ErrProfilesChanged is returned when another invocation changed the
// encryption profiles between the prompts and the write.
var ErrProfilesChanged = errors.New("encryption profiles changed concurrently, run the command again")

// prepare verifies the caller against a snapshot of the store and settles
// every prompt before the write transaction starts. unlock reports whether
// the data key is needed; spec, when set, is enrolled into the returned vault.
func (a *App) prepare(ctx context.Context, spec *vault.Spec, unlock func(cfg *store.Config) bool) (*vault.Vault, *store.Config, error) {
	cfg, err := a.store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	v := a.newVault(cfg)
	if err := a.settle(cfg, v, spec, unlock); err != nil {
		v.Close()
		return nil, nil, err
	}
	return v, cfg, nil
}

func (a *App) settle(cfg *store.Config, v *vault.Vault, spec *vault.Spec, unlock func(cfg *store.Config) bool) error {
	if _, err := a.verify(cfg, v); err != nil {
		return err
	}
	if v.HasProfiles() && unlock != nil && unlock(cfg) {
		if err := v.Unlock(); err != nil {
			return err
		}
	}
	if spec != nil {
		if err := v.AddProfile(*spec); err != nil {
			return err
		}
	}
	return nil
}

// update runs fn against the current store once the snapshot taken by
// prepare is known to still hold the same profiles. The caller is verified
// again inside the transaction.
func (a *App) update(ctx context.Context, v *vault.Vault, snapshot *store.Config, addedProfile bool, fn func(cfg *store.Config) error) error {
	return a.store.Update(ctx, func(cfg *store.Config) error {
		if !sameProfiles(cfg.Profiles, snapshot.Profiles) {
			return ErrProfilesChanged
		}
		if _, err := a.verify(cfg, v); err != nil {
			return err
		}
		if addedProfile {
			cfg.Profiles = v.Profiles()
		}
		return fn(cfg)
	})
}

func sameProfiles(a, b []db.Profile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Argument != b[i].Argument || !bytes.Equal(a[i].WrappedKey, b[i].WrappedKey) {
			return false
		}
	}
	return true
}

func anythingSealed(cfg *store.Config) bool { return cfg.DatabasesSealed() || cfg.CallersSealed() }

// Configure associates a new KeePassXC database and saves it.
func (a *App) Configure(ctx context.Context, group, encrypt string) error {
	if group == "" {
		group = DefaultGroup
	}
	spec, err := parseProfile(encrypt)
	if err != nil {
		return err
	}

	v, snapshot, err := a.prepare(ctx, spec, (*store.Config).DatabasesSealed)
	if err != nil {
		return err
	}
	defer v.Close()

	sess, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	pub, sec, err := keepassxc.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate identity key: %w", err)
	}
	id, err := sess.Associate(ctx, pub)
	if err != nil {
		return fmt.Errorf("associate: %w", err)
	}
	// KeePassXC deduplicates group names.
	g, err := sess.CreateNewGroup(ctx, group)
	if err != nil {
		return fmt.Errorf("create group %q: %w", group, err)
	}
	assoc := db.Association{ID: id, Key: sec, PublicKey: pub, Group: g.Name, GroupUUID: g.UUID}

	return a.update(ctx, v, snapshot, spec != nil, func(cfg *store.Config) error {
		if err := cfg.AddDatabase(v, assoc, spec != nil); err != nil {
			return err
		}
		a.logger.Info("saving configuration", logging.Path(a.opts.ConfigPath), logging.DatabaseID(id))
		return nil
	})
}

func nothingToEncrypt(cfg *store.Config) bool {
	return len(cfg.Databases) == 0 && len(cfg.Callers) == 0
}

// Encrypt seals every plaintext association and caller, first adding the
// given profile when one is named.
func (a *App) Encrypt(ctx context.Context, profile string) error {
	spec, err := parseProfile(profile)
	if err != nil {
		return err
	}
	v, snapshot, err := a.prepare(ctx, spec, func(cfg *store.Config) bool {
		return spec == nil && !nothingToEncrypt(cfg)
	})
	if err != nil {
		return err
	}
	defer v.Close()
	if spec == nil && nothingToEncrypt(snapshot) {
		a.logger.Warn("databases and callers are already encrypted")
		return nil
	}

	return a.update(ctx, v, snapshot, spec != nil, func(cfg *store.Config) error {
		nd, err := cfg.EncryptDatabases(v)
		if err != nil {
			return err
		}
		nc, err := cfg.EncryptCallers(v)
		if err != nil {
			return err
		}
		a.logger.Info("encrypted configuration", zap.Int("databases", nd), zap.Int("callers", nc))
		return nil
	})
}

// Decrypt turns every sealed record back into plaintext and drops the
// profiles once nothing sealed remains.
func (a *App) Decrypt(ctx context.Context) error {
	v, snapshot, err := a.prepare(ctx, nil, anythingSealed)
	if err != nil {
		return err
	}
	defer v.Close()
	if !anythingSealed(snapshot) {
		a.logger.Warn("databases and callers are already decrypted")
		return nil
	}

	return a.update(ctx, v, snapshot, false, func(cfg *store.Config) error {
		nd, err := cfg.DecryptDatabases(v)
		if err != nil {
			return err
		}
		nc, err := cfg.DecryptCallers(v)
		if err != nil {
			return err
		}
		if !anythingSealed(cfg) {
			v.ClearProfiles()
			cfg.Profiles = nil
		}
		a.logger.Info("decrypted configuration", zap.Int("databases", nd), zap.Int("callers", nc))
		return nil
	})
}

// CallerAdd trusts another invoking executable.
func (a *App) CallerAdd(ctx context.Context, c db.Caller, encrypt string) error {
	if c.Path == "" {
		return errors.New("caller path is required")
	}
	spec, err := parseProfile(encrypt)
	if err != nil {
		return err
	}
	v, snapshot, err := a.prepare(ctx, spec, (*store.Config).CallersSealed)
	if err != nil {
		return err
	}
	defer v.Close()

	return a.update(ctx, v, snapshot, spec != nil, func(cfg *store.Config) error {
		if err := cfg.AddCaller(v, c, spec != nil); err != nil {
			return err
		}
		a.logger.Info("caller added", logging.Path(c.Path))
		return nil
	})
}

// CallerClear removes every trusted caller.
func (a *App) CallerClear(ctx context.Context) error {
	v, snapshot, err := a.prepare(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer v.Close()

	return a.update(ctx, v, snapshot, false, func(cfg *store.Config) error {
		cfg.ClearCallers()
		a.logger.Info("callers cleared")
		return nil
	})
}

// request is a verified credential request with the usable associations.
type request struct {
	msg       *gitcred.Message
	url       string
	usable    []db.Association
	sess      Session
	databases int
}

// open verifies the caller, reads the git request and negotiates a session.
// The returned session must be closed.
func (a *App) open(ctx context.Context) (*request, error) {
	cfg, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	v := a.newVault(cfg)
	defer v.Close()
	id, err := a.verify(cfg, v)
	if err != nil {
		return nil, err
	}

	msg, err := gitcred.Parse(a.stdin)
	if err != nil {
		return nil, err
	}
	url, err := msg.ResolveURL()
	if err != nil {
		return nil, err
	}
	if id != nil {
		a.logger.Info("credential request", logging.Path(id.Path), logging.PID(id.PID), logging.URL(url))
	}

	databases, err := cfg.DatabaseList(v)
	if err != nil {
		return nil, err
	}

	sess, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	w := &unlock.Waiter{Peer: sess, Policy: a.opts.Unlock, Logger: a.logger.Named("unlock")}
	usable, err := w.Usable(ctx, databases)
	if err != nil {
		sess.Close()
		return nil, err
	}
	return &request{msg: msg, url: url, usable: usable, sess: sess, databases: len(databases)}, nil
}

// Get answers a git credential get request on stdout.
func (a *App) Get(ctx context.Context) error {
	req, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer req.sess.Close()

	r := &credential.Resolver{Peer: req.sess, Logger: a.logger.Named("credential")}
	entry, err := r.Resolve(ctx, req.url, req.msg.Username, req.usable)
	if err != nil {
		return err
	}
	reply := *req.msg
	reply.Username = entry.Login
	reply.Password = entry.Password
	return reply.Encode(a.stdout)
}

// Store saves the credential git approved.
func (a *App) Store(ctx context.Context) error {
	req, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer req.sess.Close()

	w := &credential.Writer{Peer: req.sess, Logger: a.logger.Named("credential")}
	return w.Store(ctx, req.url, req.msg.Username, req.msg.Password, req.usable, req.databases)
}
