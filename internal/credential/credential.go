// Package credential maps git credential requests onto KeePassXC entries.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/keepassxc"
	"github.com/rsclarke/git-credential-keepassxc/internal/logging"
)

// optOutField is the entry string field that hides an entry from git.
const optOutField = "KPH: git"

var (
	ErrNoMatchingLogin                = errors.New("no matching logins found")
	ErrMissingCredentialField         = errors.New("username and password are required")
	ErrUnsupportedMultiDatabaseUpdate = errors.New("updating an existing login is only supported with a single configured database")
	ErrSetLoginFailed                 = errors.New("KeePassXC refused to store the login")
)

// Peer is the part of the KeePassXC client used for logins.
type Peer interface {
	GetLogins(ctx context.Context, url string, keys []keepassxc.KeyPair) ([]keepassxc.LoginEntry, error)
	SetLogin(ctx context.Context, p keepassxc.SetLoginParams) (keepassxc.SetLoginResult, error)
}

func keyPairs(databases []db.Association) []keepassxc.KeyPair {
	keys := make([]keepassxc.KeyPair, 0, len(databases))
	for _, d := range databases {
		keys = append(keys, keepassxc.KeyPair{ID: d.ID, Key: d.PublicKey})
	}
	return keys
}

// usableLogins fetches the entries for url and drops expired and opted out
// ones, preserving order.
func usableLogins(ctx context.Context, peer Peer, logger *zap.Logger, url string, databases []db.Association) ([]keepassxc.LoginEntry, error) {
	entries, err := peer.GetLogins(ctx, url, keyPairs(databases))
	if err != nil {
		return nil, fmt.Errorf("get logins: %w", err)
	}
	var (
		out      []keepassxc.LoginEntry
		optedOut int
	)
	for _, e := range entries {
		if e.IsExpired() {
			continue
		}
		if v, ok := e.StringField(optOutField); ok && v == "false" {
			optedOut++
			continue
		}
		out = append(out, e)
	}
	if optedOut > 0 {
		logger.Info("entries excluded by "+optOutField, logging.Count(optedOut))
	}
	return out, nil
}

// Resolver picks the entry answering a get request.
type Resolver struct {
	Peer   Peer
	Logger *zap.Logger
}

// Resolve returns the entry for url. With several candidates a username
// narrows the set when anything matches; otherwise the first entry is used.
func (r *Resolver) Resolve(ctx context.Context, url, username string, databases []db.Association) (keepassxc.LoginEntry, error) {
	log := orNop(r.Logger)
	entries, err := usableLogins(ctx, r.Peer, log, url, databases)
	if err != nil {
		if keepassxc.IsNoLoginsFound(err) {
			return keepassxc.LoginEntry{}, fmt.Errorf("%w: %w", ErrNoMatchingLogin, err)
		}
		return keepassxc.LoginEntry{}, err
	}
	if len(entries) > 1 && username != "" {
		var narrowed []keepassxc.LoginEntry
		for _, e := range entries {
			if e.Login == username {
				narrowed = append(narrowed, e)
			}
		}
		if len(narrowed) > 0 {
			entries = narrowed
		}
	}
	switch len(entries) {
	case 0:
		return keepassxc.LoginEntry{}, ErrNoMatchingLogin
	case 1:
	default:
		log.Warn("more than one matching login, using the first one", logging.URL(url), logging.Count(len(entries)))
	}
	return entries[0], nil
}

// Writer creates or updates the entry for a store request.
type Writer struct {
	Peer   Peer
	Logger *zap.Logger
}

// Store saves username and password for url. databases are the usable
// associations; configured is the number of associations in the store.
func (w *Writer) Store(ctx context.Context, url, username, password string, databases []db.Association, configured int) error {
	log := orNop(w.Logger).With(logging.URL(url))
	if username == "" || password == "" {
		return ErrMissingCredentialField
	}
	if len(databases) == 0 {
		return errors.New("store login: no usable database")
	}

	entries, err := usableLogins(ctx, w.Peer, log, url, databases)
	if err != nil {
		if keepassxc.IsNoLoginsFound(err) {
			log.Info("no existing logins, creating a new entry")
		} else {
			log.Warn("failed to look up existing logins, creating a new entry", zap.Error(err))
		}
		entries = nil
	}
	var existing *keepassxc.LoginEntry
	for i := range entries {
		if entries[i].Login == username {
			existing = &entries[i]
			break
		}
	}

	target := databases[0]
	params := keepassxc.SetLoginParams{
		URL:        url,
		SubmitURL:  url,
		DatabaseID: target.ID,
		Login:      username,
		Password:   password,
		Group:      target.Group,
		GroupUUID:  target.GroupUUID,
	}
	switch {
	case existing != nil && existing.Password == password:
		log.Info("login already up to date")
		return nil
	case existing != nil:
		if configured > 1 {
			return ErrUnsupportedMultiDatabaseUpdate
		}
		params.UUID = existing.UUID
		log.Info("updating existing login")
	default:
		if configured > 1 {
			log.Warn("more than one database configured, storing the new login in the first one", logging.DatabaseID(target.ID))
		}
		log.Info("creating new login")
	}

	res, err := w.Peer.SetLogin(ctx, params)
	if err != nil {
		return fmt.Errorf("set login: %w", err)
	}
	if !res.Success || (res.Error != "" && res.Error != "success") {
		return fmt.Errorf("%w: %s (code %s)", ErrSetLoginFailed, res.Error, res.ErrorCode)
	}
	return nil
}

// Erase drains the request. KeePassXC offers no way to delete entries over
// the browser protocol, so there is nothing else to do.
func Erase(r io.Reader, logger *zap.Logger) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		orNop(logger).Debug("read erase request", zap.Error(err))
	}
	orNop(logger).Warn("erase is not supported by KeePassXC, ignoring")
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
