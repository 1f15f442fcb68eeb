// Package store is the on-disk association store: the KeePassXC database
// associations, the trusted callers and the encryption profiles protecting
// them.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
)

// Store wraps the SQLite file holding the configuration.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: d}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the whole configuration.
func (s *Store) Load(ctx context.Context) (*Config, error) {
	var cfg *Config
	err := db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		cfg, err = load(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Update loads the configuration, applies fn and writes the result back in
// one exclusive transaction. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, fn func(*Config) error) error {
	return db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		cfg, err := load(ctx, tx)
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		return save(ctx, tx, cfg)
	})
}

func load(ctx context.Context, q db.Querier) (*Config, error) {
	var (
		cfg Config
		err error
	)
	if cfg.Databases, err = db.ListAssociations(ctx, q); err != nil {
		return nil, fmt.Errorf("load databases: %w", err)
	}
	if cfg.Callers, err = db.ListCallers(ctx, q); err != nil {
		return nil, fmt.Errorf("load callers: %w", err)
	}
	if cfg.SealedDatabases, err = db.ListSealed(ctx, q, db.CollectionDatabases); err != nil {
		return nil, fmt.Errorf("load sealed databases: %w", err)
	}
	if cfg.SealedCallers, err = db.ListSealed(ctx, q, db.CollectionCallers); err != nil {
		return nil, fmt.Errorf("load sealed callers: %w", err)
	}
	if cfg.Profiles, err = db.ListProfiles(ctx, q); err != nil {
		return nil, fmt.Errorf("load encryption profiles: %w", err)
	}
	return &cfg, nil
}

func save(ctx context.Context, q db.Querier, cfg *Config) error {
	if err := db.ReplaceAssociations(ctx, q, cfg.Databases); err != nil {
		return fmt.Errorf("save databases: %w", err)
	}
	if err := db.ReplaceCallers(ctx, q, cfg.Callers); err != nil {
		return fmt.Errorf("save callers: %w", err)
	}
	if err := db.ReplaceSealed(ctx, q, db.CollectionDatabases, cfg.SealedDatabases); err != nil {
		return fmt.Errorf("save sealed databases: %w", err)
	}
	if err := db.ReplaceSealed(ctx, q, db.CollectionCallers, cfg.SealedCallers); err != nil {
		return fmt.Errorf("save sealed callers: %w", err)
	}
	if err := db.ReplaceProfiles(ctx, q, cfg.Profiles); err != nil {
		return fmt.Errorf("save encryption profiles: %w", err)
	}
	return nil
}
