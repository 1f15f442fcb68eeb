package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/vault"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "git-credential-keepassxc")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func keyFileVault(t *testing.T) *vault.Vault {
	t.Helper()
	v := vault.New(nil, nil, nil)
	require.NoError(t, v.AddProfile(vault.Spec{Kind: vault.KindKeyFile, Argument: filepath.Join(t.TempDir(), "key")}))
	return v
}

func TestLoadEmpty(t *testing.T) {
	s, _ := openStore(t)
	cfg, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Zero(t, cfg.CountDatabases())
	require.Zero(t, cfg.CountCallers())
	require.Empty(t, cfg.Profiles)
}

func TestUpdatePersists(t *testing.T) {
	s, path := openStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(cfg *Config) error {
		if err := cfg.AddDatabase(nil, db.Association{ID: "db1", Key: "k", PublicKey: "p"}, false); err != nil {
			return err
		}
		return cfg.AddCaller(nil, db.Caller{Path: "/usr/bin/git"}, false)
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	cfg, err := s2.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []db.Association{{ID: "db1", Key: "k", PublicKey: "p"}}, cfg.Databases)
	require.Equal(t, []db.Caller{{Path: "/usr/bin/git"}}, cfg.Callers)
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Update(ctx, func(cfg *Config) error {
		cfg.Callers = append(cfg.Callers, db.Caller{Path: "/usr/bin/git"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, cfg.Callers)
}

func TestConcurrentUpdatesAreSerialised(t *testing.T) {
	_, path := openStore(t)
	ctx := context.Background()

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := Open(path)
			if err != nil {
				errs <- err
				return
			}
			defer s.Close()
			errs <- s.Update(ctx, func(cfg *Config) error {
				cfg.Callers = append(cfg.Callers, db.Caller{Path: "/usr/bin/git"})
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Callers, writers)
}

func TestEncryptAndDecryptDatabases(t *testing.T) {
	v := keyFileVault(t)
	cfg := &Config{Databases: []db.Association{{ID: "a", Key: "ka"}, {ID: "b", Key: "kb"}}}

	n, err := cfg.EncryptDatabases(v)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, cfg.DatabasesSealed())
	require.Empty(t, cfg.Databases)
	require.Equal(t, 2, cfg.CountDatabases())

	n, err = cfg.EncryptDatabases(v)
	require.NoError(t, err)
	require.Zero(t, n)

	list, err := cfg.DatabaseList(v)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, []string{list[0].ID, list[1].ID})

	n, err = cfg.DecryptDatabases(v)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, cfg.DatabasesSealed())
	require.Equal(t, "kb", cfg.Databases[1].Key)

	n, err = cfg.DecryptDatabases(v)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAddToSealedCollectionStaysSealed(t *testing.T) {
	v := keyFileVault(t)
	uid := uint32(1000)
	cfg := &Config{}
	require.NoError(t, cfg.AddCaller(v, db.Caller{Path: "/usr/bin/git"}, true))
	require.NoError(t, cfg.AddCaller(v, db.Caller{Path: "/usr/bin/git-remote-https", UID: &uid}, false))

	require.Empty(t, cfg.Callers)
	require.Len(t, cfg.SealedCallers, 2)

	list, err := cfg.CallerList(v)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/git-remote-https", list[1].Path)
	require.Equal(t, uid, *list[1].UID)

	cfg.ClearCallers()
	require.Zero(t, cfg.CountCallers())
}

func TestSealedListNeedsVault(t *testing.T) {
	v := keyFileVault(t)
	cfg := &Config{}
	require.NoError(t, cfg.AddDatabase(v, db.Association{ID: "a"}, true))

	_, err := cfg.DatabaseList(vault.New(nil, nil, nil))
	require.ErrorIs(t, err, vault.ErrVaultLocked)
}

func TestConfigureSameDatabaseReplacesAssociation(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	for _, key := range []string{"old", "new"} {
		err := s.Update(ctx, func(cfg *Config) error {
			return cfg.AddDatabase(nil, db.Association{ID: "work", Key: key, PublicKey: "p-" + key}, false)
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.Update(ctx, func(cfg *Config) error {
		return cfg.AddDatabase(nil, db.Association{ID: "home", Key: "h"}, false)
	}))

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []db.Association{
		{ID: "work", Key: "new", PublicKey: "p-new"},
		{ID: "home", Key: "h"},
	}, cfg.Databases)
}

func TestSealedDatabaseReplacedByID(t *testing.T) {
	v := keyFileVault(t)
	cfg := &Config{}
	require.NoError(t, cfg.AddDatabase(v, db.Association{ID: "work", Key: "old"}, true))
	require.NoError(t, cfg.AddDatabase(v, db.Association{ID: "home", Key: "h"}, false))
	require.NoError(t, cfg.AddDatabase(v, db.Association{ID: "work", Key: "new"}, false))

	require.Equal(t, 2, cfg.CountDatabases())
	list, err := cfg.DatabaseList(v)
	require.NoError(t, err)
	require.Equal(t, []db.Association{{ID: "work", Key: "new"}, {ID: "home", Key: "h"}}, list)
}
