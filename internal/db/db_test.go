package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "config.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	info, err := os.Stat(dbPath)
	if err != nil {
		t.Fatalf("database file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("database file mode = %v, want owner-only", perm)
	}
}

func TestOpenTwice(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "config.db")
	for i := 0; i < 2; i++ {
		db, err := Open(dbPath)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		_ = db.Close()
	}
}

func TestMigrationsApplied(t *testing.T) {
	db := openTest(t)

	tables := []string{"schema_migrations", "databases", "callers", "sealed_records", "encryption_profiles"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestBusyTimeoutSet(t *testing.T) {
	db := openTest(t)

	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestAssociationsRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	want := []Association{
		{ID: "work", Key: "k1", PublicKey: "p1", Group: "Git", GroupUUID: "g1"},
		{ID: "home", Key: "k2", PublicKey: "p2"},
	}
	if err := ReplaceAssociations(ctx, db, want); err != nil {
		t.Fatalf("ReplaceAssociations failed: %v", err)
	}
	got, err := ListAssociations(ctx, db)
	if err != nil {
		t.Fatalf("ListAssociations failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("associations mismatch\ngot:  %+v\nwant: %+v", got, want)
	}

	if err := ReplaceAssociations(ctx, db, want[1:]); err != nil {
		t.Fatalf("ReplaceAssociations failed: %v", err)
	}
	got, err = ListAssociations(ctx, db)
	if err != nil {
		t.Fatalf("ListAssociations failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "home" {
		t.Errorf("expected only home after replace, got %+v", got)
	}
}

func TestAssociationIDsUnique(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	dup := []Association{{ID: "work", Key: "k1", PublicKey: "p1"}, {ID: "work", Key: "k2", PublicKey: "p2"}}
	if err := ReplaceAssociations(ctx, db, dup); err == nil {
		t.Error("expected duplicate database id to be rejected")
	}
}

func TestCallersKeepOptionalIDs(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	uid := uint32(1000)
	want := []Caller{
		{Path: "/usr/bin/git", UID: &uid},
		{Path: "/usr/lib/git-core/git-remote-https"},
	}
	if err := ReplaceCallers(ctx, db, want); err != nil {
		t.Fatalf("ReplaceCallers failed: %v", err)
	}
	got, err := ListCallers(ctx, db)
	if err != nil {
		t.Fatalf("ListCallers failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("callers mismatch\ngot:  %+v\nwant: %+v", got, want)
	}
}

func TestSealedCollectionsAreSeparate(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	if err := ReplaceSealed(ctx, db, CollectionDatabases, [][]byte{{1}, {2}}); err != nil {
		t.Fatalf("ReplaceSealed failed: %v", err)
	}
	if err := ReplaceSealed(ctx, db, CollectionCallers, [][]byte{{3}}); err != nil {
		t.Fatalf("ReplaceSealed failed: %v", err)
	}
	got, err := ListSealed(ctx, db, CollectionDatabases)
	if err != nil {
		t.Fatalf("ListSealed failed: %v", err)
	}
	if !reflect.DeepEqual(got, [][]byte{{1}, {2}}) {
		t.Errorf("sealed databases = %v", got)
	}

	if err := ReplaceSealed(ctx, db, "tokens", [][]byte{{4}}); err == nil {
		t.Error("expected an unknown collection to be rejected")
	}
}

func TestProfilesUnique(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	p := Profile{Kind: "keyfile", Argument: "/tmp/k", Salt: []byte("salt"), WrappedKey: []byte("wrapped")}
	if err := ReplaceProfiles(ctx, db, []Profile{p}); err != nil {
		t.Fatalf("ReplaceProfiles failed: %v", err)
	}
	got, err := ListProfiles(ctx, db)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0], p) {
		t.Errorf("profiles = %+v", got)
	}

	if err := ReplaceProfiles(ctx, db, []Profile{p, p}); err == nil {
		t.Error("expected duplicate kind/argument to be rejected")
	}
}

func TestInTxRollsBack(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	wantErr := os.ErrInvalid
	err := InTx(ctx, db, func(tx *sql.Tx) error {
		if err := ReplaceCallers(ctx, tx, []Caller{{Path: "/usr/bin/git"}}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("InTx error = %v, want %v", err, wantErr)
	}

	got, err := ListCallers(ctx, db)
	if err != nil {
		t.Fatalf("ListCallers failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected rollback, got %+v", got)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     int
		wantErr  bool
	}{
		{"valid", "001_init.sql", 1, false},
		{"valid large", "123_add_column.sql", 123, false},
		{"missing underscore", "001.sql", 0, true},
		{"empty prefix", "_init.sql", 0, true},
		{"non-numeric prefix", "abc_init.sql", 0, true},
		{"empty string", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersion(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseVersion(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parseVersion(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}
