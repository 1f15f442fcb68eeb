package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/keepassxc"
)

type fakePeer struct {
	entries  []keepassxc.LoginEntry
	loginErr error
	result   keepassxc.SetLoginResult
	setErr   error

	gotKeys []keepassxc.KeyPair
	set     []keepassxc.SetLoginParams
}

func (f *fakePeer) GetLogins(_ context.Context, _ string, keys []keepassxc.KeyPair) ([]keepassxc.LoginEntry, error) {
	f.gotKeys = keys
	return f.entries, f.loginErr
}

func (f *fakePeer) SetLogin(_ context.Context, p keepassxc.SetLoginParams) (keepassxc.SetLoginResult, error) {
	f.set = append(f.set, p)
	return f.result, f.setErr
}

var (
	yes = keepassxc.Boolean(true)
	one = []db.Association{{ID: "db1", PublicKey: "pk1", Group: "Git", GroupUUID: "g1"}}
	two = []db.Association{{ID: "db1", PublicKey: "pk1", Group: "Git", GroupUUID: "g1"}, {ID: "db2", PublicKey: "pk2"}}
	ok  = keepassxc.SetLoginResult{Success: true, HasFlag: true}
)

func optOut(e keepassxc.LoginEntry) keepassxc.LoginEntry {
	e.StringFields = []map[string]string{{"KPH: git": "false"}}
	return e
}

func TestResolveSingleMatch(t *testing.T) {
	peer := &fakePeer{entries: []keepassxc.LoginEntry{{Login: "alice", Password: "p1", UUID: "u1"}}}
	r := &Resolver{Peer: peer}

	got, err := r.Resolve(context.Background(), "https://example.com/", "", two)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Login)
	require.Equal(t, "p1", got.Password)
	require.Equal(t, []keepassxc.KeyPair{{ID: "db1", Key: "pk1"}, {ID: "db2", Key: "pk2"}}, peer.gotKeys)
}

func TestResolveDropsExpiredAndOptedOut(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	peer := &fakePeer{entries: []keepassxc.LoginEntry{
		optOut(keepassxc.LoginEntry{Login: "bob", Password: "hidden"}),
		{Login: "carol", Password: "old", Expired: &yes},
		{Login: "alice", Password: "p1"},
	}}
	r := &Resolver{Peer: peer, Logger: zap.New(core)}

	got, err := r.Resolve(context.Background(), "https://example.com/", "", one)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Login)

	excluded := logs.FilterMessageSnippet("KPH: git").All()
	require.Len(t, excluded, 1)
	require.EqualValues(t, 1, excluded[0].ContextMap()["count"])
}

func TestResolveNarrowsByUsername(t *testing.T) {
	peer := &fakePeer{entries: []keepassxc.LoginEntry{
		{Login: "alice", Password: "p1"},
		{Login: "bob", Password: "p2"},
	}}
	r := &Resolver{Peer: peer}

	got, err := r.Resolve(context.Background(), "https://example.com/", "bob", one)
	require.NoError(t, err)
	require.Equal(t, "p2", got.Password)
}

func TestResolveAmbiguousTakesFirstAndWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	peer := &fakePeer{entries: []keepassxc.LoginEntry{
		{Login: "alice", Password: "p1"},
		{Login: "bob", Password: "p2"},
	}}
	r := &Resolver{Peer: peer, Logger: zap.New(core)}

	got, err := r.Resolve(context.Background(), "https://example.com/", "mallory", one)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Login, "unmatched username keeps the full set")
	require.Equal(t, 1, logs.Len())
}

func TestResolveNoMatch(t *testing.T) {
	r := &Resolver{Peer: &fakePeer{entries: []keepassxc.LoginEntry{optOut(keepassxc.LoginEntry{Login: "a"})}}}
	_, err := r.Resolve(context.Background(), "https://example.com/", "", one)
	require.ErrorIs(t, err, ErrNoMatchingLogin)
}

func TestResolveNoLoginsFoundIsNoMatch(t *testing.T) {
	notFound := &keepassxc.Error{Action: keepassxc.ActionGetLogins, Message: "No logins found", Code: keepassxc.CodeNoLoginsFound}
	r := &Resolver{Peer: &fakePeer{loginErr: notFound}}
	_, err := r.Resolve(context.Background(), "https://example.com/", "", one)
	require.ErrorIs(t, err, ErrNoMatchingLogin)
	require.ErrorIs(t, err, notFound)
}

func TestResolvePeerError(t *testing.T) {
	boom := &keepassxc.Error{Action: keepassxc.ActionGetLogins, Message: "Database not opened", Code: keepassxc.CodeDatabaseNotOpened}
	r := &Resolver{Peer: &fakePeer{loginErr: boom}}
	_, err := r.Resolve(context.Background(), "https://example.com/", "", one)
	require.ErrorIs(t, err, boom)
	require.False(t, errors.Is(err, ErrNoMatchingLogin))
}

func TestStoreRequiresFields(t *testing.T) {
	w := &Writer{Peer: &fakePeer{}}
	require.ErrorIs(t, w.Store(context.Background(), "u", "", "p", one, 1), ErrMissingCredentialField)
	require.ErrorIs(t, w.Store(context.Background(), "u", "alice", "", one, 1), ErrMissingCredentialField)
}

func TestStoreIdempotent(t *testing.T) {
	peer := &fakePeer{entries: []keepassxc.LoginEntry{{Login: "alice", Password: "p1", UUID: "u1"}}}
	w := &Writer{Peer: peer}
	require.NoError(t, w.Store(context.Background(), "https://example.com/", "alice", "p1", two, 2))
	require.Empty(t, peer.set)
}

func TestStoreUpdatesInPlace(t *testing.T) {
	peer := &fakePeer{
		entries: []keepassxc.LoginEntry{{Login: "alice", Password: "p1", UUID: "u1"}},
		result:  ok,
	}
	w := &Writer{Peer: peer}
	require.NoError(t, w.Store(context.Background(), "https://example.com/", "alice", "p2", one, 1))
	require.Len(t, peer.set, 1)
	require.Equal(t, keepassxc.SetLoginParams{
		URL:        "https://example.com/",
		SubmitURL:  "https://example.com/",
		DatabaseID: "db1",
		Login:      "alice",
		Password:   "p2",
		Group:      "Git",
		GroupUUID:  "g1",
		UUID:       "u1",
	}, peer.set[0])
}

func TestStoreUpdateWithSeveralDatabases(t *testing.T) {
	peer := &fakePeer{entries: []keepassxc.LoginEntry{{Login: "alice", Password: "p1", UUID: "u1"}}}
	w := &Writer{Peer: peer}
	err := w.Store(context.Background(), "https://example.com/", "alice", "p2", two, 2)
	require.ErrorIs(t, err, ErrUnsupportedMultiDatabaseUpdate)
	require.Empty(t, peer.set)
}

func TestStoreCreates(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	peer := &fakePeer{
		entries: []keepassxc.LoginEntry{{Login: "bob", Password: "x", UUID: "u2"}},
		result:  ok,
	}
	w := &Writer{Peer: peer, Logger: zap.New(core)}
	require.NoError(t, w.Store(context.Background(), "https://example.com/", "alice", "p1", two, 2))
	require.Len(t, peer.set, 1)
	require.Empty(t, peer.set[0].UUID)
	require.Equal(t, "db1", peer.set[0].DatabaseID)
	require.Equal(t, 1, logs.Len())
}

func TestStoreCreatesWhenLookupFails(t *testing.T) {
	peer := &fakePeer{
		loginErr: &keepassxc.Error{Action: keepassxc.ActionGetLogins, Message: "No logins found", Code: keepassxc.CodeNoLoginsFound},
		result:   ok,
	}
	w := &Writer{Peer: peer}
	require.NoError(t, w.Store(context.Background(), "https://example.com/", "alice", "p1", one, 1))
	require.Len(t, peer.set, 1)
	require.Empty(t, peer.set[0].UUID)
}

func TestStoreIgnoresOptedOutEntries(t *testing.T) {
	peer := &fakePeer{
		entries: []keepassxc.LoginEntry{optOut(keepassxc.LoginEntry{Login: "alice", Password: "p1", UUID: "u1"})},
		result:  ok,
	}
	w := &Writer{Peer: peer}
	require.NoError(t, w.Store(context.Background(), "https://example.com/", "alice", "p1", one, 1))
	require.Len(t, peer.set, 1)
	require.Empty(t, peer.set[0].UUID)
}

func TestStoreResultInterpretation(t *testing.T) {
	tests := []struct {
		name    string
		result  keepassxc.SetLoginResult
		wantErr bool
	}{
		{"success flag", keepassxc.SetLoginResult{Success: true, HasFlag: true}, false},
		{"success text", keepassxc.SetLoginResult{Success: true, HasFlag: true, Error: "success"}, false},
		{"missing flag", keepassxc.SetLoginResult{}, true},
		{"false flag", keepassxc.SetLoginResult{HasFlag: true}, true},
		{"error text", keepassxc.SetLoginResult{Success: true, HasFlag: true, Error: "Cannot save", ErrorCode: "6"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Writer{Peer: &fakePeer{result: tt.result}}
			err := w.Store(context.Background(), "https://example.com/", "alice", "p1", one, 1)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSetLoginFailed)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStoreTransportError(t *testing.T) {
	boom := errors.New("broken pipe")
	w := &Writer{Peer: &fakePeer{setErr: boom}}
	err := w.Store(context.Background(), "https://example.com/", "alice", "p1", one, 1)
	require.ErrorIs(t, err, boom)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("closed") }

func TestEraseConsumesInput(t *testing.T) {
	r := strings.NewReader("protocol=https\nhost=example.com\n\n")
	Erase(r, nil)
	require.Zero(t, r.Len())

	Erase(failingReader{}, zap.NewNop())
}
