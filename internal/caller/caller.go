// Package caller decides whether the process that invoked the helper is
// trusted to read credentials.
package caller

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/logging"
)

// ErrCallerDenied is returned when the parent process matches no trusted caller.
var ErrCallerDenied = errors.New("caller is not in the list of allowed callers")

// Identity describes the parent process.
type Identity struct {
	PID  int
	Path string
	UID  *uint32
	GID  *uint32
	// NoPOSIXIDs is set by resolvers for platforms that have no uid or gid.
	NoPOSIXIDs bool
}

func (id Identity) String() string {
	s := fmt.Sprintf("%s (pid %d", id.Path, id.PID)
	if id.UID != nil {
		s += fmt.Sprintf(", uid %d", *id.UID)
	}
	if id.GID != nil {
		s += fmt.Sprintf(", gid %d", *id.GID)
	}
	return s + ")"
}

// Resolver reports who started this process.
type Resolver interface {
	ResolveParent() (Identity, error)
}

// Verifier checks the parent process against the trusted callers.
type Verifier struct {
	Resolver Resolver
	// Strict verifies a store that has databases but no callers yet.
	Strict bool
	Logger *zap.Logger
}

// Verify returns the accepted parent identity, or nil when verification was
// skipped because no callers are configured yet.
func (v *Verifier) Verify(callers []db.Caller, databases int) (*Identity, error) {
	log := v.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if len(callers) == 0 && (!v.Strict || databases == 0) {
		log.Debug("no trusted callers configured, skipping caller verification")
		return nil, nil
	}

	id, err := v.Resolver.ResolveParent()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve parent process: %v", ErrCallerDenied, err)
	}
	for _, c := range callers {
		if Matches(c, id) {
			log.Debug("caller verified", logging.Path(id.Path), logging.PID(id.PID))
			return &id, nil
		}
	}
	log.Warn("untrusted caller", logging.Path(id.Path), logging.PID(id.PID))
	return nil, fmt.Errorf("%w: %s", ErrCallerDenied, id)
}

// Matches reports whether the identity satisfies a trusted caller entry.
// uid and gid constraints are ignored only for identities from platforms
// without them; a missing id otherwise fails the match.
func Matches(c db.Caller, id Identity) bool {
	if c.Path != id.Path {
		return false
	}
	if id.NoPOSIXIDs {
		return true
	}
	return idMatches(c.UID, id.UID) && idMatches(c.GID, id.GID)
}

func idMatches(want, got *uint32) bool {
	if want == nil {
		return true
	}
	return got != nil && *want == *got
}
