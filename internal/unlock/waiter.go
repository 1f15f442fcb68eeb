package unlock

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/git-credential-keepassxc/internal/db"
	"github.com/rsclarke/git-credential-keepassxc/internal/keepassxc"
	"github.com/rsclarke/git-credential-keepassxc/internal/logging"
)

// ErrNoValidDatabase is returned when no configured database passed
// test-associate.
var ErrNoValidDatabase = errors.New("no valid database associations found in configuration file")

// Peer is the part of the KeePassXC client the waiter needs.
type Peer interface {
	TestAssociate(ctx context.Context, id, idKey string, triggerUnlock bool) error
	GetDatabaseHash(ctx context.Context) (string, error)
}

// Waiter filters associations down to the ones KeePassXC accepts, waiting
// for locked databases when a policy is set.
type Waiter struct {
	Peer   Peer
	Policy *Policy
	Logger *zap.Logger
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Usable returns the associations that passed test-associate, in order.
func (w *Waiter) Usable(ctx context.Context, databases []db.Association) ([]db.Association, error) {
	var out []db.Association
	for _, d := range databases {
		ok, err := w.check(ctx, d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoValidDatabase
	}
	w.logger().Info("authenticated against databases", logging.Count(len(out)))
	return out, nil
}

// check runs the wait loop for one database. Only context errors are
// returned; every other failure marks the database unusable.
func (w *Waiter) check(ctx context.Context, d db.Association) (bool, error) {
	log := w.logger().With(logging.DatabaseID(d.ID))
	budget := Unbounded()
	if w.Policy != nil {
		budget = w.Policy.Budget
	}

	for {
		err := w.Peer.TestAssociate(ctx, d.ID, d.PublicKey, w.Policy != nil)
		if err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Warn("failed to authenticate against database using stored key", zap.Error(err))
		if w.Policy == nil || !keepassxc.IsDatabaseLocked(err) {
			return false, nil
		}

		state := Probing
		for state == Probing || state == Sleeping {
			log.Warn("database is locked, retrying",
				zap.Duration("interval", w.Policy.Interval), logging.Remaining(budget.String()))
			if err := w.sleep(ctx, w.Policy.Interval); err != nil {
				return false, err
			}
			_, probeErr := w.Peer.GetDatabaseHash(ctx)
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			state, budget = Next(budget, probeErr == nil)
		}
		if state == Exhausted {
			log.Warn("database still locked, giving up")
			return false, nil
		}
		log.Info("database is unlocked")
	}
}

func (w *Waiter) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (w *Waiter) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
