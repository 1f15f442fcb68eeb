// Package unlock waits for locked KeePassXC databases to become usable.
package unlock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Budget is the number of liveness polls left before giving up on a database.
type Budget struct {
	bounded   bool
	remaining int
}

// Unbounded polls until the database unlocks or the process is interrupted.
func Unbounded() Budget { return Budget{} }

// Bounded allows at most n polls.
func Bounded(n int) Budget { return Budget{bounded: true, remaining: n} }

// IsBounded reports whether the budget can run out.
func (b Budget) IsBounded() bool { return b.bounded }

// Remaining returns the polls left; meaningless when unbounded.
func (b Budget) Remaining() int { return b.remaining }

func (b Budget) String() string {
	if !b.bounded {
		return "unbounded"
	}
	return strconv.Itoa(b.remaining)
}

// State is a step of the wait loop.
type State int

const (
	Probing State = iota
	Sleeping
	Unlocked
	Exhausted
)

func (s State) String() string {
	switch s {
	case Probing:
		return "probing"
	case Sleeping:
		return "sleeping"
	case Unlocked:
		return "unlocked"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Next returns the state that follows a liveness poll and the budget left
// for the polls after it.
func Next(b Budget, probeOK bool) (State, Budget) {
	if probeOK {
		return Unlocked, b
	}
	if !b.bounded {
		return Sleeping, b
	}
	b.remaining--
	if b.remaining <= 0 {
		return Exhausted, Budget{bounded: true}
	}
	return Sleeping, b
}

// Policy is the --unlock setting.
type Policy struct {
	Interval time.Duration
	Budget   Budget
}

// ParsePolicy parses "interval,max_retries" where interval is in
// milliseconds and max_retries 0 means unbounded.
func ParsePolicy(s string) (*Policy, error) {
	intervalStr, retriesStr, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("invalid unlock policy %q: want interval,max_retries", s)
	}
	interval, err := strconv.ParseUint(strings.TrimSpace(intervalStr), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid unlock interval %q: %w", intervalStr, err)
	}
	retries, err := strconv.ParseUint(strings.TrimSpace(retriesStr), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid unlock max_retries %q: %w", retriesStr, err)
	}
	p := &Policy{Interval: time.Duration(interval) * time.Millisecond, Budget: Unbounded()}
	if retries > 0 {
		p.Budget = Bounded(int(retries))
	}
	return p, nil
}

func (p Policy) String() string {
	return fmt.Sprintf("%s,%s", p.Interval, p.Budget)
}
