//go:build !linux && !darwin && !windows

package caller

import (
	"errors"
	"runtime"
)

type unsupportedResolver struct{}

// NewResolver returns a resolver that always fails on this platform.
func NewResolver() Resolver { return unsupportedResolver{} }

func (unsupportedResolver) ResolveParent() (Identity, error) {
	return Identity{}, errors.New("caller verification is not supported on " + runtime.GOOS)
}
