//go:build darwin

package caller

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type sysctlResolver struct{}

// NewResolver reads the parent identity through sysctl.
func NewResolver() Resolver { return sysctlResolver{} }

func (sysctlResolver) ResolveParent() (Identity, error) {
	ppid := os.Getppid()

	// kern.procargs2: int32 argc, then the NUL terminated executable path.
	args, err := unix.SysctlRaw("kern.procargs2", ppid)
	if err != nil {
		return Identity{}, fmt.Errorf("sysctl kern.procargs2 %d: %w", ppid, err)
	}
	if len(args) < 5 {
		return Identity{}, errors.New("short kern.procargs2 reply")
	}
	path := args[4:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}

	info, err := unix.SysctlKinfoProc("kern.proc.pid", ppid)
	if err != nil {
		return Identity{}, fmt.Errorf("sysctl kern.proc.pid %d: %w", ppid, err)
	}
	uid := info.Eproc.Pcred.P_ruid
	gid := info.Eproc.Pcred.P_rgid
	return Identity{PID: ppid, Path: string(path), UID: &uid, GID: &gid}, nil
}
