//go:build linux

package caller

import (
	"fmt"
	"os"

	"github.com/prometheus/procfs"
)

type procResolver struct {
	mountPoint string
}

// NewResolver reads the parent identity from /proc.
func NewResolver() Resolver {
	return procResolver{mountPoint: procfs.DefaultMountPoint}
}

func (r procResolver) ResolveParent() (Identity, error) {
	fs, err := procfs.NewFS(r.mountPoint)
	if err != nil {
		return Identity{}, fmt.Errorf("open procfs: %w", err)
	}
	ppid := os.Getppid()
	proc, err := fs.Proc(ppid)
	if err != nil {
		return Identity{}, fmt.Errorf("read process %d: %w", ppid, err)
	}
	path, err := proc.Executable()
	if err != nil {
		return Identity{}, fmt.Errorf("read executable of %d: %w", ppid, err)
	}
	status, err := proc.NewStatus()
	if err != nil {
		return Identity{}, fmt.Errorf("read status of %d: %w", ppid, err)
	}
	uid := uint32(status.UIDs[0])
	gid := uint32(status.GIDs[0])
	return Identity{PID: ppid, Path: path, UID: &uid, GID: &gid}, nil
}
