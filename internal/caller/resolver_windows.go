//go:build windows

package caller

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

type win32Resolver struct{}

// NewResolver reads the parent image path through the Win32 API. Windows
// identities carry no uid or gid.
func NewResolver() Resolver { return win32Resolver{} }

func (win32Resolver) ResolveParent() (Identity, error) {
	ppid := os.Getppid()
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(ppid))
	if err != nil {
		return Identity{}, fmt.Errorf("open process %d: %w", ppid, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return Identity{}, fmt.Errorf("query image name of %d: %w", ppid, err)
	}
	return Identity{PID: ppid, Path: windows.UTF16ToString(buf[:size]), NoPOSIXIDs: true}, nil
}
