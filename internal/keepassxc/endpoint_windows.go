//go:build windows

package keepassxc

import (
	"context"
	"net"
	"os"

	"github.com/Microsoft/go-winio"
)

// DefaultEndpoint returns the per-user named pipe KeePassXC listens on.
func DefaultEndpoint() string {
	return `\\.\pipe\` + serverName + "_" + os.Getenv("USERNAME")
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, endpoint)
}
