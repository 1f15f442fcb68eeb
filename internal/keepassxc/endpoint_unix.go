//go:build !windows

package keepassxc

import (
	"context"
	"net"
	"os"
	"path/filepath"
)

// DefaultEndpoint returns the KeePassXC socket path. The first candidate that
// exists wins; when none exists the first candidate is returned so that the
// dial error names a sensible path.
func DefaultEndpoint() string {
	candidates := endpointCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return candidates[0]
}

func endpointCandidates() []string {
	var candidates []string
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		candidates = append(candidates,
			filepath.Join(runtime, "app", "org.keepassxc.KeePassXC", serverName),
			filepath.Join(runtime, serverName),
		)
	}
	return append(candidates, filepath.Join(os.TempDir(), serverName))
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}
