//go:build linux

package caller

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcResolverReadsParent(t *testing.T) {
	id, err := NewResolver().ResolveParent()
	require.NoError(t, err)
	require.Equal(t, os.Getppid(), id.PID)
	require.NotEmpty(t, id.Path)
	require.NotNil(t, id.UID)
	require.NotNil(t, id.GID)
}

func TestProcResolverBadMount(t *testing.T) {
	_, err := procResolver{mountPoint: t.TempDir()}.ResolveParent()
	require.Error(t, err)
}
