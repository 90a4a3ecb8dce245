package filelock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sb.lck")

	l, err := Acquire(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, path)
}

func TestAcquireFailsWhenAlreadyLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sb.lck")

	first, err := Acquire(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(path)
	assert.Error(t, err)
}

func TestStoredPathTruncatesPast256Bytes(t *testing.T) {
	// Not attempting to actually open a >255 byte path on disk (most
	// filesystems reject it outright); this documents that the stored
	// copy truncates the same way the original's strncpy did.
	longPath := "/var/run/servicebroker/" + string(make([]byte, 300))
	var l Lock
	n := copy(l.path[:], longPath)
	assert.Equal(t, pathBufSize, n)
}
