package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFile_RotatesAndKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	rf, err := NewRotatingFile(path, 10, 2)
	require.NoError(t, err)
	defer rf.Close()

	for _, line := range []string{"aaaaaaaa\n", "bbbbbbbb\n", "cccccccc\n", "dddddddd\n"} {
		_, err := rf.Write([]byte(line))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, rf.Rotations())

	read := func(p string) string {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "dddddddd\n", read(path))
	assert.Equal(t, "cccccccc\n", read(path+".1"))
	assert.Equal(t, "bbbbbbbb\n", read(path+".2"))
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "only maxBackups files are kept")
}

func TestRotatingFile_OversizedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	rf, err := NewRotatingFile(path, 4, 1)
	require.NoError(t, err)
	defer rf.Close()

	line := strings.Repeat("x", 20)
	n, err := rf.Write([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Equal(t, 0, rf.Rotations(), "empty file is not rotated")
}

func TestRotatingFile_AppendsAndPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	rf, err := NewRotatingFile(path, 0, 0)
	require.NoError(t, err)
	_, err = rf.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())
	require.NoError(t, rf.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(b))

	_, err = rf.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestNewRotatingFile_RequiresPath(t *testing.T) {
	_, err := NewRotatingFile("", 0, 0)
	assert.Error(t, err)
}
