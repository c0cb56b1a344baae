package dstore

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "dstore-util")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, ioutil.WriteFile(src, []byte("payload"), 0640))

	require.NoError(t, CopyFile(src, dst))

	data, err := ioutil.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	stat, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), stat.Mode().Perm())
}

func TestCopyFileRejectsNonRegular(t *testing.T) {
	dir, err := ioutil.TempDir("", "dstore-util")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	assert.Error(t, CopyFile(dir, filepath.Join(dir, "dst")))
}

func TestReadRange(t *testing.T) {
	dir, err := ioutil.TempDir("", "dstore-util")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "data")
	require.NoError(t, ioutil.WriteFile(path, []byte("0123456789"), 0644))

	data, err := ReadRange(path, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	data, err = ReadRange(path, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))

	// reads past the end are truncated, not an error
	data, err = ReadRange(path, 8, 100)
	require.NoError(t, err)
	assert.Equal(t, "89", string(data))
}

func TestReadRangeMissingFile(t *testing.T) {
	_, err := ReadRange("/no/such/file", 0, -1)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFileHelpers(t *testing.T) {
	dir, err := ioutil.TempDir("", "dstore-util")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "data")
	require.NoError(t, ioutil.WriteFile(path, []byte("abc"), 0644))

	assert.True(t, FileExists(path))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
	assert.Equal(t, int64(3), FileSize(path))
	assert.Equal(t, int64(0), FileSize(filepath.Join(dir, "missing")))
}
