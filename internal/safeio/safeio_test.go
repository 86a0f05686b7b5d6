package safeio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFSAllowsAbsoluteUnderRoot(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	fs, err := NewSafeFS(dir)
	require.NoError(t, err)
	data, err := fs.SafeReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestSafeFSRejectsTraversal(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	require.NoError(t, err)
	_, err = fs.SafeReadFile("../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, fs.SafeWriteFile("../escape.json", []byte("x")))
	assert.Error(t, fs.SafeWriteFile(filepath.Join(os.TempDir(), "elsewhere.json"), []byte("x")))
}

func TestSafeWriteFileCreatesParentsAndReplaces(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	fs, err := Ensure(root)
	require.NoError(t, err)

	require.NoError(t, fs.SafeWriteFile("minecraft/chests/a.json", []byte("one")))
	require.NoError(t, fs.SafeWriteFile("minecraft/chests/a.json", []byte("two")))
	data, err := fs.SafeReadFile("minecraft/chests/a.json")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "minecraft", "chests"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestWalkFilesAndRemove(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.SafeWriteFile("a/x.json", nil))
	require.NoError(t, fs.SafeWriteFile("a/b/y.json", nil))

	var got []string
	require.NoError(t, fs.WalkFiles("a", func(rel string) error {
		got = append(got, rel)
		return nil
	}))
	assert.ElementsMatch(t, []string{"a/x.json", "a/b/y.json"}, got)

	require.NoError(t, fs.WalkFiles("missing", func(string) error {
		t.Fatal("no files expected")
		return nil
	}))

	require.NoError(t, fs.SafeRemove("a/x.json"))
	require.NoError(t, fs.SafeRemove("a/x.json"))
	_, err = fs.SafeStat("a/x.json")
	assert.True(t, os.IsNotExist(err))
}
