package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func TestCopyPathFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "a.txt")
	writeFile(t, src, "hello")

	t.Run("to explicit destination", func(t *testing.T) {
		dst := filepath.Join(dir, "out", "renamed.txt")
		require.NoError(t, CopyPath(src, dst))
		assert.Equal(t, "hello", readFile(t, dst))
	})

	t.Run("into existing directory", func(t *testing.T) {
		dstDir := filepath.Join(dir, "existing")
		require.NoError(t, os.MkdirAll(dstDir, 0o755))
		require.NoError(t, CopyPath(src, dstDir))
		assert.Equal(t, "hello", readFile(t, filepath.Join(dstDir, "a.txt")))
	})
}

func TestCopyPathPreservesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))

	dst := filepath.Join(dir, "copied.sh")
	require.NoError(t, CopyPath(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestCopyPathDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	writeFile(t, filepath.Join(src, "top.txt"), "top")
	writeFile(t, filepath.Join(src, "sub", "leaf.txt"), "leaf")

	t.Run("into existing directory nests under base name", func(t *testing.T) {
		dst := filepath.Join(dir, "have")
		require.NoError(t, os.MkdirAll(dst, 0o755))
		require.NoError(t, CopyPath(src, dst))
		assert.Equal(t, "top", readFile(t, filepath.Join(dst, "tree", "top.txt")))
		assert.Equal(t, "leaf", readFile(t, filepath.Join(dst, "tree", "sub", "leaf.txt")))
	})

	t.Run("to absent destination becomes destination", func(t *testing.T) {
		dst := filepath.Join(dir, "fresh")
		require.NoError(t, CopyPath(src, dst))
		assert.Equal(t, "top", readFile(t, filepath.Join(dst, "top.txt")))
	})

	t.Run("contents suffix pours into destination", func(t *testing.T) {
		dst := filepath.Join(dir, "poured")
		require.NoError(t, os.MkdirAll(dst, 0o755))
		require.NoError(t, CopyPath(src+"/.", dst))
		assert.Equal(t, "top", readFile(t, filepath.Join(dst, "top.txt")))
		assert.Equal(t, "leaf", readFile(t, filepath.Join(dst, "sub", "leaf.txt")))
		assert.NoDirExists(t, filepath.Join(dst, "tree"))
	})
}

func TestCopyPathMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyPath(filepath.Join(dir, "nope"), filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy source")
}

func TestReplaceDirWithContents(t *testing.T) {
	dir := t.TempDir()
	next := filepath.Join(dir, "next")
	writeFile(t, filepath.Join(next, "new.txt"), "new")

	target := filepath.Join(dir, "workspace")
	writeFile(t, filepath.Join(target, "old.txt"), "old")

	require.NoError(t, ReplaceDirWithContents(next, target))

	assert.Equal(t, "new", readFile(t, filepath.Join(target, "new.txt")))
	assert.NoFileExists(t, filepath.Join(target, "old.txt"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-", "staging directory must not survive")
	}
}

func TestReplaceDirWithContentsCreatesAbsentTarget(t *testing.T) {
	dir := t.TempDir()
	next := filepath.Join(dir, "next")
	writeFile(t, filepath.Join(next, "only.txt"), "x")

	target := filepath.Join(dir, "brand-new")
	require.NoError(t, ReplaceDirWithContents(next, target))
	assert.Equal(t, "x", readFile(t, filepath.Join(target, "only.txt")))
}
