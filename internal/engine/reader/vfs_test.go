package reader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVFS_ParseIsCachedUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	pro := writeFile(t, dir, "a.pro", "SOURCES = a.cpp\n")
	vfs := NewVFS(4)

	first, err := vfs.Parse(pro)
	require.NoError(t, err)
	second, err := vfs.Parse(pro)
	require.NoError(t, err)
	assert.Same(t, first, second)

	vfs.InvalidateCache()
	third, err := vfs.Parse(pro)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, first.Fingerprint, third.Fingerprint)
}

func TestVFS_ContentsSurviveCacheInvalidationOnly(t *testing.T) {
	dir := t.TempDir()
	pro := writeFile(t, dir, "a.pro", "SOURCES = a.cpp\n")
	vfs := NewVFS(4)

	before, err := vfs.Fingerprint(pro)
	require.NoError(t, err)

	writeFile(t, dir, "a.pro", "SOURCES = b.cpp\n")
	vfs.InvalidateCache()
	cached, err := vfs.Fingerprint(pro)
	require.NoError(t, err)
	assert.Equal(t, before, cached, "contents are still served from cache")

	vfs.InvalidateContents()
	fresh, err := vfs.Fingerprint(pro)
	require.NoError(t, err)
	assert.NotEqual(t, before, fresh)
}

func TestVFS_OverridesAndDiscard(t *testing.T) {
	dir := t.TempDir()
	pro := filepath.ToSlash(filepath.Join(dir, "virtual.pro"))
	vfs := NewVFS(4)

	assert.False(t, vfs.Exists(pro))
	vfs.SetContents(pro, []byte("TEMPLATE = aux\n"))
	assert.True(t, vfs.Exists(pro))

	f, err := vfs.Parse(pro)
	require.NoError(t, err)
	assert.Len(t, f.stmts, 1)

	vfs.ClearContents(pro)
	assert.False(t, vfs.Exists(pro))

	real := writeFile(t, dir, "sub/real.pro", "X = 1\n")
	_, err = vfs.Parse(real)
	require.NoError(t, err)
	assert.Equal(t, 1, vfs.DiscardUnder(filepath.ToSlash(filepath.Join(dir, "sub"))))
}
