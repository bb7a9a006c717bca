package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveEnumerate_SkipsAutosaveAndSymlinkedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "qml", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "qml", "main.qml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "qml", "deep", "x.js"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "qml", "main.qml.autosave"), nil, 0o644))

	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "hidden.txt"), nil, 0o644))
	link := filepath.Join(root, "qml", "link")
	if err := os.Symlink(other, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got := RecursiveEnumerate(filepath.Join(root, "qml"))
	base := filepath.ToSlash(filepath.Join(root, "qml"))
	assert.Equal(t, map[string]struct{}{
		base + "/main.qml":  {},
		base + "/deep/x.js": {},
		base + "/link":      {},
	}, got)
}

func TestRecursiveDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "c"), 0o755))

	base := WithTrailingSlash(filepath.ToSlash(root))
	assert.ElementsMatch(t, []string{base + "a/", base + "a/b/", base + "c/"}, RecursiveDirs(root))
}
