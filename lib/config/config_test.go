package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenthive/hivemem/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathInsideRoot(t *testing.T) {
	root := t.TempDir()

	got, err := ValidatePath(root, "data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustResolve(t, root), "data"), got)

	got, err = ValidatePath(root, "nested/deep/dir")
	require.NoError(t, err)
	assert.Contains(t, got, "nested")

	// absolute path inside root
	got, err = ValidatePath(root, filepath.Join(root, "abs"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustResolve(t, root), "abs"), got)
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	root := t.TempDir()

	for _, path := range []string{
		"..",
		"../outside",
		"data/../../outside",
		"/etc/passwd",
		"",
	} {
		_, err := ValidatePath(root, path)
		assert.True(t, store.IsValidation(err), "path %q must be rejected, got %v", path, err)
	}
}

func TestValidatePathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ValidatePath(root, "sneaky/data")
	assert.True(t, store.IsValidation(err), "symlink escape must be rejected, got %v", err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Dir:           "data",
			Root:          t.TempDir(),
			MaxMemorySize: 1 << 20,
			MaxEntries:    100,
			GCInterval:    time.Second,
			PoolMinSize:   1,
			PoolMaxSize:   4,
		}
	}

	require.NoError(t, valid().Validate())

	c := valid()
	c.MaxMemorySize = 0
	assert.True(t, store.IsValidation(c.Validate()))

	c = valid()
	c.MaxEntries = -1
	assert.True(t, store.IsValidation(c.Validate()))

	c = valid()
	c.GCInterval = 0
	assert.True(t, store.IsValidation(c.Validate()))

	c = valid()
	c.PoolMinSize = 4
	c.PoolMaxSize = 2
	assert.True(t, store.IsValidation(c.Validate()))

	c = valid()
	c.Dir = "../escape"
	assert.True(t, store.IsValidation(c.Validate()))
}

// mustResolve follows symlinks the same way ValidatePath does (relevant on
// systems where the temp dir itself is a symlink).
func mustResolve(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}
