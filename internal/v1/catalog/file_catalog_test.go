package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileCatalog_EmptyDir(t *testing.T) {
	c, err := NewFileCatalog("")
	require.NoError(t, err)

	_, _, ok := c.Lookup(context.Background(), "anything")
	assert.False(t, ok)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNewFileCatalog_IndexesSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	mp3 := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("not really audio, just bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	c, err := NewFileCatalog(dir)
	require.NoError(t, err)

	id, err := checksumFile(mp3)
	require.NoError(t, err)

	title, _, ok := c.Lookup(context.Background(), id)
	assert.True(t, ok)
	assert.Equal(t, "track", title)
}

func TestFileCatalog_Lookup_Unknown(t *testing.T) {
	c, err := NewFileCatalog(t.TempDir())
	require.NoError(t, err)

	_, _, ok := c.Lookup(context.Background(), "not-indexed")
	assert.False(t, ok)
}

func TestFileCatalog_Ping_MissingDir(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCatalog(dir)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, c.Ping(context.Background()))
}
