package posterstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtFromContentType(t *testing.T) {
	assert.Equal(t, ".png", ExtFromContentType("image/png"))
	assert.Equal(t, ".webp", ExtFromContentType("image/webp"))
	assert.Equal(t, ".jpg", ExtFromContentType("image/jpeg"))
	assert.Equal(t, ".jpg", ExtFromContentType("image/jpg"))
	assert.Equal(t, ".jpg", ExtFromContentType("application/octet-stream"))
}

func TestNewCreatesBuckets(t *testing.T) {
	root := t.TempDir()
	_, err := New(root)
	require.NoError(t, err)

	for _, bucket := range []string{"original", "working", "modified"} {
		info, err := os.Stat(filepath.Join(root, bucket))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestSaveOriginalIsWriteOnce(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveOriginal("item-1", ".jpg", []byte("first")))
	require.NoError(t, s.SaveOriginal("item-1", ".jpg", []byte("second")))

	data, err := s.Read("original", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestWriteWorkingOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteWorking("item-1", ".jpg", []byte("v1")))
	require.NoError(t, s.WriteWorking("item-1", ".jpg", []byte("v2")))

	data, err := s.Read("working", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestAtomicWriteSwitchesExtension(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteWorking("item-1", ".jpg", []byte("jpeg-bytes")))
	require.NoError(t, s.WriteWorking("item-1", ".png", []byte("png-bytes")))

	data, err := s.Read("working", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, statErr := os.Stat(filepath.Join(s.root, "working", "item-1.jpg"))
	assert.True(t, os.IsNotExist(statErr), "old extension file should be removed")
}

func TestClearWorkingRemovesFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteWorking("item-1", ".jpg", []byte("data")))
	require.NoError(t, s.ClearWorking("item-1"))
	assert.False(t, s.Exists("working", "item-1"))

	// clearing an absent item is a no-op, not an error
	assert.NoError(t, s.ClearWorking("item-1"))
}

func TestReadMissingPoster(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read("original", "missing")
	assert.Error(t, err)
}

func TestPathReturnsExistingFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveModified("item-1", ".png", []byte("data")))
	p, err := s.Path("modified", "item-1")
	require.NoError(t, err)
	assert.FileExists(t, p)
}
