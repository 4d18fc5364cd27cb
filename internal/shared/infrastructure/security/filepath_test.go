package security

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath(t *testing.T) {
	t.Run("rejects empty path", func(t *testing.T) {
		_, err := ValidateFilePath("  ")
		assert.Error(t, err)
	})

	t.Run("rejects shell metacharacters", func(t *testing.T) {
		for _, char := range forbiddenChars {
			_, err := ValidateFilePath("/tmp/event" + char + "json")
			assert.Error(t, err, "expected error for %q", char)
		}
	})

	t.Run("makes relative paths absolute", func(t *testing.T) {
		result, err := ValidateFilePath("does-not-exist.json")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(result))
	})

	t.Run("resolves symlinks", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "event.json")
		require.NoError(t, os.WriteFile(target, []byte("{}"), 0o600))
		link := filepath.Join(dir, "latest.json")
		require.NoError(t, os.Symlink(target, link))

		result, err := ValidateFilePath(link)
		require.NoError(t, err)

		expected, _ := filepath.EvalSymlinks(target)
		assert.Equal(t, expected, result)
	})
}

func TestReadPayloadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads small files", func(t *testing.T) {
		path := filepath.Join(dir, "event.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"type":"payment"}`), 0o600))

		data, err := ReadPayloadFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"payment"}`, string(data))
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		path := filepath.Join(dir, "huge.json")
		require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("a"), MaxPayloadBytes+1), 0o600))

		_, err := ReadPayloadFile(path)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("rejects directories", func(t *testing.T) {
		_, err := ReadPayloadFile(dir)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadPayloadFile(filepath.Join(dir, "missing.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
