package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnified(t *testing.T) {
	t.Run("equal_content_yields_empty_diff", func(t *testing.T) {
		text, isBinary, err := Unified("a.txt", []byte("same\n"), []byte("same\n"))
		require.NoError(t, err)
		assert.Empty(t, text)
		assert.False(t, isBinary)
	})

	t.Run("changed_lines_show_markers", func(t *testing.T) {
		text, isBinary, err := Unified("a.txt", []byte("foo\nkeep\n"), []byte("bar\nkeep\n"))
		require.NoError(t, err)
		assert.False(t, isBinary)
		assert.True(t, strings.HasPrefix(text, "--- a.txt"))
		assert.Contains(t, text, "+++ a.txt")
		assert.Contains(t, text, "-foo")
		assert.Contains(t, text, "+bar")
		assert.Contains(t, text, " keep")
	})

	t.Run("invalid_utf8_suppresses_diff", func(t *testing.T) {
		text, isBinary, err := Unified("a.bin", []byte{0xff, 0xfe}, []byte("ok"))
		require.NoError(t, err)
		assert.Empty(t, text)
		assert.True(t, isBinary)
	})

	t.Run("invalid_utf8_on_either_side_counts", func(t *testing.T) {
		_, isBinary, err := Unified("a.bin", []byte("ok"), []byte{0xff})
		require.NoError(t, err)
		assert.True(t, isBinary)
	})
}
