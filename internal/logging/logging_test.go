package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("level", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{Level: "WARN", Format: "json", Output: "stderr"})
		require.NoError(t, err)
		defer closer.Close()
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	})

	t.Run("empty level defaults to info", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{})
		require.NoError(t, err)
		defer closer.Close()
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("invalid level", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "library.log")
		logger, closer, err := New(config.LoggingConfig{Level: "info", Output: path})
		require.NoError(t, err)

		logger.Info().Str("book", "dune").Msg("reserved")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"book":"dune"`)
		assert.Contains(t, string(data), `"message":"reserved"`)
	})
}
