package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("defaults pass", func(t *testing.T) {
		require.NoError(t, defaultConfig().Validate())
	})

	t.Run("unordered thresholds rejected", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Retrieval.GoodScore = cfg.Retrieval.HighScore
		assert.Error(t, cfg.Validate())
	})

	t.Run("inverted chunk bounds rejected", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Ingest.MinChunkLen = 1200
		cfg.Ingest.MaxChunkLen = 200
		assert.Error(t, cfg.Validate())
	})

	t.Run("tight chunk bounds rejected", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Ingest.MinChunkLen = 200
		cfg.Ingest.MaxChunkLen = 300
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "twice")
	})

	t.Run("overlap out of range rejected", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Ingest.OverlapFraction = 1.0
		assert.Error(t, cfg.Validate())
	})
}
