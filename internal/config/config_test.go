package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxRounds)
	assert.Equal(t, int64(120), cfg.TransferBufferSeconds)
	assert.Equal(t, 36.0, cfg.AstarMaxSpeedMPS)
	assert.Equal(t, 100, cfg.RangeCandidatesMax)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("MAX_ROUNDS", "12")
	t.Setenv("WALK_SPEED_MPS", "1.4")
	t.Setenv("INCLUDE_ADJACENT_DAYS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.MaxRounds)
	assert.Equal(t, 1.4, cfg.WalkSpeedMPS)
	assert.True(t, cfg.IncludeAdjacentDays)
}

func TestParseFeedSourcesSkipsMalformedPairs(t *testing.T) {
	sources := parseFeedSources("cityA=https://example.com/a.zip, badpair ,cityB=https://example.com/b.zip,noequals")
	require.Len(t, sources, 2)
	assert.Equal(t, FeedSource{Operator: "cityA", URL: "https://example.com/a.zip"}, sources[0])
	assert.Equal(t, FeedSource{Operator: "cityB", URL: "https://example.com/b.zip"}, sources[1])
}

func TestParseFeedSourcesEmptyString(t *testing.T) {
	assert.Empty(t, parseFeedSources(""))
}
