package feedsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetainsOperatorTag(t *testing.T) {
	src, err := New("op", "https://example.com/gtfs.zip")
	require.NoError(t, err)
	assert.Equal(t, "op", src.Operator())
}
