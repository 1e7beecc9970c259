package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		token, err := Token()
		require.NoError(t, err)
		require.Len(t, token, 32)
		assert.True(t, ValidToken(token))
		_, dup := seen[token]
		require.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}
	}
}

func TestValidTokenRejectsMalformed(t *testing.T) {
	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken("not-a-token"))
	assert.False(t, ValidToken(strings.Repeat("z", 32)))
	assert.False(t, ValidToken(strings.Repeat("a", 31)))
}

func TestNewKeepsPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(New("term"), "term-"))
}
