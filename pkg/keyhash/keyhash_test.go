package keyhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUniqueAndPrefixed(t *testing.T) {
	a := Generate()
	b := Generate()

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, keyNamespace)
	assert.Len(t, a, len(keyNamespace)+48)
}

func TestHashDeterministic(t *testing.T) {
	require.Equal(t, Hash("sk_live_abc"), Hash("sk_live_abc"))
	require.NotEqual(t, Hash("sk_live_abc"), Hash("sk_live_abd"))
	// sha256("") as a fixed point guards against accidental algorithm swaps.
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(""))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "sk_live_", Prefix("sk_live_0123456789"))
	assert.Equal(t, "short", Prefix("short"))
}

func TestMatch(t *testing.T) {
	key := Generate()
	stored := Hash(key)

	assert.True(t, Match(key, stored))
	assert.False(t, Match(key+"x", stored))
	assert.False(t, Match(key, Hash("other")))
}
