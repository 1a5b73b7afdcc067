package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOsEnvProvider(t *testing.T) {
	t.Setenv("TEST1", "VALUE1")
	t.Setenv("TEST2", "VALUE2")

	provider := NewOsEnvProvider()

	value, found := provider.Get(t.Context(), "TEST1")
	assert.True(t, found)
	assert.Equal(t, "VALUE1", value)

	value, found = provider.Get(t.Context(), "TEST2")
	assert.True(t, found)
	assert.Equal(t, "VALUE2", value)

	value, found = provider.Get(t.Context(), "CLAUDE_MEMORY_TEST_UNSET_VAR")
	assert.False(t, found)
	assert.Empty(t, value)
}
