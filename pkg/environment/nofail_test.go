package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoFailProviderFound(t *testing.T) {
	t.Setenv("TEST1", "VALUE1")

	provider := NewNoFailProvider(NewOsEnvProvider())
	value, found := provider.Get(t.Context(), "TEST1")

	assert.True(t, found)
	assert.Equal(t, "VALUE1", value)
}

func TestNoFailProviderNotFound(t *testing.T) {
	provider := NewNoFailProvider(NewOsEnvProvider())
	value, found := provider.Get(t.Context(), "CLAUDE_MEMORY_TEST_UNSET_VAR")

	assert.False(t, found)
	assert.Empty(t, value)
}

func TestNoFailProviderRecoversFromPanic(t *testing.T) {
	provider := NewNoFailProvider(&alwaysPanicsProvider{})
	value, found := provider.Get(t.Context(), "TEST3")

	assert.False(t, found)
	assert.Empty(t, value)
}

type alwaysPanicsProvider struct{}

func (p *alwaysPanicsProvider) Get(context.Context, string) (string, bool) {
	panic("boom")
}
