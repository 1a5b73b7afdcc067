package environment

import (
	"context"
	"log/slog"
)

// NoFailProvider wraps a Provider that may panic (e.g. on a misconfigured
// SDK client) and guarantees Get never does, treating a recovered panic the
// same as "not found".
type NoFailProvider struct {
	provider Provider
}

func NewNoFailProvider(provider Provider) *NoFailProvider {
	return &NoFailProvider{
		provider: provider,
	}
}

func (p *NoFailProvider) Get(ctx context.Context, name string) (value string, found bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("credential provider panicked, ignoring", "panic", r)
			value, found = "", false
		}
	}()

	return p.provider.Get(ctx, name)
}
