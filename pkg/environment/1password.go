package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/1password/onepassword-sdk-go"

	claudesync "github.com/claude-memory/claude-memory-go/pkg/sync"
)

type OnePasswordProvider struct {
	connect func() (onepassword.SecretsAPI, error)
	logger  *slog.Logger
}

func NewOnePasswordProvider(logger *slog.Logger) *OnePasswordProvider {
	p := &OnePasswordProvider{logger: logger}
	p.connect = claudesync.OnceErr(p.dial)
	return p
}

func (p *OnePasswordProvider) dial() (onepassword.SecretsAPI, error) {
	opToken := os.Getenv("OP_SERVICE_ACCOUNT_TOKEN")
	if opToken == "" {
		return nil, errors.New("OP_SERVICE_ACCOUNT_TOKEN environment variable is required for 1Password integration")
	}

	client, err := onepassword.NewClient(context.Background(),
		onepassword.WithServiceAccountToken(opToken),
		onepassword.WithIntegrationInfo("claude-memory-service 1Password Integration", "v1.0.0"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to 1Password: %w", err)
	}

	return client.Secrets(), nil
}

func (p *OnePasswordProvider) Get(ctx context.Context, name string) (string, bool) {
	path := "op://claude-memory/" + name + "/credential"
	p.logger.Debug("looking for credential in 1Password", "path", path)

	secrets, err := p.connect()
	if err != nil {
		p.logger.Debug("1Password unavailable", "error", err)
		return "", false
	}

	secret, err := secrets.Resolve(ctx, path)
	if err != nil {
		p.logger.Debug("credential not found in 1Password", "name", name, "error", err)
		return "", false
	}

	return secret, true
}
