package environment

import "context"

// CredentialHelperTokenEnv is the single credential name CredentialHelperProvider
// answers for; it backs whatever provider key an operator has configured the
// external helper command to resolve (spec §9 allows any one fixed secret
// per deployment, not an arbitrary name->secret mapping).
const CredentialHelperTokenEnv = "CLAUDE_MEMORY_CREDENTIAL_TOKEN"

// CredentialHelperProvider retrieves a single credential by shelling out to
// an external CLI command configured by the operator.
type CredentialHelperProvider struct {
	command string
	args    []string
}

// NewCredentialHelperProvider creates a new CredentialHelperProvider instance.
// The command parameter is the command to execute to retrieve the credential.
func NewCredentialHelperProvider(command string, args ...string) *CredentialHelperProvider {
	return &CredentialHelperProvider{command: command, args: args}
}

func (p *CredentialHelperProvider) Get(ctx context.Context, name string) (string, bool) {
	if name != CredentialHelperTokenEnv {
		return "", false
	}

	value, found := runCommand(ctx, "credential helper", p.command, p.args...)
	if !found || value == "" {
		return "", false
	}

	return value, true
}
