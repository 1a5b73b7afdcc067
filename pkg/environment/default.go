package environment

import "log/slog"

// NewDefaultProvider builds the credential chain provider API keys and
// other secrets are resolved through: OS environment, then (in a
// container) /run/secrets, then 1Password, then the `pass` CLI if installed,
// then the OS-native keyring if a backend is available. Every backend but
// the OS environment is best-effort:
// a missing binary or unconfigured integration is skipped, not fatal.
func NewDefaultProvider() Provider {
	p := []Provider{
		NewOsEnvProvider(),
	}

	if IsInContainer() {
		p = append(p, NewRunSecretsProvider())
	}

	p = append(p, NewNoFailProvider(NewOnePasswordProvider(slog.Default())))

	if passProvider, err := NewPassProvider(); err == nil {
		p = append(p, passProvider)
	}

	if keychainProvider, err := NewKeychainProvider(); err == nil {
		p = append(p, keychainProvider)
	}

	return NewMultiProvider(p...)
}
