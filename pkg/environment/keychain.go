package environment

import (
	"context"

	"github.com/99designs/keyring"
)

// KeychainProvider retrieves secrets from the OS-native credential store:
// macOS Keychain, Windows Credential Manager (via Microsoft/go-winio), or a
// Linux Secret Service / KWallet backend, whichever 99designs/keyring finds
// available on the host.
type KeychainProvider struct {
	ring keyring.Keyring
}

const keychainServiceName = "claude-memory-service"

// NewKeychainProvider opens the OS-native keyring backend. It returns an
// error if no supported backend is available on the host (e.g. a headless
// Linux box with no Secret Service or KWallet running).
func NewKeychainProvider() (*KeychainProvider, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keychainServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
		},
		KeychainTrustApplication: true,
		LibSecretCollectionName:  keychainServiceName,
		KWalletAppID:             keychainServiceName,
		KWalletFolder:            keychainServiceName,
		WinCredPrefix:            keychainServiceName,
	})
	if err != nil {
		return nil, err
	}
	return &KeychainProvider{ring: ring}, nil
}

// Get retrieves the value of a secret by name from the OS keyring.
func (p *KeychainProvider) Get(_ context.Context, name string) (string, bool) {
	item, err := p.ring.Get(name)
	if err != nil {
		return "", false
	}
	return string(item.Data), true
}
