// Package keyring keeps tunnel key material in the OS credential store.
package keyring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const serviceName = "tunnlto"

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

// openSystem opens the platform credential store once per process.
func openSystem() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.WinCredBackend,       // Windows Credential Manager
				keyring.KeychainBackend,      // macOS Keychain
				keyring.SecretServiceBackend, // GNOME Keyring, KWallet
				keyring.PassBackend,          // password-store.org
			},
		})
	})
	return ring, ringErr
}

// Secrets implements the tunnel store's secret storage on top of a keyring.
type Secrets struct {
	kr keyring.Keyring
}

// Open returns Secrets backed by the system credential store.
func Open() (*Secrets, error) {
	kr, err := openSystem()
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &Secrets{kr: kr}, nil
}

// New wraps an existing keyring, such as keyring.NewArrayKeyring in tests.
func New(kr keyring.Keyring) *Secrets {
	return &Secrets{kr: kr}
}

func (s *Secrets) Set(key, value string) error {
	return s.kr.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "tunnlto " + key,
	})
}

// Get returns an empty string if nothing is stored under key.
func (s *Secrets) Get(key string) (string, error) {
	item, err := s.kr.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret: %w", err)
	}
	return string(item.Data), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Secrets) Delete(key string) error {
	err := s.kr.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Has reports whether anything is stored under key.
func (s *Secrets) Has(key string) bool {
	_, err := s.kr.Get(key)
	return err == nil
}
