package tunnel

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

const keyLen = 32

// KeyPair is a base64 encoded WireGuard key pair.
type KeyPair struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// GenerateKeyPair creates a new curve25519 key pair with a clamped private key.
func GenerateKeyPair() (KeyPair, error) {
	var priv [keyLen]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return KeyPair{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	clamp(&priv)

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to derive public key: %w", err)
	}

	return KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// PublicKey derives the base64 public key for a base64 private key.
func PublicKey(privateKey string) (string, error) {
	priv, err := decodeKey(privateKey)
	if err != nil {
		return "", err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("failed to derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

func checkKey(key string) error {
	_, err := decodeKey(key)
	return err
}

func decodeKey(key string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("key is not valid base64: %w", err)
	}
	if len(raw) != keyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyLen, len(raw))
	}
	return raw, nil
}

func clamp(k *[keyLen]byte) {
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
}
