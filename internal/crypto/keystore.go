package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the salt size for passphrase key derivation.
	SaltSize = 32
	// PBKDF2Iterations is the iteration count for key derivation.
	PBKDF2Iterations = 100000
)

// KeyStore abstracts where the local encryption key material lives, so the
// engine stays host-agnostic. The key is not escrowed: losing it makes the
// cached data unrecoverable, and the remote store remains authoritative.
type KeyStore interface {
	// LoadOrCreate returns the symmetric key, generating and persisting it
	// on first use.
	LoadOrCreate() ([]byte, error)
}

// FileKeyStore persists key material in a local file with 0600 permissions.
// With a passphrase the file holds only a random salt and the key is derived
// via PBKDF2; without one the file holds the raw random key.
type FileKeyStore struct {
	Path       string
	Passphrase string
}

func NewFileKeyStore(path, passphrase string) *FileKeyStore {
	return &FileKeyStore{Path: path, Passphrase: passphrase}
}

func (ks *FileKeyStore) LoadOrCreate() ([]byte, error) {
	data, err := os.ReadFile(ks.Path)
	if err == nil {
		return ks.material(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	size := KeySize
	if ks.Passphrase != "" {
		size = SaltSize
	}
	data = make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return nil, err
	}
	if err := os.WriteFile(ks.Path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist key file: %w", err)
	}

	return ks.material(data)
}

func (ks *FileKeyStore) material(data []byte) ([]byte, error) {
	if ks.Passphrase != "" {
		if len(data) != SaltSize {
			return nil, errors.New("invalid salt size in key file")
		}
		return pbkdf2.Key([]byte(ks.Passphrase), data, PBKDF2Iterations, KeySize, sha256.New), nil
	}
	if len(data) != KeySize {
		return nil, errors.New("invalid key size in key file")
	}
	return data, nil
}
