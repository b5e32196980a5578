package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

const (
	// NonceSize is the nonce size for AES-GCM.
	NonceSize = 12
	// KeySize is the AES-256 key size.
	KeySize = 32
)

// Codec encrypts records before persistence and decrypts them on read.
type Codec interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESCodec is an AES-256-GCM Codec. Each encryption uses a fresh random
// nonce prepended to the ciphertext, so decryption needs only the key.
type AESCodec struct {
	gcm cipher.AEAD
}

// NewAESCodec creates a codec from a raw 32-byte key.
func NewAESCodec(key []byte) (*AESCodec, error) {
	if len(key) != KeySize {
		return nil, errors.New("encryption key must be 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESCodec{gcm: gcm}, nil
}

func (c *AESCodec) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *AESCodec) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:NonceSize]
	return c.gcm.Open(nil, nonce, ciphertext[NonceSize:], nil)
}
