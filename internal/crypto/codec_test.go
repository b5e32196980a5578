package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewAESCodec(testKey(t))
	if err != nil {
		t.Fatalf("NewAESCodec: %v", err)
	}

	original := map[string]any{
		"id":       "task-1",
		"title":    "Review intake forms",
		"metadata": map[string]any{"assignee": "dr-lee", "priority": float64(2)},
		"done":     false,
	}
	plain, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	sealed, err := codec.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("Review intake forms")) {
		t.Error("ciphertext leaks plaintext")
	}

	opened, err := codec.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(opened, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, original) {
		t.Errorf("round trip mismatch: got %v, want %v", got, original)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	codec, err := NewAESCodec(testKey(t))
	if err != nil {
		t.Fatalf("NewAESCodec: %v", err)
	}

	a, err := codec.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := codec.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	codec, err := NewAESCodec(testKey(t))
	if err != nil {
		t.Fatalf("NewAESCodec: %v", err)
	}
	other, err := NewAESCodec(testKey(t))
	if err != nil {
		t.Fatalf("NewAESCodec: %v", err)
	}

	sealed, err := codec.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := other.Decrypt(sealed); err == nil {
		t.Error("expected decryption with wrong key to fail")
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	codec, err := NewAESCodec(testKey(t))
	if err != nil {
		t.Fatalf("NewAESCodec: %v", err)
	}
	if _, err := codec.Decrypt([]byte("short")); err == nil {
		t.Error("expected short ciphertext to be rejected")
	}
}

func TestFileKeyStoreGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.key")
	ks := NewFileKeyStore(path, "")

	first, err := ks.LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if len(first) != KeySize {
		t.Fatalf("key size = %d, want %d", len(first), KeySize)
	}

	second, err := ks.LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate (second): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("key changed between loads")
	}
}

func TestFileKeyStorePassphraseDerivation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.key")

	first, err := NewFileKeyStore(path, "hunter2").LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	second, err := NewFileKeyStore(path, "hunter2").LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate (second): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same passphrase and salt derived different keys")
	}

	other, err := NewFileKeyStore(path, "different").LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate (other passphrase): %v", err)
	}
	if bytes.Equal(first, other) {
		t.Error("different passphrases derived the same key")
	}
}
