// Package crypto provides symmetric at-rest encryption for diary
// free-text fields using a single process-wide AES-256-GCM key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu  sync.RWMutex
	gcm cipher.AEAD
)

// Init loads ENCRYPTION_KEY (base64, 32 bytes) and prepares the cipher.
func Init() error {
	raw := os.Getenv("ENCRYPTION_KEY")
	if raw == "" {
		return fmt.Errorf("ENCRYPTION_KEY environment variable is not set")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	mu.Lock()
	gcm = aead
	mu.Unlock()
	return nil
}

// MustInit is Init with a fail-fast exit, for server startup.
func MustInit() {
	if err := Init(); err != nil {
		log.Fatalf("FATAL: encryption init failed: %v", err)
	}
}

// Encrypt returns a base64 ciphertext token for s. Empty input passes
// through unchanged. Re-encrypting an existing token is allowed and
// yields a different valid token.
func Encrypt(s string) string {
	if s == "" {
		return ""
	}
	mu.RLock()
	aead := gcm
	mu.RUnlock()
	if aead == nil {
		log.Println("crypto: Encrypt called before Init, storing plaintext")
		return s
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		log.Printf("crypto: nonce generation failed: %v", err)
		return s
	}
	sealed := aead.Seal(nonce, nonce, []byte(s), nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// Decrypt reverses Encrypt. Empty input passes through. Any failure
// (corrupt token, wrong key, legacy plaintext row) returns the input
// unchanged; partially migrated data must still be readable.
func Decrypt(s string) string {
	if s == "" {
		return ""
	}
	mu.RLock()
	aead := gcm
	mu.RUnlock()
	if aead == nil {
		return s
	}
	sealed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	if len(sealed) < aead.NonceSize() {
		return s
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return s
	}
	return string(plain)
}
