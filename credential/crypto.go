package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// deriveKey stretches an arbitrary-length master secret into a 32-byte
// AES-256 key. SHA-256 rather than a slower KDF is sufficient here: the
// master secret itself is a high-entropy, operator-provisioned value, not
// a user password, so there is no offline brute-force budget to defend
// against beyond "don't leak the derived key."
func deriveKey(masterSecret string) [32]byte {
	return sha256.Sum256([]byte(masterSecret))
}

// Encrypt seals plaintext with AES-256-GCM under masterSecret, returning
// the ciphertext and the random IV used to produce it. The IV must be
// stored alongside the ciphertext; it is not secret.
func Encrypt(masterSecret, plaintext string) (ciphertext, iv []byte, err error) {
	key := deriveKey(masterSecret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("new gcm: %w", err)
	}
	iv = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("read iv: %w", err)
	}
	ciphertext = gcm.Seal(nil, iv, []byte(plaintext), nil)
	return ciphertext, iv, nil
}

// Decrypt opens ciphertext sealed by Encrypt under masterSecret and iv.
// It never panics or returns a generic error for tampered or mis-keyed
// input — a failed authenticated decryption is reported via ok=false so
// callers treat it as "credential unavailable," never a crash (spec §4.1).
func Decrypt(masterSecret string, ciphertext, iv []byte) (plaintext string, ok bool) {
	key := deriveKey(masterSecret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", false
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", false
	}
	if len(iv) != gcm.NonceSize() {
		return "", false
	}
	plain, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}
