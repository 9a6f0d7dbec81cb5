// Package credential manages API keys and bearer secrets used to
// authenticate MCP clients, and the stores that back them.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// EncryptionManager provides optional encryption at rest for stored secrets.
// Uses AES-GCM symmetric encryption when MCP_CREDENTIAL_ENCRYPTION_KEY is set.
type EncryptionManager struct {
	enabled bool
	key     []byte
	gcm     cipher.AEAD
}

// NewEncryptionManager initializes encryption from the
// MCP_CREDENTIAL_ENCRYPTION_KEY environment variable. If the key is 44
// characters it is treated as a base64-encoded key; otherwise it is derived
// using SHA256.
func NewEncryptionManager() *EncryptionManager {
	em := &EncryptionManager{}
	em.initEncryption()
	return em
}

func (em *EncryptionManager) initEncryption() {
	keyStr := os.Getenv("MCP_CREDENTIAL_ENCRYPTION_KEY")
	if keyStr == "" {
		return
	}

	var key []byte

	if len(keyStr) == 44 {
		decoded, err := base64.URLEncoding.DecodeString(keyStr)
		if err != nil {
			decoded, err = base64.StdEncoding.DecodeString(keyStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to decode encryption key: %v\n", err)
				return
			}
		}
		key = decoded
	} else {
		hash := sha256.Sum256([]byte(keyStr))
		key = hash[:]
	}

	if len(key) != 32 {
		hash := sha256.Sum256(key)
		key = hash[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create AES cipher: %v\n", err)
		return
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create GCM: %v\n", err)
		return
	}

	em.key = key
	em.gcm = gcm
	em.enabled = true
}

// Enabled returns true if encryption is configured and initialized.
func (em *EncryptionManager) Enabled() bool {
	return em.enabled
}

// Encrypt encrypts a string value using AES-GCM. Returns the original data
// unchanged if encryption is disabled or the operation fails. The output is
// base64 encoded and contains nonce + ciphertext + tag.
func (em *EncryptionManager) Encrypt(data string) string {
	if !em.enabled || data == "" {
		return data
	}

	nonce := make([]byte, em.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return data
	}

	ciphertext := em.gcm.Seal(nonce, nonce, []byte(data), nil)
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// Decrypt decrypts an AES-GCM encrypted value. Returns the original data if
// decryption fails.
func (em *EncryptionManager) Decrypt(data string) string {
	if !em.enabled || data == "" {
		return data
	}

	ciphertext, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return data
	}

	if len(ciphertext) < em.gcm.NonceSize() {
		return data
	}

	nonce, ciphertext := ciphertext[:em.gcm.NonceSize()], ciphertext[em.gcm.NonceSize():]

	plaintext, err := em.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return data
	}

	return string(plaintext)
}
