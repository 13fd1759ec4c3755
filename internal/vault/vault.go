// Package vault implements authenticated encryption of credentials at rest,
// with strict decrypt-on-use: plaintext is only ever held for the duration
// of a single caller-side operation, never logged or retained.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. N is the CPU/memory cost factor; these match
// common production defaults for an interactive (not batch) KDF workload.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// applicationSalt is fixed per spec: the master key is derived from a
// process-wide secret via scrypt with a fixed application salt. Because the
// salt is fixed, the security of derived keys rests entirely on the
// strength and secrecy of the process-wide secret, not on salt uniqueness.
var applicationSalt = []byte("vpsagent-credential-vault-salt-v1")

// CredentialVault performs AES-256-GCM authenticated encryption of SSH and
// API credentials. Each plaintext gets a fresh random 96-bit IV; the 128-bit
// GCM tag authenticates both IV and ciphertext.
type CredentialVault struct {
	key []byte
}

// New derives a CredentialVault's key from secret via scrypt and returns
// the vault. secret should be a long, high-entropy process-wide value
// (SESSION_SECRET, API_KEY_ENCRYPTION_SECRET, or ENCRYPTION_KEY depending on
// which named vault is being constructed — see DESIGN.md).
func New(secret string) (*CredentialVault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := scrypt.Key([]byte(secret), applicationSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return &CredentialVault{key: key}, nil
}

// Encrypt seals plaintext and serializes it as
// hex(iv) ":" hex(tag) ":" hex(ciphertext).
func (v *CredentialVault) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: new gcm: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("vault: generate iv: %w", err)
	}

	// Seal appends the tag to the ciphertext; split it back out so we can
	// serialize iv/tag/ciphertext as three independent hex fields.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagSize := gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// EncryptString is a convenience wrapper over Encrypt for string plaintext.
func (v *CredentialVault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// Decrypt parses a serialized value and verifies + decrypts it.
// Returns ErrInvalidFormat if the serialization lacks three parts, or
// ErrAuthFail if the tag does not verify.
func (v *CredentialVault) Decrypt(serialized string) ([]byte, error) {
	parts := strings.Split(serialized, ":")
	if len(parts) != 3 {
		return nil, ErrInvalidFormat
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidFormat
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidFormat
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, ErrInvalidFormat
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthFail
	}
	return plaintext, nil
}

// DecryptString is a convenience wrapper over Decrypt returning a string.
func (v *CredentialVault) DecryptString(serialized string) (string, error) {
	plaintext, err := v.Decrypt(serialized)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
