package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// apiKeySalt is the fixed application salt used for the historical API-key
// vault. It is deliberately distinct from applicationSalt so that the two
// vaults never share a derived key even if given the same secret.
var apiKeySalt = []byte("vpsagent-apikey-vault-salt-v1")

// APIKeyVault is the historical CBC+PKCS7 encryption scheme kept for API
// keys. New credential material should use CredentialVault (AES-256-GCM);
// this type exists because API keys predate the switch to authenticated
// encryption and the two are never folded into a single key (see
// DESIGN.md Open Question resolutions).
type APIKeyVault struct {
	key []byte
}

// NewAPIKeyVault derives an APIKeyVault's key from secret via scrypt.
func NewAPIKeyVault(secret string) (*APIKeyVault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := scrypt.Key([]byte(secret), apiKeySalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return &APIKeyVault{key: key}, nil
}

// backupSalt keeps the ENCRYPTION_KEY-derived backup vault's key independent
// of both apiKeySalt and applicationSalt: three named secrets, three
// non-interchangeable keys, per spec.md's "yet another key" note on
// BackupConfig.EncryptedPassword.
var backupSalt = []byte("vpsagent-backup-vault-salt-v1")

// NewBackupVault derives the ENCRYPTION_KEY-keyed vault that decrypts
// BackupConfig.EncryptedPassword. It reuses APIKeyVault's CBC+PKCS7 scheme
// under its own salt rather than introducing a fourth encryption format.
func NewBackupVault(secret string) (*APIKeyVault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := scrypt.Key([]byte(secret), backupSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return &APIKeyVault{key: key}, nil
}

// Encrypt pads plaintext with PKCS7, encrypts under AES-256-CBC with a
// random IV, and serializes as hex(iv) ":" hex(ciphertext).
func (v *APIKeyVault) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: new cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("vault: generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// EncryptString is a convenience wrapper over Encrypt for string plaintext.
func (v *APIKeyVault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// Decrypt parses a serialized value, decrypts it under AES-256-CBC, and
// strips PKCS7 padding. Returns ErrInvalidFormat if the serialization lacks
// two parts, the ciphertext isn't block-aligned, or the padding is invalid.
func (v *APIKeyVault) Decrypt(serialized string) ([]byte, error) {
	parts := strings.Split(serialized, ":")
	if len(parts) != 2 {
		return nil, ErrInvalidFormat
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrInvalidFormat
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidFormat
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidFormat
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}

// DecryptString is a convenience wrapper over Decrypt returning a string.
func (v *APIKeyVault) DecryptString(serialized string) (string, error) {
	plaintext, err := v.Decrypt(serialized)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidFormat
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, ErrAuthFail
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, ErrAuthFail
	}
	return data[:len(data)-padLen], nil
}
