package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/internal/vault"
)

// vaultEnvVar maps --which to the env var vpsagentd reads at serve time for
// the matching secret, so `vault encrypt`/`vault decrypt` derive the exact
// same key the server would without requiring a config file.
func vaultEnvVar(which string) (string, error) {
	switch which {
	case "session":
		return "SESSION_SECRET", nil
	case "apikey":
		return "API_KEY_ENCRYPTION_SECRET", nil
	case "backup":
		return "ENCRYPTION_KEY", nil
	default:
		return "", fmt.Errorf("vault: unknown --which %q (want session, apikey, or backup)", which)
	}
}

func resolveSecret(which, secret string) (string, error) {
	if secret != "" {
		return secret, nil
	}
	envVar, err := vaultEnvVar(which)
	if err != nil {
		return "", err
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("vault: no secret given; pass --secret or set %s", envVar)
}

func buildDecryptor(which, secret string) (tools.CredentialDecryptor, error) {
	switch which {
	case "session":
		return vault.New(secret)
	case "apikey":
		return vault.NewAPIKeyVault(secret)
	case "backup":
		return vault.NewBackupVault(secret)
	default:
		return nil, fmt.Errorf("vault: unknown --which %q (want session, apikey, or backup)", which)
	}
}

// encryptor is the narrow port shared by CredentialVault and APIKeyVault
// that runVaultEncrypt needs; both already implement it.
type encryptor interface {
	EncryptString(plaintext string) (string, error)
}

func runVaultEncrypt(cmd *cobra.Command, which, secretFlag, plaintext string) error {
	secret, err := resolveSecret(which, secretFlag)
	if err != nil {
		return err
	}
	v, err := buildDecryptor(which, secret)
	if err != nil {
		return err
	}
	enc, ok := v.(encryptor)
	if !ok {
		return fmt.Errorf("vault: %s vault does not support encryption", which)
	}
	ciphertext, err := enc.EncryptString(plaintext)
	if err != nil {
		return fmt.Errorf("vault: encrypt: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ciphertext)
	return nil
}

func runVaultDecrypt(cmd *cobra.Command, which, secretFlag, ciphertext string) error {
	secret, err := resolveSecret(which, secretFlag)
	if err != nil {
		return err
	}
	v, err := buildDecryptor(which, secret)
	if err != nil {
		return err
	}
	plaintext, err := v.DecryptString(ciphertext)
	if err != nil {
		return fmt.Errorf("vault: decrypt: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), plaintext)
	return nil
}

func runVaultMask(cmd *cobra.Command, secret string, visible int) error {
	if visible < 0 {
		visible = 0
	}
	masked := secret
	if len(secret) > visible {
		masked = strings.Repeat("*", len(secret)-visible) + secret[len(secret)-visible:]
	}
	fmt.Fprintln(cmd.OutOrStdout(), masked)
	return nil
}
