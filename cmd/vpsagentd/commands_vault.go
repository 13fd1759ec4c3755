package main

import (
	"github.com/spf13/cobra"
)

// buildVaultCmd creates the "vault" command group: an operator utility for
// encrypting/decrypting a single value against one of vpsagentd's three
// named vaults, or masking a secret for safe display, without starting the
// server or touching the database.
func buildVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Encrypt, decrypt, or mask a credential",
		Long: `Operate on a single credential value outside of a running server.

encrypt and decrypt derive a key from one of the three named secrets
(SESSION_SECRET, API_KEY_ENCRYPTION_SECRET, ENCRYPTION_KEY) via --which,
read from the environment or --secret, matching how vpsagentd derives the
same key at serve time. mask never touches a vault; it just elides a
secret for safe logging or terminal display.`,
	}

	cmd.AddCommand(buildVaultEncryptCmd())
	cmd.AddCommand(buildVaultDecryptCmd())
	cmd.AddCommand(buildVaultMaskCmd())

	return cmd
}

func buildVaultEncryptCmd() *cobra.Command {
	var which, secret string

	cmd := &cobra.Command{
		Use:   "encrypt <plaintext>",
		Short: "Encrypt a value with the named vault's key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultEncrypt(cmd, which, secret, args[0])
		},
	}
	cmd.Flags().StringVar(&which, "which", "session", "Which vault: session, apikey, or backup")
	cmd.Flags().StringVar(&secret, "secret", "", "Master secret (defaults to the matching env var)")
	return cmd
}

func buildVaultDecryptCmd() *cobra.Command {
	var which, secret string

	cmd := &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "Decrypt a value with the named vault's key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultDecrypt(cmd, which, secret, args[0])
		},
	}
	cmd.Flags().StringVar(&which, "which", "session", "Which vault: session, apikey, or backup")
	cmd.Flags().StringVar(&secret, "secret", "", "Master secret (defaults to the matching env var)")
	return cmd
}

func buildVaultMaskCmd() *cobra.Command {
	var visible int

	cmd := &cobra.Command{
		Use:   "mask <secret>",
		Short: "Print a secret with all but its last few characters replaced by *",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultMask(cmd, args[0], visible)
		},
	}
	cmd.Flags().IntVar(&visible, "visible", 4, "Number of trailing characters to leave visible")
	return cmd
}
