package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/summaru/pkg/summaru/config"
)

// secretKeys are the secrets the bot knows about.
var secretKeys = []string{config.SecretDiscordToken, config.SecretGeminiKey}

// newSecretCmd creates the `summaru secret` command group for managing
// credentials in the OS keyring.
func newSecretCmd() *cobra.Command {
	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the OS keyring",
		Long: `Store the Discord bot token and the Gemini API key in the operating
system's native keyring so they never touch the config file.

Keys: ` + fmt.Sprint(secretKeys),
	}

	secretCmd.AddCommand(newSecretSetCmd(), newSecretDeleteCmd(), newSecretStatusCmd())
	return secretCmd
}

func validSecretKey(key string) bool {
	for _, k := range secretKeys {
		if k == key {
			return true
		}
	}
	return false
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret (prompted, hidden input)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key := args[0]
			if !validSecretKey(key) {
				return fmt.Errorf("unknown secret %q (valid: %v)", key, secretKeys)
			}

			value, err := config.ReadSecret(fmt.Sprintf("Value for %s: ", key))
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty value, nothing stored")
			}

			if err := config.StoreSecret(key, value); err != nil {
				return fmt.Errorf("storing %s: %w", key, err)
			}
			fmt.Printf("Stored %s in the OS keyring.\n", key)
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key := args[0]
			if !validSecretKey(key) {
				return fmt.Errorf("unknown secret %q (valid: %v)", key, secretKeys)
			}
			if err := config.DeleteSecret(key); err != nil {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
			fmt.Printf("Deleted %s from the OS keyring.\n", key)
			return nil
		},
	}
}

func newSecretStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which secrets are present",
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, key := range secretKeys {
				state := "not set"
				if config.GetSecret(key) != "" {
					state = "set (keyring)"
				}
				fmt.Printf("  %-16s %s\n", key, state)
			}
			return nil
		},
	}
}
