// Secret storage via the operating system's native keyring (Linux: Secret
// Service, macOS: Keychain, Windows: Credential Manager).
//
// Resolution priority: OS keyring → environment variable (incl. .env) →
// config file value (plaintext on disk, least secure).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "summaru"

	// SecretDiscordToken is the keyring entry for the Discord bot token.
	SecretDiscordToken = "discord_token"

	// SecretGeminiKey is the keyring entry for the Google AI API key.
	SecretGeminiKey = "gemini_api_key"
)

// StoreSecret saves a secret to the OS keyring.
func StoreSecret(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetSecret retrieves a secret from the OS keyring. Empty if not found or
// the keyring is unavailable.
func GetSecret(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteSecret removes a secret from the OS keyring.
func DeleteSecret(key string) error {
	return keyring.Delete(keyringService, key)
}

// ReadSecret prompts for a secret without echoing it. Piped and non-TTY
// input falls back to a plain read.
func ReadSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	value, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		var buf [1024]byte
		n, readErr := os.Stdin.Read(buf[:])
		if readErr != nil {
			return "", fmt.Errorf("config: reading secret: %w", readErr)
		}
		value = buf[:n]
	}
	return strings.TrimSpace(string(value)), nil
}

// ResolveSecret resolves a secret through the priority chain:
// keyring → environment variable → config file value.
func ResolveSecret(keyringKey, envVar, configValue string) string {
	if v := GetSecret(keyringKey); v != "" {
		return v
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return configValue
}
