package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// KeyringService is the service name used in the OS keyring.
	KeyringService = "tiendabot"

	// KeyringAPIKey is the key name for the completion API key.
	KeyringAPIKey = "api_key"
)

// APIKeyEnvVars are consulted in order when the keyring has no key.
var APIKeyEnvVars = []string{"TIENDABOT_API_KEY", "OPENAI_API_KEY"}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(KeyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, or "" if absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(KeyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(KeyringService, key)
}

// ResolveAPIKey sets cfg.API.APIKey from the OS keyring, then the
// environment, then the config value itself. It returns where the key came
// from ("keyring", the variable name, "config" or ""). An unresolved vision
// key is cleared so the vision client inherits the chat key.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	// An unexpanded vision key falls back to the chat key.
	if IsEnvReference(cfg.Vision.APIKey) {
		logger.Warn("vision.api_key references an unset variable, using the chat key",
			"ref", cfg.Vision.APIKey)
		cfg.Vision.APIKey = ""
	}

	if val := GetKeyring(KeyringAPIKey); val != "" {
		cfg.API.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return "keyring"
	}

	for _, name := range APIKeyEnvVars {
		if val := os.Getenv(name); val != "" {
			cfg.API.APIKey = val
			logger.Debug("API key loaded from environment", "var", name)
			return name
		}
	}

	if cfg.API.APIKey != "" && !IsEnvReference(cfg.API.APIKey) {
		logger.Debug("API key loaded from config")
		return "config"
	}

	cfg.API.APIKey = ""
	logger.Warn("no API key found. Set one with: tiendabot config set-key")
	return ""
}

// ReadSecret prompts on stdout and reads a line without echo when stdin is a
// terminal. Piped input is read as a plain line.
func ReadSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
