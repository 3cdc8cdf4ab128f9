package commands

import (
	"fmt"
	"os"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `tiendabot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and secrets",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			source := keySource(cfg)
			cfg.API.APIKey = maskKey(cfg.API.APIKey)
			cfg.Vision.APIKey = maskKey(cfg.Vision.APIKey)

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}

			fmt.Printf("# %s\n", path)
			if source != "" {
				fmt.Printf("# api key from: %s\n", source)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the OS keyring",
		Long: `Reads the API key without echo and stores it in the OS keyring
(service "tiendabot"). The keyring takes precedence over the environment
and the config file.

Examples:
  tiendabot config set-key
  echo "$KEY" | tiendabot config set-key`,
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := config.ReadSecret("API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty key, nothing stored")
			}
			if err := config.StoreKeyring(config.KeyringAPIKey, key); err != nil {
				return fmt.Errorf("storing API key: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := config.DeleteKeyring(config.KeyringAPIKey); err != nil {
				return fmt.Errorf("deleting API key: %w", err)
			}
			fmt.Println("API key removed from the OS keyring.")
			return nil
		},
	}
}

// keySource resolves the API key quietly and reports where it came from.
func keySource(cfg *config.Config) string {
	logger := config.NewLogger(config.LoggingConfig{Level: "error", Format: "text"}, false, os.Stderr)
	return config.ResolveAPIKey(cfg, logger)
}

// maskKey keeps the last four characters of a secret.
func maskKey(key string) string {
	if key == "" || config.IsEnvReference(key) {
		return key
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
