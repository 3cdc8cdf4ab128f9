// Package commands implements the tiendabot CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/config"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/dispatcher"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/llm"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/media"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/storage"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tiendabot",
		Short: "WhatsApp assistant for a grocery store",
		Long: `tiendabot answers store employees on WhatsApp. It saves and reads
named notes, forwards questions to a language model and files receipts,
photos, voice notes and documents sent to it.

Examples:
  tiendabot setup
  tiendabot serve
  tiendabot chat "guardar:pedidos:3 cajas de leche"
  tiendabot config set-key`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// resolveConfig loads the --config file or the first discovered one.
// Returns (config, configPath, error).
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := config.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, configPath, nil
	}

	if found := config.FindConfigFile(); found != "" {
		cfg, err := config.LoadConfigFromFile(found)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, found, nil
	}

	return nil, "", fmt.Errorf("no configuration file found, run: tiendabot setup")
}

// runtime holds the collaborators shared by serve and chat.
type runtime struct {
	store   storage.TextStore
	assets  *media.FileSystemStore
	gateway *llm.Client
}

// newRuntime opens the stores and the completion client.
func newRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening text store: %w", err)
	}

	assets := media.NewFileSystemStore(cfg.Media.AssetsDir, logger)
	if err := assets.EnsureDir(); err != nil {
		store.Close()
		return nil, fmt.Errorf("preparing assets dir: %w", err)
	}

	return &runtime{
		store:   store,
		assets:  assets,
		gateway: llm.NewClient(cfg.API, cfg.Vision, logger),
	}, nil
}

func (r *runtime) dispatcher(cfg *config.Config, fetcher dispatcher.MediaFetcher, logger *slog.Logger) *dispatcher.Dispatcher {
	return dispatcher.New(cfg.Dispatcher, dispatcher.Deps{
		Store:   r.store,
		Assets:  r.assets,
		Fetcher: fetcher,
		Gateway: r.gateway,
		Limits:  cfg.Media.Limits,
	}, logger)
}

func (r *runtime) Close() error {
	return r.store.Close()
}
