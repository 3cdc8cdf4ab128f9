package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels/whatsapp"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/config"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/media"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `tiendabot serve` command that runs the WhatsApp bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to WhatsApp and answer messages",
		Long: `Start tiendabot as a service. On first run a QR code is printed;
scan it from WhatsApp > Linked devices. The session is kept in sqlite.

Examples:
  tiendabot serve
  tiendabot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := config.NewLogger(cfg.Logging, verbose, os.Stdout)
	logger.Info("config loaded", "path", configPath)

	// ── Resolve secrets ──
	config.ResolveAPIKey(cfg, logger)

	// ── Stores and gateway ──
	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Media.Retention.Enabled {
		retention, err := media.NewRetention(cfg.Media.Retention, rt.assets, logger)
		if err != nil {
			return fmt.Errorf("configuring asset retention: %w", err)
		}
		retention.Start()
		defer retention.Stop()
	}

	// ── WhatsApp ──
	waCfg := cfg.WhatsApp
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		waCfg.Debug = true
	}
	wa := whatsapp.New(waCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := wa.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to WhatsApp: %w", err)
	}

	// ── Dispatcher ──
	d := rt.dispatcher(cfg, wa, logger)
	runCtx, stopRun := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		d.Run(runCtx, wa)
		close(done)
	}()

	logger.Info("tiendabot running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"model", cfg.API.Model,
		"storage", cfg.Storage.Backend,
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	// Stop intake first so in-flight replies still reach WhatsApp.
	stopRun()
	select {
	case <-done:
		logger.Info("in-flight messages delivered")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out after 30s, pending replies dropped")
	}

	if err := wa.Disconnect(); err != nil {
		logger.Warn("whatsapp disconnect failed", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
