package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/config"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/dispatcher"
	"github.com/spf13/cobra"
)

// newChatCmd creates the `tiendabot chat` command that runs the text path locally.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: `Send one message, or start an interactive session without arguments.
Messages go through the same commands and model as WhatsApp text messages.

Examples:
  tiendabot chat "leer:inventario"
  tiendabot chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logCfg := cfg.Logging
	logCfg.Format = "text"
	if !verbose && logCfg.Level != "debug" {
		logCfg.Level = "warn"
	}
	logger := config.NewLogger(logCfg, verbose, os.Stderr)
	config.ResolveAPIKey(cfg, logger)

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	d := rt.dispatcher(cfg, nil, logger)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) > 0 {
		fmt.Println(ask(ctx, d, args[0]))
		return nil
	}
	return repl(ctx, d)
}

// repl reads lines until EOF, "exit" or "salir".
func repl(ctx context.Context, d *dispatcher.Dispatcher) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".tiendabot_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tienda> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting prompt: %w", err)
	}
	defer rl.Close()

	fmt.Println("Escribe guardar:<nombre>:<texto>, leer:<nombre> o una pregunta. \"salir\" para terminar.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "salir":
			return nil
		}
		fmt.Println(ask(ctx, d, line))
	}
}

func ask(ctx context.Context, d *dispatcher.Dispatcher, text string) string {
	return d.Dispatch(ctx, &channels.IncomingMessage{
		ID:        uuid.NewString(),
		Channel:   "cli",
		From:      "cli",
		ChatID:    "cli",
		Type:      channels.MessageText,
		Content:   text,
		Timestamp: time.Now(),
	})
}
