package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/config"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/storage"
	"github.com/spf13/cobra"
)

// providerPresets maps the provider choice to an OpenAI-compatible base URL
// and a sensible default model.
var providerPresets = map[string]struct {
	baseURL string
	model   string
}{
	"openai":     {"https://api.openai.com/v1", "gpt-4o-mini"},
	"openrouter": {"https://openrouter.ai/api/v1", "openai/gpt-4o-mini"},
	"gemini":     {"https://generativelanguage.googleapis.com/v1beta/openai", "gemini-2.0-flash"},
	"ollama":     {"http://localhost:11434/v1", "llama3.2"},
}

// Where the setup wizard keeps the API key.
const (
	secretKeyring = "keyring"
	secretEnvFile = "env"
	secretSkip    = "skip"
)

// newSetupCmd creates the `tiendabot setup` command with the interactive wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Walks through the model provider, API key, storage backend and
WhatsApp options, then writes config.yaml.

The API key is never written into config.yaml. It goes to the OS keyring
or to a .env file next to the config.`,
		RunE: runSetup,
	}
}

// setupAnswers collects the wizard fields before they are applied to a Config.
type setupAnswers struct {
	name            string
	provider        string
	baseURL         string
	model           string
	apiKey          string
	secretTarget    string
	backend         string
	respondToGroups bool
	overwrite       bool
}

func runSetup(cmd *cobra.Command, _ []string) error {
	target, _ := cmd.Root().PersistentFlags().GetString("config")
	if target == "" {
		target = "config.yaml"
	}

	fmt.Println()
	fmt.Println("  tiendabot setup")
	fmt.Println("  ───────────────")
	fmt.Println()

	cfg := config.DefaultConfig()
	ans := setupAnswers{
		name:            cfg.Name,
		provider:        "openai",
		model:           cfg.API.Model,
		secretTarget:    secretKeyring,
		backend:         cfg.Storage.Backend,
		respondToGroups: cfg.WhatsApp.RespondToGroups,
	}

	if _, err := os.Stat(target); err == nil {
		confirm := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s already exists. Overwrite it?", target)).
				Description("The current file is kept as " + target + ".bak").
				Value(&ans.overwrite),
		))
		if err := confirm.Run(); err != nil {
			return wizardErr(err)
		}
		if !ans.overwrite {
			fmt.Println("  Setup cancelled, nothing written.")
			return nil
		}
	}

	if err := providerForm(&ans).Run(); err != nil {
		return wizardErr(err)
	}

	preset, known := providerPresets[ans.provider]
	if known {
		ans.baseURL = preset.baseURL
		if ans.model == cfg.API.Model {
			ans.model = preset.model
		}
	}

	if err := detailsForm(&ans, known).Run(); err != nil {
		return wizardErr(err)
	}

	applyAnswers(cfg, &ans)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid answers: %w", err)
	}

	if err := storeSecret(&ans, filepath.Dir(target)); err != nil {
		return err
	}

	if err := config.SaveConfigToFile(cfg, target); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  Config written to %s\n", target)
	fmt.Println("  Next: tiendabot serve   (scan the QR code from WhatsApp > Linked devices)")
	fmt.Println()
	return nil
}

func providerForm(ans *setupAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant name").
				Value(&ans.name),
			huh.NewSelect[string]().
				Title("Model provider").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("OpenRouter", "openrouter"),
					huh.NewOption("Google Gemini (OpenAI endpoint)", "gemini"),
					huh.NewOption("Ollama (local)", "ollama"),
					huh.NewOption("Other OpenAI-compatible API", "custom"),
				).
				Value(&ans.provider),
		),
	)
}

func detailsForm(ans *setupAnswers, knownProvider bool) *huh.Form {
	fields := []huh.Field{}
	if !knownProvider {
		fields = append(fields, huh.NewInput().
			Title("Base URL").
			Placeholder("https://host/v1").
			Value(&ans.baseURL).
			Validate(func(s string) error {
				if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
					return errors.New("must start with http:// or https://")
				}
				return nil
			}))
	}
	fields = append(fields,
		huh.NewInput().
			Title("Model").
			Value(&ans.model).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("model is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("API key").
			Description("Leave empty to set it later with: tiendabot config set-key").
			EchoMode(huh.EchoModePassword).
			Value(&ans.apiKey),
		huh.NewSelect[string]().
			Title("Store the API key in").
			Options(
				huh.NewOption("OS keyring", secretKeyring),
				huh.NewOption(".env file next to the config", secretEnvFile),
				huh.NewOption("Nowhere, I will export TIENDABOT_API_KEY myself", secretSkip),
			).
			Value(&ans.secretTarget),
	)

	return huh.NewForm(
		huh.NewGroup(fields...),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where to keep saved notes").
				Options(
					huh.NewOption("One .txt file per note", storage.BackendFile),
					huh.NewOption("Single sqlite database", storage.BackendSQLite),
				).
				Value(&ans.backend),
			huh.NewConfirm().
				Title("Answer in WhatsApp groups?").
				Value(&ans.respondToGroups),
		),
	)
}

func applyAnswers(cfg *config.Config, ans *setupAnswers) {
	if name := strings.TrimSpace(ans.name); name != "" {
		cfg.Name = name
	}
	cfg.API.BaseURL = strings.TrimSpace(ans.baseURL)
	cfg.API.Model = strings.TrimSpace(ans.model)
	cfg.Storage.Backend = ans.backend
	cfg.WhatsApp.RespondToGroups = ans.respondToGroups
	cfg.WhatsApp.DeviceName = cfg.Name
}

// storeSecret persists the API key according to the wizard choice.
func storeSecret(ans *setupAnswers, configDir string) error {
	key := strings.TrimSpace(ans.apiKey)
	if key == "" {
		return nil
	}

	switch ans.secretTarget {
	case secretKeyring:
		if err := config.StoreKeyring(config.KeyringAPIKey, key); err != nil {
			return fmt.Errorf("storing API key in keyring: %w", err)
		}
		fmt.Println("  API key stored in the OS keyring")
	case secretEnvFile:
		path := filepath.Join(configDir, ".env")
		env, err := godotenv.Read(path)
		if err != nil {
			env = map[string]string{}
		}
		env[config.APIKeyEnvVars[0]] = key
		if err := godotenv.Write(env, path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("restricting %s: %w", path, err)
		}
		fmt.Printf("  API key written to %s\n", path)
	}
	return nil
}

func wizardErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return errors.New("setup aborted")
	}
	return err
}
