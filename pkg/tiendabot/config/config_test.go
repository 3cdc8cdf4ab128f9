package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Dispatcher.MaxConcurrent != 8 || !cfg.Dispatcher.SendTyping {
		t.Errorf("Dispatcher = %+v", cfg.Dispatcher)
	}
	if cfg.Media.AssetsDir != "./assets" || cfg.Media.MaxImageSize == 0 {
		t.Errorf("Media = %+v", cfg.Media)
	}
	if cfg.Media.Retention.Enabled {
		t.Error("retention should be disabled by default")
	}
	if !cfg.WhatsApp.RespondToDMs || !cfg.WhatsApp.QRTerminal {
		t.Errorf("WhatsApp = %+v", cfg.WhatsApp)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	data := []byte(`
api:
  model: gpt-4o
  timeout: 45s
storage:
  backend: sqlite
media:
  max_image_size: 1024
  retention:
    enabled: true
    max_age: 168h
whatsapp:
  respond_to_groups: false
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if cfg.API.Model != "gpt-4o" || cfg.API.Timeout != 45*time.Second {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.API.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL default lost: %q", cfg.API.BaseURL)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.DataDir != "./data" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Media.MaxImageSize != 1024 || cfg.Media.MaxMediaSize != 64*1024*1024 {
		t.Errorf("Limits = %+v", cfg.Media.Limits)
	}
	if !cfg.Media.Retention.Enabled || cfg.Media.Retention.MaxAge != 168*time.Hour || cfg.Media.Retention.Schedule != "@daily" {
		t.Errorf("Retention = %+v", cfg.Media.Retention)
	}
	if cfg.WhatsApp.RespondToGroups || !cfg.WhatsApp.RespondToDMs {
		t.Errorf("WhatsApp = %+v", cfg.WhatsApp)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "api: [", "parsing config YAML"},
		{"unknown backend", "storage:\n  backend: redis\n", "storage.backend"},
		{"empty model", "api:\n  model: \"\"\n", "api.model"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"retention without age", "media:\n  retention:\n    enabled: true\n    max_age: 0s\n", "max_age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TB_MODEL", "gpt-4o-mini")
	t.Setenv("TB_HOME", "/srv/tienda")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"model: ${TB_MODEL}", "model: gpt-4o-mini", false},
		{"dir: $TB_HOME/data", "dir: /srv/tienda/data", false},
		{"x: ${TB_UNSET_VAR}", "x: ${TB_UNSET_VAR}", false},
		{"x: ${TB_UNSET_VAR:-fallback}", "x: fallback", false},
		{"x: ${TB_MODEL:-fallback}", "x: gpt-4o-mini", false},
		{"x: ${TB_UNSET_VAR:?set it}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := expandEnvVars(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expandEnvVars(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("TB_TEST_MODEL", "llama3")

	content := `
api:
  base_url: http://localhost:11434/v1
  model: ${TB_TEST_MODEL}
storage:
  data_dir: ./registros
media:
  assets_dir: /var/lib/tiendabot/assets
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}
	if cfg.API.Model != "llama3" {
		t.Errorf("Model = %q", cfg.API.Model)
	}
	if cfg.Storage.DataDir != filepath.Join(dir, "registros") {
		t.Errorf("DataDir = %q, want relative to config dir", cfg.Storage.DataDir)
	}
	if cfg.Media.AssetsDir != "/var/lib/tiendabot/assets" {
		t.Errorf("AssetsDir = %q, absolute paths must be kept", cfg.Media.AssetsDir)
	}
	if cfg.WhatsApp.SessionDir != filepath.Join(dir, "sessions/whatsapp") {
		t.Errorf("SessionDir = %q", cfg.WhatsApp.SessionDir)
	}
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	if _, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveConfigToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	cfg := DefaultConfig()
	cfg.API.APIKey = "sk-real-secret"
	cfg.API.Model = "gpt-4o"

	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("SaveConfigToFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-real-secret") {
		t.Error("literal API key written to disk")
	}
	if cfg.API.APIKey != "sk-real-secret" {
		t.Error("SaveConfigToFile must not mutate its argument")
	}

	back, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("saved config does not parse: %v", err)
	}
	if back.API.Model != "gpt-4o" || back.API.APIKey != "${TIENDABOT_API_KEY}" {
		t.Errorf("round trip API = %+v", back.API)
	}

	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("backup not written: %v", err)
	}
}

func TestResolveAPIKey(t *testing.T) {
	keyring.MockInit()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("config value when nothing else", func(t *testing.T) {
		t.Setenv("TIENDABOT_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		cfg := DefaultConfig()
		cfg.API.APIKey = "sk-from-config"
		if src := ResolveAPIKey(cfg, logger); src != "config" || cfg.API.APIKey != "sk-from-config" {
			t.Errorf("source = %q, key = %q", src, cfg.API.APIKey)
		}
	})

	t.Run("environment beats config", func(t *testing.T) {
		t.Setenv("TIENDABOT_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "sk-openai-env")
		cfg := DefaultConfig()
		cfg.API.APIKey = "sk-from-config"
		if src := ResolveAPIKey(cfg, logger); src != "OPENAI_API_KEY" || cfg.API.APIKey != "sk-openai-env" {
			t.Errorf("source = %q, key = %q", src, cfg.API.APIKey)
		}
	})

	t.Run("keyring beats environment", func(t *testing.T) {
		t.Setenv("TIENDABOT_API_KEY", "sk-env")
		if err := StoreKeyring(KeyringAPIKey, "sk-keyring"); err != nil {
			t.Fatal(err)
		}
		defer DeleteKeyring(KeyringAPIKey)

		cfg := DefaultConfig()
		if src := ResolveAPIKey(cfg, logger); src != "keyring" || cfg.API.APIKey != "sk-keyring" {
			t.Errorf("source = %q, key = %q", src, cfg.API.APIKey)
		}
	})

	t.Run("unresolved vision reference is cleared", func(t *testing.T) {
		t.Setenv("TIENDABOT_API_KEY", "sk-env")
		cfg := DefaultConfig()
		cfg.Vision.APIKey = "${TB_UNSET_VISION_KEY}"
		ResolveAPIKey(cfg, logger)
		if cfg.Vision.APIKey != "" {
			t.Errorf("Vision.APIKey = %q, want cleared", cfg.Vision.APIKey)
		}
	})

	t.Run("literal vision key is kept", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Vision.APIKey = "sk-vision"
		ResolveAPIKey(cfg, logger)
		if cfg.Vision.APIKey != "sk-vision" {
			t.Errorf("Vision.APIKey = %q", cfg.Vision.APIKey)
		}
	})

	t.Run("unresolved reference is cleared", func(t *testing.T) {
		t.Setenv("TIENDABOT_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		cfg := DefaultConfig()
		if src := ResolveAPIKey(cfg, logger); src != "" || cfg.API.APIKey != "" {
			t.Errorf("source = %q, key = %q", src, cfg.API.APIKey)
		}
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       LoggingConfig
		verbose   bool
		wantDebug bool
		wantJSON  bool
	}{
		{"default json info", LoggingConfig{}, false, false, true},
		{"text debug", LoggingConfig{Level: "debug", Format: "text"}, false, true, false},
		{"verbose overrides level", LoggingConfig{Level: "error"}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.cfg, tt.verbose, &buf)
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			logger.Error("probe")
			if isJSON := strings.HasPrefix(buf.String(), "{"); isJSON != tt.wantJSON {
				t.Errorf("output %q, want json=%v", buf.String(), tt.wantJSON)
			}
		})
	}
}
