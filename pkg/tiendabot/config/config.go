// Package config defines the tiendabot configuration file and the helpers
// that load it, resolve its secrets and build the process logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels/whatsapp"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/dispatcher"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/llm"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/media"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/storage"
)

// Config is the root of config.yaml.
type Config struct {
	// Name identifies this deployment in logs.
	Name string `yaml:"name"`

	// API is the text-completion endpoint.
	API llm.Config `yaml:"api"`

	// Vision is the image-description endpoint. Empty fields inherit from API.
	Vision llm.Config `yaml:"vision"`

	// Storage is the text record store.
	Storage storage.Config `yaml:"storage"`

	// Media configures asset persistence.
	Media MediaConfig `yaml:"media"`

	// Dispatcher tunes concurrency and typing indicators.
	Dispatcher dispatcher.Config `yaml:"dispatcher"`

	// WhatsApp configures the transport.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`
}

// MediaConfig configures where media assets go and how long they stay.
type MediaConfig struct {
	// AssetsDir receives every downloaded attachment.
	AssetsDir string `yaml:"assets_dir"`

	media.Limits `yaml:",inline"`

	// Retention prunes old assets on a schedule.
	Retention media.RetentionConfig `yaml:"retention"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	api := llm.DefaultConfig()
	api.APIKey = "${TIENDABOT_API_KEY}"

	return &Config{
		Name:    "tiendabot",
		API:     api,
		Storage: storage.DefaultConfig(),
		Media: MediaConfig{
			AssetsDir: "./assets",
			Limits:    media.DefaultLimits(),
			Retention: media.DefaultRetentionConfig(),
		},
		Dispatcher: dispatcher.DefaultConfig(),
		WhatsApp:   whatsapp.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if strings.TrimSpace(c.API.Model) == "" {
		errs = append(errs, errors.New("api.model is required"))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("api.timeout must not be negative, got %s", c.API.Timeout))
	}

	switch c.Storage.Backend {
	case storage.BackendFile, storage.BackendSQLite, "":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of %q, %q",
			c.Storage.Backend, storage.BackendFile, storage.BackendSQLite))
	}

	if c.Media.MaxImageSize < 0 || c.Media.MaxMediaSize < 0 {
		errs = append(errs, errors.New("media size limits must not be negative"))
	}
	if c.Media.Retention.Enabled && c.Media.Retention.MaxAge <= 0 {
		errs = append(errs, errors.New("media.retention.max_age must be positive when retention is enabled"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is invalid", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger: JSON by default, text when
// logging.format is "text", debug when verbose or logging.level is debug.
func NewLogger(cfg LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
