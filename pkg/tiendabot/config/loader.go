package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR}, ${VAR:-default}, ${VAR:?error} and $VAR.
//
// Capture groups:
//   - Group 1: variable name (${} syntax)
//   - Group 2: modifier ("-" for default, "?" for error)
//   - Group 3: default value or error message
//   - Group 4: variable name (bare $VAR syntax)
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads a YAML config file. It loads .env files first,
// expands environment references and resolves relative paths against the
// config file's directory.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)

	return cfg, nil
}

// ParseConfig overlays YAML onto DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes cfg as YAML with owner-only permissions. A literal
// API key is replaced by ${TIENDABOT_API_KEY}; keys belong in the keyring or
// the environment. An existing file is kept as path.bak.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	if sanitized.API.APIKey != "" && !IsEnvReference(sanitized.API.APIKey) {
		sanitized.API.APIKey = "${TIENDABOT_API_KEY}"
	}
	if sanitized.Vision.APIKey != "" && !IsEnvReference(sanitized.Vision.APIKey) {
		sanitized.Vision.APIKey = ""
	}

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"tiendabot.yaml",
		"tiendabot.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// IsEnvReference reports whether s is an unexpanded environment reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

// ---------- Internal ----------

// loadEnvFiles loads .env and .env.local from the working directory and the
// config directory. Existing variables are never overwritten.
func loadEnvFiles(configDir string) {
	files := []string{".env", ".env.local"}
	if configDir != "" && configDir != "." {
		files = append(files,
			filepath.Join(configDir, ".env"),
			filepath.Join(configDir, ".env.local"))
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces environment references in input. Unset ${VAR} and
// $VAR references are kept verbatim; an unset ${VAR:?msg} is an error.
func expandEnvVars(input string) (string, error) {
	var missing []string

	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, modifier, value, bare := sub[1], sub[2], sub[3], sub[4]

		if bare != "" {
			if v, ok := os.LookupEnv(bare); ok {
				return v
			}
			return match
		}

		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		switch modifier {
		case "-":
			return value
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			missing = append(missing, name+" - "+value)
			return ""
		}
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("config error: %s", strings.Join(missing, "; "))
	}
	return out, nil
}

// resolveRelativePaths makes every path setting absolute relative to the
// config file's directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	dir := filepath.Dir(configPath)

	for _, p := range []*string{
		&cfg.Storage.DataDir,
		&cfg.Storage.DatabasePath,
		&cfg.Media.AssetsDir,
		&cfg.WhatsApp.SessionDir,
		&cfg.WhatsApp.DatabasePath,
	} {
		*p = resolvePathFromConfig(*p, dir)
	}
}

// resolvePathFromConfig expands ~ and joins relative paths onto configDir.
func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// checkFilePermissions warns if the config file is group or world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
