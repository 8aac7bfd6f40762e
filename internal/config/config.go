package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides (SHORTSBOT_TELEGRAM_TOKEN, ...).
const EnvPrefix = "shortsbot"

// Config is the root configuration for shortsbot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Webhook  WebhookConfig  `json:"webhook" yaml:"webhook"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Media    MediaConfig    `json:"media" yaml:"media"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel             string `json:"logLevel" yaml:"logLevel" envconfig:"LOG_LEVEL"`
	LogFormat            string `json:"logFormat" yaml:"logFormat"` // "text" | "json"
	MaxConcurrentUpdates int    `json:"maxConcurrentUpdates" yaml:"maxConcurrentUpdates"`
	BusBuffer            int    `json:"busBuffer" yaml:"busBuffer"`
}

type TelegramConfig struct {
	Token       string `json:"token" yaml:"token" envconfig:"BOT_TOKEN"`
	APIEndpoint string `json:"apiEndpoint,omitempty" yaml:"apiEndpoint,omitempty"` // custom Bot API server, e.g. "http://localhost:8081/bot%s/%s"
	PollTimeout int    `json:"pollTimeout" yaml:"pollTimeout"`                     // seconds
	Debug       bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
}

type WebhookConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port" envconfig:"PORT"`
	Path        string `json:"path" yaml:"path"`
	PublicURL   string `json:"publicUrl,omitempty" yaml:"publicUrl,omitempty" envconfig:"WEBHOOK_URL"` // registered with Telegram when set
	SecretToken string `json:"secretToken,omitempty" yaml:"secretToken,omitempty" envconfig:"WEBHOOK_SECRET"`
}

type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" | "mysql"; empty = infer from dsn
	DSN    string `json:"dsn" yaml:"dsn" envconfig:"DATABASE_URL"`
}

type MediaConfig struct {
	MaxUploadMB    int      `json:"maxUploadMB" yaml:"maxUploadMB"`
	HTTPTimeout    int      `json:"httpTimeout" yaml:"httpTimeout"` // seconds
	UseProxy       bool     `json:"useProxy" yaml:"useProxy" envconfig:"USE_PROXY"`
	ProxyURL       string   `json:"proxyUrl,omitempty" yaml:"proxyUrl,omitempty" envconfig:"PROXY_URL"`
	NoProxy        []string `json:"noProxy,omitempty" yaml:"noProxy,omitempty" envconfig:"NO_PROXY"`
	PreferMimeType string   `json:"preferMimeType" yaml:"preferMimeType"`
}

type PipelineConfig struct {
	StatusDeleteDelayMs int `json:"statusDeleteDelayMs" yaml:"statusDeleteDelayMs"`
	DeliveryTimeoutMs   int `json:"deliveryTimeoutMs" yaml:"deliveryTimeoutMs"`
	LinksPerMinute      int `json:"linksPerMinute" yaml:"linksPerMinute"` // per user; 0 disables throttling
	LinkBurst           int `json:"linkBurst" yaml:"linkBurst"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"` // standalone listener in poll mode
}

// DefaultConfigDir returns the default config directory (~/.shortsbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shortsbot"
	}
	return filepath.Join(home, ".shortsbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Existing variables are not overwritten.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("cannot load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the config file at path (JSON, or YAML for .yaml/.yml),
// applies environment overrides and validates the result.
// An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("cannot apply environment: %w", err)
	}

	if cfg.Database.Driver == "sqlite" || (cfg.Database.Driver == "" && !strings.HasPrefix(cfg.Database.DSN, "mysql://")) {
		cfg.Database.DSN = ExpandPath(cfg.Database.DSN)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg to path, as YAML for .yaml/.yml and JSON otherwise.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxConcurrentUpdates < 1 || cfg.General.MaxConcurrentUpdates > 256 {
		errs = append(errs, "general.maxConcurrentUpdates must be between 1 and 256")
	}
	if cfg.General.BusBuffer < 1 {
		errs = append(errs, "general.busBuffer must be >= 1")
	}

	if cfg.Telegram.PollTimeout < 0 {
		errs = append(errs, "telegram.pollTimeout must be >= 0")
	}

	if cfg.Webhook.Port < 0 || cfg.Webhook.Port > 65535 {
		errs = append(errs, "webhook.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		errs = append(errs, "webhook.path must start with /")
	}

	switch cfg.Database.Driver {
	case "", "sqlite", "mysql":
	default:
		errs = append(errs, "database.driver must be one of: sqlite, mysql")
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}

	if cfg.Media.MaxUploadMB < 1 {
		errs = append(errs, "media.maxUploadMB must be >= 1")
	}
	if cfg.Media.HTTPTimeout < 1 {
		errs = append(errs, "media.httpTimeout must be >= 1")
	}
	if cfg.Media.UseProxy && cfg.Media.ProxyURL == "" {
		errs = append(errs, "media.proxyUrl is required when media.useProxy is set")
	}

	if cfg.Pipeline.StatusDeleteDelayMs < 0 {
		errs = append(errs, "pipeline.statusDeleteDelayMs must be >= 0")
	}
	if cfg.Pipeline.DeliveryTimeoutMs < 1 {
		errs = append(errs, "pipeline.deliveryTimeoutMs must be >= 1")
	}
	if cfg.Pipeline.LinksPerMinute < 0 {
		errs = append(errs, "pipeline.linksPerMinute must be >= 0")
	}
	if cfg.Pipeline.LinksPerMinute > 0 && cfg.Pipeline.LinkBurst < 1 {
		errs = append(errs, "pipeline.linkBurst must be >= 1 when throttling is enabled")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
