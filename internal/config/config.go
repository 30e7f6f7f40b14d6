package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration for Meta Solver. It is built once at
// startup and passed into every component.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Slack    SlackConfig    `json:"slack"`
	OpenAI   OpenAIConfig   `json:"openai"`
	Feedback FeedbackConfig `json:"feedback"`
	Prompt   PromptConfig   `json:"prompt"`
	Journal  JournalConfig  `json:"journal"`
	Log      LogConfig      `json:"log"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type ServerConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	EventsPath         string `json:"eventsPath"`
	ReadTimeoutSeconds int    `json:"readTimeoutSeconds"`
}

type SlackConfig struct {
	BotToken      string `json:"botToken"`
	SigningSecret string `json:"signingSecret"`
	APIURL        string `json:"apiUrl,omitempty"` // override for tests and proxies
}

type OpenAIConfig struct {
	APIKey         string  `json:"apiKey"`
	APIBase        string  `json:"apiBase"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature,omitempty"` // 0 = provider default
	MaxTokens      int     `json:"maxTokens,omitempty"`   // 0 = provider default
	TimeoutSeconds int     `json:"timeoutSeconds"`
}

type FeedbackConfig struct {
	Enabled           bool   `json:"enabled"`
	Token             string `json:"token"`
	DatabaseID        string `json:"databaseId"`
	APIBase           string `json:"apiBase"`
	NotionVersion     string `json:"notionVersion"`
	Category          string `json:"category"`
	ValidatedCategory string `json:"validatedCategory"`
}

type PromptConfig struct {
	Path string `json:"path,omitempty"` // optional YAML override of the embedded catalog
}

type JournalConfig struct {
	Path  string `json:"path,omitempty"` // empty disables the journal
	Dedup bool   `json:"dedup"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text | json | pretty
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env") into
// the process environment. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, an optional JSON file and the
// environment, in that order of precedence (environment wins).
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

		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Journal.Path = ExpandPath(cfg.Journal.Path)
	cfg.Prompt.Path = ExpandPath(cfg.Prompt.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays the well-known environment variables onto cfg.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SLACK_BOT_TOKEN":      &cfg.Slack.BotToken,
		"SLACK_SIGNING_SECRET": &cfg.Slack.SigningSecret,
		"SLACK_API_URL":        &cfg.Slack.APIURL,
		"OPENAI_API_KEY":       &cfg.OpenAI.APIKey,
		"OPENAI_API_BASE":      &cfg.OpenAI.APIBase,
		"OPENAI_MODEL":         &cfg.OpenAI.Model,
		"NOTION_TOKEN":         &cfg.Feedback.Token,
		"NOTION_DATABASE_ID":   &cfg.Feedback.DatabaseID,
		"PROMPT_PATH":          &cfg.Prompt.Path,
		"JOURNAL_PATH":         &cfg.Journal.Path,
		"LOG_LEVEL":            &cfg.Log.Level,
		"LOG_FORMAT":           &cfg.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OPENAI_TEMPERATURE: %w", err)
		}
		cfg.OpenAI.Temperature = t
	}
	if v := os.Getenv("FEEDBACK_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FEEDBACK_ENABLED: %w", err)
		}
		cfg.Feedback.Enabled = b
	}
	return nil
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
			return match
		}
		return val
	})
}

// Validate checks that the config has valid values. It does not require
// credentials; see RequireServe and RequireProvider.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.EventsPath, "/") {
		errs = append(errs, "server.eventsPath must start with /")
	}
	if cfg.OpenAI.Model == "" {
		errs = append(errs, "openai.model is required")
	}
	if cfg.OpenAI.Temperature < 0 || cfg.OpenAI.Temperature > 2 {
		errs = append(errs, "openai.temperature must be between 0 and 2")
	}
	if cfg.OpenAI.MaxTokens < 0 {
		errs = append(errs, "openai.maxTokens must be >= 0")
	}
	if cfg.OpenAI.TimeoutSeconds < 1 {
		errs = append(errs, "openai.timeoutSeconds must be >= 1")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json", "pretty":
	default:
		errs = append(errs, "log.format must be one of: text, json, pretty")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}
	if cfg.Feedback.Enabled && cfg.Feedback.Category == "" {
		errs = append(errs, "feedback.category is required when feedback is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireServe reports every credential missing for the serve command.
func RequireServe(cfg *Config) error {
	var missing []string
	if cfg.Slack.BotToken == "" {
		missing = append(missing, "SLACK_BOT_TOKEN")
	}
	if cfg.Slack.SigningSecret == "" {
		missing = append(missing, "SLACK_SIGNING_SECRET")
	}
	if cfg.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.Feedback.Enabled {
		if cfg.Feedback.Token == "" {
			missing = append(missing, "NOTION_TOKEN")
		}
		if cfg.Feedback.DatabaseID == "" {
			missing = append(missing, "NOTION_DATABASE_ID")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireProvider reports a missing completion provider key.
func RequireProvider(cfg *Config) error {
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("missing required settings: OPENAI_API_KEY")
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
