package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":3000"
	DefaultBanner          = "askbot is running!"
	DefaultPrefix          = "!ask"
	DefaultThinkingMessage = "⏳ Thinking..."
	DefaultErrorMessage    = "❌ Error talking to the models."
	DefaultMemoryFile      = "data/memory.json"
	DefaultHistoryCap      = 10
	DefaultProviderTimeout = "60s"

	DefaultClaudeModel  = "claude-3-5-sonnet-20240620"
	DefaultGPTModel     = "gpt-4o-mini"
	DefaultGPTBaseURL   = "https://api.openai.com/v1"
	DefaultGeminiModel  = "gemini-1.5-flash"
	DefaultGeminiURL    = "https://generativelanguage.googleapis.com/"
	DefaultOllamaModel  = "llama3"
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 600
	DefaultClaudeWeight = 0.95
	DefaultGPTWeight    = 0.9
	DefaultGeminiWeight = 0.85
	DefaultOllamaWeight = 0.8
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Bot       BotConfig       `toml:"bot"`
	Memory    MemoryConfig    `toml:"memory"`
	Discord   DiscordConfig   `toml:"discord"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Providers ProvidersConfig `toml:"providers"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr   string `toml:"addr" validate:"required"`
	Banner string `toml:"banner"`
}

// BotConfig controls how inbound messages are turned into prompts.
// An empty Prefix makes every non-bot message a prompt.
type BotConfig struct {
	Prefix          string `toml:"prefix"`
	ThinkingMessage string `toml:"thinking_message"`
	ErrorMessage    string `toml:"error_message" validate:"required"`
}

type MemoryConfig struct {
	Path       string `toml:"path" validate:"required"`
	HistoryCap int    `toml:"history_cap" validate:"gte=1"`
}

type DiscordConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
}

type ProvidersConfig struct {
	Claude ProviderConfig `toml:"claude"`
	GPT    ProviderConfig `toml:"gpt"`
	Gemini ProviderConfig `toml:"gemini"`
	Ollama ProviderConfig `toml:"ollama"`
}

// ProviderConfig describes one model API. A missing APIKey is not an error:
// the provider answers with its "API missing" placeholder instead.
type ProviderConfig struct {
	Enabled     bool    `toml:"enabled"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url" validate:"omitempty,url"`
	Model       string  `toml:"model" validate:"required_if=Enabled true"`
	Temperature float64 `toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `toml:"max_tokens" validate:"gte=0"`
	Confidence  float64 `toml:"confidence" validate:"gte=0,lte=1"`
	Timeout     string  `toml:"timeout" validate:"omitempty,duration"`
}

// TimeoutDuration parses Timeout, falling back to DefaultProviderTimeout.
func (p ProviderConfig) TimeoutDuration() time.Duration {
	raw := strings.TrimSpace(p.Timeout)
	if raw == "" {
		raw = DefaultProviderTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultProviderTimeout)
	}
	return d
}

func defaults() Config {
	provider := func(model string, weight float64) ProviderConfig {
		return ProviderConfig{
			Enabled:     true,
			Model:       model,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Confidence:  weight,
			Timeout:     DefaultProviderTimeout,
		}
	}
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:   DefaultHTTPAddr,
			Banner: DefaultBanner,
		},
		Bot: BotConfig{
			Prefix:          DefaultPrefix,
			ThinkingMessage: DefaultThinkingMessage,
			ErrorMessage:    DefaultErrorMessage,
		},
		Memory: MemoryConfig{
			Path:       DefaultMemoryFile,
			HistoryCap: DefaultHistoryCap,
		},
		Discord: DiscordConfig{Enabled: true},
		Providers: ProvidersConfig{
			Claude: provider(DefaultClaudeModel, DefaultClaudeWeight),
			GPT:    provider(DefaultGPTModel, DefaultGPTWeight),
			Gemini: provider(DefaultGeminiModel, DefaultGeminiWeight),
			Ollama: provider(DefaultOllamaModel, DefaultOllamaWeight),
		},
	}
	cfg.Providers.GPT.BaseURL = DefaultGPTBaseURL
	cfg.Providers.Gemini.BaseURL = DefaultGeminiURL
	return cfg
}

// Load reads the TOML file at path (defaults when absent), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg, lookup)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("LOG_LEVEL", &cfg.Log.Level)
	set("MEMORY_FILE", &cfg.Memory.Path)
	set("DISCORD_TOKEN", &cfg.Discord.BotToken)
	set("TELEGRAM_TOKEN", &cfg.Telegram.BotToken)
	set("ANTHROPIC_API_KEY", &cfg.Providers.Claude.APIKey)
	set("OPENAI_API_KEY", &cfg.Providers.GPT.APIKey)
	set("GEMINI_API_KEY", &cfg.Providers.Gemini.APIKey)
	set("OLLAMA_BASE_URL", &cfg.Providers.Ollama.BaseURL)

	if v, ok := lookup("TELEGRAM_TOKEN"); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.Enabled = true
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		host, _, err := net.SplitHostPort(cfg.Server.Addr)
		if err != nil {
			host = ""
		}
		cfg.Server.Addr = net.JoinHostPort(host, strings.TrimSpace(port))
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Validate checks struct constraints and reports every failing field.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
