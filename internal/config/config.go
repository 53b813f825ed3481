package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the overall application configuration.
type Config struct {
	Provider string `toml:"provider"` // "openai" or "ollama"
	Model    string `toml:"model"`    // Default model if not specified per provider
	Timeout  string `toml:"timeout"`  // Request timeout (e.g., "10s", "15000ms")

	Suggest   SuggestConfig `toml:"suggest"`
	Feel      FeelConfig    `toml:"feel"`
	Providers Providers     `toml:"providers"`

	// Derived fields (not from TOML)
	TimeoutDuration time.Duration `toml:"-"`
}

// SuggestConfig tunes when and how often the model is asked.
type SuggestConfig struct {
	Delay    string  `toml:"delay"`     // Debounce delay, "0s" fetches on every edit
	CacheTTL string  `toml:"cache_ttl"` // How long identical contexts reuse a suggestion
	Rate     float64 `toml:"rate"`      // Model requests per second
	Burst    int     `toml:"burst"`

	DelayDuration    time.Duration `toml:"-"`
	CacheTTLDuration time.Duration `toml:"-"`
}

// FeelConfig holds what the model is told about the expression.
type FeelConfig struct {
	Context      string `toml:"context"`       // JSON object the expression is evaluated against
	SystemPrompt string `toml:"system_prompt"` // Overrides the embedded system prompt
}

// Providers contains settings for each supported AI provider.
type Providers struct {
	OpenAI OpenAIConfig `toml:"openai"`
	Ollama OllamaConfig `toml:"ollama"`
}

// OpenAIConfig holds settings specific to OpenAI.
type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`  // Can also be read from env OPENAI_API_KEY as fallback
	Model   string `toml:"model"`    // Specific model override (e.g., a fine-tuned model)
	BaseURL string `toml:"base_url"` // Optional, defaults to https://api.openai.com/v1
}

// OllamaConfig holds settings specific to local Ollama.
type OllamaConfig struct {
	Host  string `toml:"host"`  // Optional, defaults to http://localhost:11434
	Model string `toml:"model"` // Model available in Ollama
}

const (
	configAppName = "feelghost"
	configEnvVar  = "FEELGHOST_CONFIG"

	defaultDelay    = 300 * time.Millisecond
	defaultTimeout  = 10 * time.Second
	minTimeout      = 500 * time.Millisecond
	defaultCacheTTL = 5 * time.Minute

	defaultOpenAIModel   = "gpt-4-1106-preview"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOllamaHost    = "http://localhost:11434"
	defaultOllamaModel   = "llama3"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Provider: "openai",
		Timeout:  "10s",
		Suggest: SuggestConfig{
			Delay:    "300ms",
			CacheTTL: "5m",
			Rate:     2,
			Burst:    4,
		},
		Feel: FeelConfig{Context: "{}"},
	}
}

// Path returns the configuration file location: $FEELGHOST_CONFIG when set,
// otherwise <user config dir>/feelghost/config.toml.
func Path() (string, error) {
	if p := os.Getenv(configEnvVar); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find user config directory: %w", err)
	}
	return filepath.Join(dir, configAppName, "config.toml"), nil
}

// LoadConfig loads the configuration from Path(), falling back to defaults
// and environment variables when the file is missing.
func LoadConfig() (*Config, error) {
	path, err := Path()
	if err != nil {
		log.Printf("[FG][config] Warning: %v. Using defaults and env vars.", err)
		path = ""
	}
	return Load(path)
}

// Load reads the TOML file at path (skipped when path is empty or the file
// does not exist) on top of Default() and resolves derived fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		log.Printf("[FG][config] Attempting to load configuration from: %s", path)
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("error decoding config file '%s': %w", path, err)
			}
			log.Printf("[FG][config] Loaded configuration from %s", path)
		case errors.Is(statErr, os.ErrNotExist):
			log.Printf("[FG][config] Config file not found at %s. Using defaults and environment variables.", path)
		default:
			return nil, fmt.Errorf("error checking config file '%s': %w", path, statErr)
		}
	}

	cfg.resolve()
	log.Printf("[FG][config] Final config: Provider=%s, Timeout=%s, Delay=%s", cfg.Provider, cfg.TimeoutDuration, cfg.Suggest.DelayDuration)
	return &cfg, nil
}

func (cfg *Config) resolve() {
	cfg.TimeoutDuration = parseDuration("timeout", cfg.Timeout, defaultTimeout)
	if cfg.TimeoutDuration < minTimeout {
		log.Printf("[FG][config] Warning: timeout '%s' is very low. Setting to %s.", cfg.TimeoutDuration, minTimeout)
		cfg.TimeoutDuration = minTimeout
	}

	cfg.Suggest.DelayDuration = parseDuration("suggest.delay", cfg.Suggest.Delay, defaultDelay)
	if cfg.Suggest.DelayDuration < 0 {
		log.Printf("[FG][config] Warning: negative suggest.delay '%s'. Using %s.", cfg.Suggest.Delay, defaultDelay)
		cfg.Suggest.DelayDuration = defaultDelay
	}
	cfg.Suggest.CacheTTLDuration = parseDuration("suggest.cache_ttl", cfg.Suggest.CacheTTL, defaultCacheTTL)
	if cfg.Suggest.Rate <= 0 {
		cfg.Suggest.Rate = Default().Suggest.Rate
	}
	if cfg.Suggest.Burst <= 0 {
		cfg.Suggest.Burst = Default().Suggest.Burst
	}
	if cfg.Feel.Context == "" {
		cfg.Feel.Context = "{}"
	}

	if cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.OpenAI.BaseURL == "" {
		cfg.Providers.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Providers.Ollama.Host == "" {
		cfg.Providers.Ollama.Host = os.Getenv("OLLAMA_HOST")
		if cfg.Providers.Ollama.Host == "" {
			cfg.Providers.Ollama.Host = defaultOllamaHost
		}
	}

	// Provider model, then the global model, then the built-in default.
	if cfg.Providers.OpenAI.Model == "" {
		cfg.Providers.OpenAI.Model = firstNonEmpty(cfg.providerModel("openai"), defaultOpenAIModel)
	}
	if cfg.Providers.Ollama.Model == "" {
		cfg.Providers.Ollama.Model = firstNonEmpty(cfg.providerModel("ollama"), defaultOllamaModel)
	}
}

func (cfg *Config) providerModel(provider string) string {
	if cfg.Provider == provider {
		return cfg.Model
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration falls back to def when value is empty or malformed.
func parseDuration(key, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[FG][config] Warning: invalid %s value '%s'. Using default '%s'. Error: %v", key, value, def, err)
		return def
	}
	return d
}
