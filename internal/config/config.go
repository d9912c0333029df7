package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	Provider      string  `mapstructure:"provider" yaml:"provider"`
	Model         string  `mapstructure:"model" yaml:"model"`
	GeminiAPIKey  string  `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	OpenRouterKey string  `mapstructure:"openrouter_api_key" yaml:"openrouter_api_key"`
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature"`

	// Refinement loop
	MaxAttempts    int `mapstructure:"max_attempts" yaml:"max_attempts"`
	GenRetries     int `mapstructure:"gen_retries" yaml:"gen_retries"`
	ExecTimeoutSec int `mapstructure:"exec_timeout_sec" yaml:"exec_timeout_sec"`

	// Sandbox
	SandboxImage string `mapstructure:"sandbox_image" yaml:"sandbox_image"`
	SessionDir   string `mapstructure:"session_dir" yaml:"session_dir"`
	KeepRuns     int    `mapstructure:"keep_runs" yaml:"keep_runs"`

	// Usage budgets (0 disables)
	MaxTotalCalls  int `mapstructure:"max_total_calls" yaml:"max_total_calls"`
	MaxTotalTokens int `mapstructure:"max_total_tokens" yaml:"max_total_tokens"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.dagency/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".dagency")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DAGENCY")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("provider", "gemini")
	v.SetDefault("model", "gemini-2.5-flash")
	// Empty defaults so AutomaticEnv surfaces DAGENCY_* overrides for keys
	// absent from the config file.
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("openrouter_api_key", "")
	v.SetDefault("max_tokens", 8192)
	v.SetDefault("temperature", 0.2)
	// Loop defaults
	v.SetDefault("max_attempts", 3)
	v.SetDefault("gen_retries", 2)
	v.SetDefault("exec_timeout_sec", 120)
	// Sandbox defaults
	v.SetDefault("sandbox_image", "dagency-runner:py313")
	v.SetDefault("keep_runs", 50)
	// Usage budgets
	v.SetDefault("max_total_calls", 0)
	v.SetDefault("max_total_tokens", 0)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 60)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".dagency")
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve session_dir default: ~/.dagency/session
	if c.SessionDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.SessionDir = filepath.Join(home, ".dagency", "session")
	}
	return &c, nil
}

// APIKeyFor returns the credential for the given provider, falling back to
// the provider-native env vars when the config holds none.
func (c *Global) APIKeyFor(provider string) string {
	switch provider {
	case "gemini":
		if c.GeminiAPIKey != "" {
			return c.GeminiAPIKey
		}
		return os.Getenv("GEMINI_API_KEY")
	case "openrouter":
		if c.OpenRouterKey != "" {
			return c.OpenRouterKey
		}
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return ""
	}
}
