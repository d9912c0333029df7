package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yoki/data-agency/internal/ai"
	cfgpkg "github.com/yoki/data-agency/internal/config"
)

var (
	// Global flags (wired to config/viper)
	cfgFile string
	debug   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
	// Process-wide logger, built in loadConfig.
	logger = zap.NewNop()
	// Session-wide usage budget shared by all commands.
	usage *ai.UsageTracker
)

var rootCmd = &cobra.Command{
	Use:   "dagency",
	Short: "dagency: natural-language data analysis against loaded datasets",
	Long:  `dagency turns natural-language requests into Python analysis code, runs the code against your loaded datasets inside an isolated sandbox, and repairs it from execution feedback until it succeeds.`,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.dagency/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	buildLogger()
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}

	usage = ai.NewUsageTracker(cfg.MaxTotalCalls, cfg.MaxTotalTokens)
}

func buildLogger() {
	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	l, err := zcfg.Build()
	if err != nil {
		return
	}
	logger = l
}

// newRuntime builds the configured model backend wrapped with usage metering.
func newRuntime() (ai.Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	rc := ai.RuntimeConfig{
		HTTPTimeout: time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		RetryMax:    cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      cfg.APIKeyFor(cfg.Provider),
		Host:        cfg.OllamaHost,
	}
	if cfg.Provider == ai.ProviderOllama {
		rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
	} else if rc.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q (set %s_API_KEY or run dagency config set)", cfg.Provider, upperProvider(cfg.Provider))
	}
	rt, ok := ai.NewRuntime(cfg.Provider, rc)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return ai.NewMeteredRuntime(rt, usage, logger), nil
}

func upperProvider(p string) string {
	switch p {
	case ai.ProviderGemini:
		return "GEMINI"
	case ai.ProviderOpenRouter:
		return "OPENROUTER"
	default:
		return "PROVIDER"
	}
}
