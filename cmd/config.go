package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/yoki/data-agency/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set dagency configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("provider: %s\n", cfg.Provider)
		fmt.Printf("model: %s\n", cfg.Model)
		fmt.Printf("gemini_api_key: %s\n", mask(cfg.GeminiAPIKey))
		fmt.Printf("openrouter_api_key: %s\n", mask(cfg.OpenRouterKey))
		fmt.Printf("max_tokens: %d\n", cfg.MaxTokens)
		fmt.Printf("temperature: %.3f\n", cfg.Temperature)
		fmt.Printf("max_attempts: %d\n", cfg.MaxAttempts)
		fmt.Printf("gen_retries: %d\n", cfg.GenRetries)
		fmt.Printf("exec_timeout_sec: %d\n", cfg.ExecTimeoutSec)
		fmt.Printf("sandbox_image: %s\n", cfg.SandboxImage)
		fmt.Printf("session_dir: %s\n", cfg.SessionDir)
		fmt.Printf("keep_runs: %d\n", cfg.KeepRuns)
		if cfg.MaxTotalCalls > 0 {
			fmt.Printf("max_total_calls: %d\n", cfg.MaxTotalCalls)
		}
		if cfg.MaxTotalTokens > 0 {
			fmt.Printf("max_total_tokens: %d\n", cfg.MaxTotalTokens)
		}
		fmt.Printf("ollama_host: %s\n", cfg.OllamaHost)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "provider":
			switch strings.ToLower(val) {
			case "gemini", "openrouter", "ollama":
				cfg.Provider = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid provider: %s (use gemini, openrouter or ollama)", val)
			}
		case "model":
			cfg.Model = val
		case "gemini_api_key":
			cfg.GeminiAPIKey = val
		case "openrouter_api_key":
			cfg.OpenRouterKey = val
		case "sandbox_image":
			cfg.SandboxImage = val
		case "session_dir":
			cfg.SessionDir = val
		case "ollama_host":
			cfg.OllamaHost = val
		case "max_tokens", "max_attempts", "gen_retries", "exec_timeout_sec",
			"keep_runs", "max_total_calls", "max_total_tokens":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for %s: %v", key, val)
			}
			switch key {
			case "max_tokens":
				cfg.MaxTokens = i
			case "max_attempts":
				cfg.MaxAttempts = i
			case "gen_retries":
				cfg.GenRetries = i
			case "exec_timeout_sec":
				cfg.ExecTimeoutSec = i
			case "keep_runs":
				cfg.KeepRuns = i
			case "max_total_calls":
				cfg.MaxTotalCalls = i
			case "max_total_tokens":
				cfg.MaxTotalTokens = i
			}
		case "temperature":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid float for temperature: %v", val)
			}
			cfg.Temperature = f
		default:
			return fmt.Errorf("unknown config key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Printf("✓ %s updated\n", key)
		return nil
	},
}

func mask(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
