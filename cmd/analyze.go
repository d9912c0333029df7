package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoki/data-agency/internal/agent"
	"github.com/yoki/data-agency/internal/dataset"
	"github.com/yoki/data-agency/internal/sandbox"
	"github.com/yoki/data-agency/internal/ux"
)

var (
	analyzeDatasets    string
	analyzeMaxAttempts int
	analyzeTimeoutSec  int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze \"<request>\"",
	Short: "Generate, run and repair analysis code for a natural-language request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openSession()
		if err != nil {
			return err
		}
		names := splitNames(analyzeDatasets)
		if len(names) == 0 {
			// Default to every loaded dataset.
			names = reg.List()
		}
		if len(names) == 0 {
			return fmt.Errorf("no datasets loaded; run `dagency load` first")
		}

		a, err := buildAgency(reg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		h := a.Submit(args[0], names)
		rep, err := waitRendering(ctx, a, h)
		if err != nil {
			return err
		}
		fmt.Print(ux.Report(rep))
		if !rep.Accepted() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDatasets, "datasets", "", "comma-separated dataset names (default: all loaded)")
	analyzeCmd.Flags().IntVar(&analyzeMaxAttempts, "max-attempts", 0, "retry budget for the repair loop (overrides config)")
	analyzeCmd.Flags().IntVar(&analyzeTimeoutSec, "timeout", 0, "per-attempt sandbox timeout in seconds (overrides config)")
	rootCmd.AddCommand(analyzeCmd)
}

// buildAgency wires the configured runtime, sandbox and registry into a
// ready refinement pipeline.
func buildAgency(reg *dataset.Registry) (*agent.Agency, error) {
	rt, err := newRuntime()
	if err != nil {
		return nil, err
	}
	gen := &agent.LLMGenerator{
		Runtime:     rt,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	image := cfg.SandboxImage
	if image == "" {
		image = sandbox.DefaultImage
	}
	exec := sandbox.NewDockerExecutor(image, filepath.Join(cfg.SessionDir, "runs"), logger,
		sandbox.WithKeepRuns(cfg.KeepRuns))

	maxAttempts := cfg.MaxAttempts
	if analyzeMaxAttempts > 0 {
		maxAttempts = analyzeMaxAttempts
	}
	timeoutSec := cfg.ExecTimeoutSec
	if analyzeTimeoutSec > 0 {
		timeoutSec = analyzeTimeoutSec
	}
	loop := &agent.Loop{
		Generator:   gen,
		Executor:    exec,
		Registry:    reg,
		MaxAttempts: maxAttempts,
		GenRetries:  cfg.GenRetries,
		ExecTimeout: time.Duration(timeoutSec) * time.Second,
		Logger:      logger,
	}
	return agent.NewAgency(loop, logger), nil
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// waitRendering polls the in-flight request, keeping the terminal responsive
// and honoring interrupts by cancelling the sandbox run.
func waitRendering(ctx context.Context, a *agent.Agency, h agent.Handle) (*agent.Report, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "interrupted, tearing down sandbox...")
			a.Cancel(h)
			rep, err := a.Wait(context.Background(), h)
			if err != nil {
				return nil, err
			}
			return rep, nil
		case <-ticker.C:
			st, err := a.Poll(h)
			if err != nil {
				return nil, err
			}
			if st.Phase != agent.PhasePending {
				return st.Report, nil
			}
		}
	}
}
