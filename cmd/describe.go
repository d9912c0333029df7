package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoki/data-agency/internal/ai"
	"github.com/yoki/data-agency/internal/dataset"
)

const describeSystemPrompt = `You are a data documentation assistant. Given a dataset schema with column statistics and sample rows, write a concise two or three sentence description of what the dataset appears to contain and what analyses it could support. Respond with the description only.`

var describeCmd = &cobra.Command{
	Use:   "describe <dataset>",
	Short: "Generate and store a model-written description of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openSession()
		if err != nil {
			return err
		}
		schemas, err := reg.Schemas(args[:1])
		if err != nil {
			return err
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		resp, err := rt.Generate(cmd.Context(), describeRequest(schemas[0]))
		if err != nil {
			return fmt.Errorf("describe %s: %w", args[0], err)
		}
		desc := strings.TrimSpace(resp.Content())
		if desc == "" {
			return fmt.Errorf("model returned an empty description")
		}
		if err := reg.SetDescription(args[0], desc); err != nil {
			return err
		}
		if err := saveSession(reg); err != nil {
			return err
		}
		fmt.Printf("✓ %s: %s\n", args[0], desc)
		return nil
	},
}

func describeRequest(s dataset.SchemaSummary) ai.GenerateRequest {
	return ai.GenerateRequest{
		Model: cfg.Model,
		Messages: []ai.Message{
			{Role: "system", Content: describeSystemPrompt},
			{Role: "user", Content: s.Markdown()},
		},
		MaxTokens:   512,
		Temperature: cfg.Temperature,
	}
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
