package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show model call and token spend for this process",
	RunE: func(cmd *cobra.Command, args []string) error {
		if usage == nil {
			fmt.Println("no usage recorded")
			return nil
		}
		st := usage.Stats()
		fmt.Printf("calls: %d", st.Calls)
		if cfg != nil && cfg.MaxTotalCalls > 0 {
			fmt.Printf(" / %d", cfg.MaxTotalCalls)
		}
		fmt.Println()
		fmt.Printf("prompt tokens: %d\n", st.PromptTokens)
		fmt.Printf("completion tokens: %d\n", st.CompletionTokens)
		fmt.Printf("total tokens: %d", st.TotalTokens)
		if cfg != nil && cfg.MaxTotalTokens > 0 {
			fmt.Printf(" / %d", cfg.MaxTotalTokens)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}
