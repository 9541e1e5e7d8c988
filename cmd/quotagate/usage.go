package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage <api-key>",
	Short: "Show the usage summary for an API key",
	Long: `Show the usage summary for an API key, as GET /summary/{api_key} would.

The secret issued with the key is required.

Examples:
  quotagate usage qk_0123... --secret 9f86d0...`,
	Args: cobra.ExactArgs(1),
	RunE: runUsage,
}

var usageSecret string

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageSecret, "secret", "", "secret issued with the key (required)")
	usageCmd.MarkFlagRequired("secret")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	sum, err := env.reporter.Summarize(ctx, args[0], usageSecret)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key:        %s\n", sum.APIKey)
	fmt.Fprintf(out, "Plan:           %s\n", sum.Plan)
	fmt.Fprintf(out, "Active:         %t\n", sum.Active)
	fmt.Fprintf(out, "Used:           %d / %d\n", sum.Used, sum.Quota)
	fmt.Fprintf(out, "Remaining:      %d\n", sum.Remaining)
	fmt.Fprintf(out, "Total requests: %d\n", sum.TotalRequests)
	fmt.Fprintf(out, "Errors:         %d\n", sum.ErrorCount)
	if !sum.FirstRequestAt.IsZero() {
		fmt.Fprintf(out, "First request:  %s\n", sum.FirstRequestAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Last request:   %s\n", sum.LastRequestAt.Format(time.RFC3339))
	}
	return nil
}
