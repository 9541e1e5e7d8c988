package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/domain/plan"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage quotagate API keys.

Keys are issued on a plan that fixes their lifetime quota. The secret is
printed once at issuance and cannot be recovered.

Examples:
  quotagate keys issue
  quotagate keys issue --plan premium
  quotagate keys list --limit 20
  quotagate keys show qk_0123...
  quotagate keys deactivate qk_0123...`,
}

var keysIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new API key",
	Args:  cobra.NoArgs,
	RunE:  runKeysIssue,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysShowCmd = &cobra.Command{
	Use:   "show <api-key>",
	Short: "Show one API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysShow,
}

var keysDeactivateCmd = &cobra.Command{
	Use:   "deactivate <api-key>",
	Short: "Stop an API key from being charged",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysSetActive(false),
}

var keysActivateCmd = &cobra.Command{
	Use:   "activate <api-key>",
	Short: "Re-enable a deactivated API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysSetActive(true),
}

var (
	keyPlan   string
	keyLimit  int
	keyOffset int
)

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysIssueCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysDeactivateCmd)
	keysCmd.AddCommand(keysActivateCmd)

	keysIssueCmd.Flags().StringVar(&keyPlan, "plan", plan.Basic, "plan id")
	keysListCmd.Flags().IntVar(&keyLimit, "limit", 50, "maximum keys to list")
	keysListCmd.Flags().IntVar(&keyOffset, "offset", 0, "keys to skip")
}

func runKeysIssue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	issued, err := env.issuer.IssueVia(ctx, keyPlan, app.ChannelCLI)
	if err != nil {
		return fmt.Errorf("failed to issue key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "API key issued.")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  API key: %s\n", issued.Record.APIKey)
	fmt.Fprintf(out, "  Secret:  %s\n", issued.Secret)
	fmt.Fprintf(out, "  Plan:    %s (%d requests)\n", issued.Record.Plan, issued.Record.Quota)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Store the secret now. It will not be shown again.")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	if keyOffset < 0 {
		return fmt.Errorf("--offset must not be negative, got %d", keyOffset)
	}
	ctx := context.Background()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	records, err := env.stores.Keys.List(ctx, keyLimit, keyOffset)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No API keys found.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Issue a key with: quotagate keys issue --plan=<plan-id>")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tPLAN\tUSED\tQUOTA\tSTATUS\tCREATED")
	fmt.Fprintln(w, "---\t----\t----\t-----\t------\t-------")

	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			rec.APIKey, rec.Plan, rec.Used, rec.Quota, status(rec), rec.CreatedAt.Format("2006-01-02"))
	}

	return w.Flush()
}

func runKeysShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	rec, err := env.stores.Keys.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("key %s: %w", args[0], err)
	}
	events, err := env.stores.Ledger.Count(ctx, rec.APIKey)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key:   %s\n", rec.APIKey)
	fmt.Fprintf(out, "Plan:      %s\n", rec.Plan)
	fmt.Fprintf(out, "Status:    %s\n", status(rec))
	fmt.Fprintf(out, "Used:      %d / %d\n", rec.Used, rec.Quota)
	fmt.Fprintf(out, "Remaining: %d\n", account.Remaining(rec))
	fmt.Fprintf(out, "Events:    %d\n", events)
	fmt.Fprintf(out, "Created:   %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runKeysSetActive(active bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		env, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.issuer.SetActive(ctx, args[0], active); err != nil {
			return fmt.Errorf("key %s: %w", args[0], err)
		}

		verb := "deactivated"
		if active {
			verb = "activated"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key %s %s.\n", account.Mask(args[0]), verb)
		return nil
	}
}

func status(rec account.Record) string {
	switch account.Check(rec) {
	case account.ReasonInactive:
		return "inactive"
	case account.ReasonQuotaExceeded:
		return "exhausted"
	default:
		return "active"
	}
}
