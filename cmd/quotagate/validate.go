package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/artpar/quotagate/bootstrap"
	"github.com/artpar/quotagate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the quotagate configuration file.

Checks:
  - YAML syntax is valid
  - Plans, store driver and webhook plan are consistent
  - Store is reachable (optional)
  - Upstream is reachable (optional)

Examples:
  quotagate validate
  quotagate validate --config /etc/quotagate/config.yaml --check-store`,
	RunE: runValidate,
}

var (
	validateCheckUpstream bool
	validateCheckStore    bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckUpstream, "check-upstream", false, "check if upstream is reachable")
	validateCmd.Flags().BoolVar(&validateCheckStore, "check-store", false, "check if the store opens and answers")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config syntax valid\n", checkMark)

	fmt.Fprintf(out, "  %s Store: %s\n", checkMark, storeLabel(cfg.Store))
	fmt.Fprintf(out, "  %s Key prefix: %s\n", checkMark, cfg.Keys.Prefix)
	fmt.Fprintf(out, "  %s Plans configured: %d\n", checkMark, len(cfg.Plans))
	for _, p := range cfg.Plans {
		fmt.Fprintf(out, "      %s: %d requests\n", p.ID, p.Quota)
	}
	if cfg.Webhook.ProductID != "" {
		fmt.Fprintf(out, "  %s Purchase webhook: %s -> %s\n", checkMark, cfg.Webhook.ProductID, cfg.Webhook.Plan)
	}
	if cfg.Upstream.URL != "" {
		fmt.Fprintf(out, "  %s Upstream: %s\n", checkMark, cfg.Upstream.URL)
	}

	fmt.Fprintf(out, "  %s Hot-reloadable: %s\n", checkMark, strings.Join(config.ReloadableFields(), ", "))
	fmt.Fprintf(out, "      Restart required for: %s\n", strings.Join(config.NonReloadableFields(), ", "))

	if validateCheckStore {
		if err := checkStore(cfg.Store); err != nil {
			fmt.Fprintf(out, "  %s Store reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Store reachable\n", checkMark)
		}
	}

	if validateCheckUpstream && cfg.Upstream.URL != "" {
		if err := checkUpstreamReachable(cfg.Upstream.URL); err != nil {
			fmt.Fprintf(out, "  %s Upstream reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Upstream reachable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func storeLabel(s config.StoreConfig) string {
	switch s.Driver {
	case config.DriverRedis:
		return fmt.Sprintf("redis (%s, db %d)", s.Redis.Addr, s.Redis.DB)
	case config.DriverMemory:
		return fmt.Sprintf("memory (%d shards)", s.Shards)
	default:
		return fmt.Sprintf("sqlite (%s)", s.DSN)
	}
}

func checkStore(cfg config.StoreConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stores, err := bootstrap.OpenStores(ctx, cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer stores.Close()
	return stores.Keys.Ping(ctx)
}

func checkUpstreamReachable(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
