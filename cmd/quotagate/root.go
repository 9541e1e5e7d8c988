package main

import (
	"context"
	"fmt"
	"os"

	"github.com/artpar/quotagate/adapters/clock"
	"github.com/artpar/quotagate/adapters/hasher"
	"github.com/artpar/quotagate/adapters/random"
	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/bootstrap"
	"github.com/artpar/quotagate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quotagate",
	Short: "API key issuance and usage metering gateway",
	Long: `quotagate issues API keys on fixed-quota plans and meters their use.

Every charged request consumes one unit of the key's lifetime quota and is
recorded in the usage ledger. Keys are minted over HTTP, by a storefront
purchase webhook, or from this CLI.

Quick start:
  quotagate serve            # Start the gateway
  quotagate keys issue       # Mint a basic key

Management:
  quotagate keys list        # List issued keys
  quotagate usage <key>      # Show a key's usage summary
  quotagate validate         # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "quotagate.yaml", "config file path")
}

// cliEnv is the subset of the application the management commands need.
type cliEnv struct {
	cfg      *config.Config
	stores   *bootstrap.Stores
	issuer   *app.KeyIssuer
	reporter *app.SummaryReporter
}

func (e *cliEnv) Close() error {
	return e.stores.Close()
}

// openEnv loads configuration and opens the configured store. CLI
// commands log only warnings and above.
func openEnv(ctx context.Context) (*cliEnv, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	stores, err := bootstrap.OpenStores(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	h := hasher.NewBcrypt(0)

	issuer := app.NewKeyIssuer(app.IssuerDeps{
		Keys:   stores.Keys,
		Random: random.Real{},
		Clock:  clock.Real{},
		Hasher: h,
		Logger: logger,
	}, app.IssuerConfig{KeyPrefix: cfg.Keys.Prefix, Plans: cfg.DomainPlans()})

	reporter := app.NewSummaryReporter(app.SummaryDeps{
		Keys:   stores.Keys,
		Ledger: stores.Ledger,
		Hasher: h,
		Logger: logger,
	}, cfg.Keys.Prefix)

	return &cliEnv{cfg: cfg, stores: stores, issuer: issuer, reporter: reporter}, nil
}
