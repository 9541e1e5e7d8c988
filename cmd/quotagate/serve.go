package main

import (
	"fmt"
	"os"

	"github.com/artpar/quotagate/bootstrap"
	"github.com/artpar/quotagate/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the quotagate HTTP server.

The server will:
  - Load configuration from quotagate.yaml (or --config)
  - Or build it from QUOTAGATE_* environment variables and defaults
  - Open the configured store (sqlite, memory or redis)
  - Serve key issuance, usage tracking and the metered /api routes

Environment variables (for Docker deployments):
  QUOTAGATE_STORE_DRIVER       - sqlite, memory or redis
  QUOTAGATE_STORE_DSN          - SQLite path (default: quotagate.db)
  QUOTAGATE_REDIS_ADDR         - Redis address
  QUOTAGATE_SERVER_PORT        - Server port (default: 8080)
  QUOTAGATE_WEBHOOK_PRODUCT_ID - Product id that mints keys
  QUOTAGATE_UPSTREAM_URL       - Forward charged /api requests here
  QUOTAGATE_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  quotagate serve
  quotagate serve --config /etc/quotagate/config.yaml
  quotagate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var a *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		a, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Fprintln(cmd.ErrOrStderr(), "Running with environment variables (no config file)")
		}

		a, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return a.Run()
}
