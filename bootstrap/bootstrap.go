// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/quotagate/adapters/clock"
	"github.com/artpar/quotagate/adapters/hasher"
	apihttp "github.com/artpar/quotagate/adapters/http"
	"github.com/artpar/quotagate/adapters/idgen"
	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/adapters/random"
	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/config"
	"github.com/artpar/quotagate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Stores     *Stores

	Guard    *app.QuotaGuard
	Issuer   *app.KeyIssuer
	Reporter *app.SummaryReporter
	Webhook  *app.PurchaseWebhook

	upstream *apihttp.UpstreamClient
	holder   *config.Holder
}

// Options tunes New. The zero value is production behaviour.
type Options struct {
	// Registry receives the collectors when metrics are enabled.
	// Defaults to the process-wide registry.
	Registry *prometheus.Registry

	// Hasher overrides bcrypt for secret hashing.
	Hasher ports.Hasher
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config) (*App, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates the application with explicit options.
func NewWithOptions(cfg *config.Config, opts Options) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	logger.Info().
		Str("version", apihttp.BuildVersion).
		Str("driver", cfg.Store.Driver).
		Msg("initializing quotagate")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	if cfg.Metrics.Enabled {
		if opts.Registry != nil {
			a.Metrics = metrics.NewWithRegistry(opts.Registry)
		} else {
			a.Metrics = metrics.New()
		}
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	stores, err := OpenStores(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("init stores: %w", err)
	}
	a.Stores = stores

	if err := stores.Keys.Ping(ctx); err != nil {
		stores.Close()
		return nil, fmt.Errorf("store unreachable: %w", err)
	}

	h := opts.Hasher
	if h == nil {
		h = hasher.NewBcrypt(0)
	}
	a.buildServices(h)

	if err := a.initHTTPServer(opts.Registry); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return a, nil
}

// NewWithHotReload loads path through a config.Holder, then watches the
// file and SIGHUP. Plans, the purchase mapping and the log level follow
// reloads; other fields are read once.
func NewWithHotReload(path string) (*App, error) {
	bootLogger := SetupLogger(config.LoggingConfig{Level: "info", Format: "json"})

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get())
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.holder = holder

	holder.OnChange(a.applyConfig)
	holder.OnError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP only")
	}
	holder.WatchSignals()

	a.Logger.Info().
		Str("path", holder.Path()).
		Strs("reloadable", config.ReloadableFields()).
		Strs("restart_required", config.NonReloadableFields()).
		Msg("config hot reload enabled")

	return a, nil
}

func (a *App) buildServices(h ports.Hasher) {
	cfg := a.Config
	gm := a.gateMetrics()
	clk := clock.Real{}

	a.Guard = app.NewQuotaGuard(app.GuardDeps{
		Keys:    a.Stores.Keys,
		Ledger:  a.Stores.Ledger,
		Clock:   clk,
		IDGen:   idgen.UUID{},
		Hasher:  h,
		Metrics: gm,
		Logger:  a.Logger,
	}, app.GuardConfig{KeyPrefix: cfg.Keys.Prefix})

	a.Issuer = app.NewKeyIssuer(app.IssuerDeps{
		Keys:    a.Stores.Keys,
		Random:  random.Real{},
		Clock:   clk,
		Hasher:  h,
		Metrics: gm,
		Logger:  a.Logger,
	}, app.IssuerConfig{KeyPrefix: cfg.Keys.Prefix, Plans: cfg.DomainPlans()})

	a.Reporter = app.NewSummaryReporter(app.SummaryDeps{
		Keys:    a.Stores.Keys,
		Ledger:  a.Stores.Ledger,
		Hasher:  h,
		Metrics: gm,
		Logger:  a.Logger,
	}, cfg.Keys.Prefix)

	a.Webhook = app.NewPurchaseWebhook(a.Issuer, app.PurchaseConfig{
		ProductID: cfg.Webhook.ProductID,
		Plan:      cfg.Webhook.Plan,
	}, a.Logger)

	a.Logger.Info().
		Int("plans", len(cfg.Plans)).
		Str("key_prefix", cfg.Keys.Prefix).
		Bool("webhook", cfg.Webhook.ProductID != "").
		Msg("services initialized")
}

// gateMetrics avoids handing services a typed-nil collector.
func (a *App) gateMetrics() ports.GateMetrics {
	if a.Metrics == nil {
		return ports.NopMetrics{}
	}
	return a.Metrics
}

func (a *App) initHTTPServer(reg *prometheus.Registry) error {
	cfg := a.Config

	if cfg.Upstream.URL != "" {
		upstream, err := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{
			BaseURL:         cfg.Upstream.URL,
			Timeout:         cfg.Upstream.Timeout,
			MaxIdleConns:    cfg.Upstream.MaxIdleConns,
			IdleConnTimeout: cfg.Upstream.IdleConnTimeout,
		})
		if err != nil {
			return fmt.Errorf("upstream: %w", err)
		}
		a.upstream = upstream
		a.Logger.Info().Str("url", cfg.Upstream.URL).Msg("forwarding /api to upstream")
	}

	gate := apihttp.NewGateHandler(apihttp.GateDeps{
		Guard:    a.Guard,
		Issuer:   a.Issuer,
		Reporter: a.Reporter,
		Webhook:  a.Webhook,
		Upstream: a.upstream,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})

	routerCfg := apihttp.RouterConfig{
		Metrics:       a.Metrics,
		MetricsPath:   cfg.Metrics.Path,
		EnableOpenAPI: cfg.OpenAPI.Enabled,
		Timeout:       cfg.Server.WriteTimeout,
	}
	if a.Metrics != nil && reg != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	router := apihttp.NewRouter(gate, apihttp.NewHealthHandler(a.Stores.Keys), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", cfg.Addr()).Msg("http server configured")
	return nil
}

// applyConfig pushes the reloadable fields of cfg into running services.
func (a *App) applyConfig(cfg *config.Config) {
	a.Issuer.UpdatePlans(cfg.DomainPlans())
	a.Webhook.UpdateConfig(app.PurchaseConfig{
		ProductID: cfg.Webhook.ProductID,
		Plan:      cfg.Webhook.Plan,
	})
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
	}

	a.Logger.Info().Int("plans", len(cfg.Plans)).Msg("reloadable config applied")
}

// Reload re-reads the config file. Only available with hot reload.
func (a *App) Reload() error {
	if a.holder == nil {
		return fmt.Errorf("hot reload not enabled")
	}
	return a.holder.Reload()
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.HTTPServer.Handler
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.upstream != nil {
		a.upstream.Close()
	}

	if a.Stores != nil {
		if err := a.Stores.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("store close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the process logger from cfg and sets the global level.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
