package bootstrap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/quotagate/adapters/hasher"
	"github.com/artpar/quotagate/bootstrap"
	"github.com/artpar/quotagate/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(content))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *bootstrap.App {
	t.Helper()
	a, err := bootstrap.NewWithOptions(cfg, bootstrap.Options{
		Registry: prometheus.NewRegistry(),
		Hasher:   hasher.Fake{},
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func serve(a *bootstrap.App, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestBootstrap_MemoryEndToEnd(t *testing.T) {
	a := newApp(t, loadConfig(t, `
store:
  driver: memory
  shards: 4
plans:
  - id: basic
    quota: 2
metrics:
  enabled: true
openapi:
  enabled: true
logging:
  level: error
`))

	if a.Metrics == nil {
		t.Fatal("Metrics should be enabled")
	}
	if a.Stores.Driver != config.DriverMemory {
		t.Errorf("Driver = %s, want memory", a.Stores.Driver)
	}

	rec := serve(a, "POST", "/register", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body: %s", rec.Code, rec.Body)
	}
	var issued struct {
		APIKey string `json:"api_key"`
		Secret string `json:"secret"`
		Quota  int64  `json:"quota"`
	}
	json.NewDecoder(rec.Body).Decode(&issued)
	if issued.Quota != 2 {
		t.Errorf("Quota = %d, want 2", issued.Quota)
	}

	key := http.Header{"X-Api-Key": {issued.APIKey}}
	for i := 0; i < 2; i++ {
		if rec := serve(a, "GET", "/api/thing", key); rec.Code != http.StatusOK {
			t.Fatalf("charge %d status = %d", i, rec.Code)
		}
	}
	if rec := serve(a, "GET", "/api/thing", key); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third charge status = %d, want 429", rec.Code)
	}

	count, err := a.Stores.Ledger.Count(context.Background(), issued.APIKey)
	if err != nil || count != 2 {
		t.Errorf("ledger count = %d, %v; want 2", count, err)
	}

	rec = serve(a, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "quotagate_charges_total") {
		t.Errorf("metrics status = %d", rec.Code)
	}

	if rec := serve(a, "GET", "/.well-known/openapi.json", nil); rec.Code != http.StatusOK {
		t.Errorf("openapi status = %d", rec.Code)
	}
}

func TestBootstrap_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "quotagate.db")
	cfg := loadConfig(t, "store:\n  driver: sqlite\n  dsn: "+dsn+"\n")

	a := newApp(t, cfg)

	if a.Stores.Driver != config.DriverSQLite {
		t.Errorf("Driver = %s, want sqlite", a.Stores.Driver)
	}
	if a.Metrics != nil {
		t.Error("Metrics should be disabled by default")
	}
	if rec := serve(a, "GET", "/health/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
	if rec := serve(a, "GET", "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Errorf("metrics status = %d, want 404 when disabled", rec.Code)
	}
	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestBootstrap_RedisUnreachable(t *testing.T) {
	cfg := loadConfig(t, `
store:
  driver: redis
  redis:
    addr: "127.0.0.1:1"
`)
	_, err := bootstrap.NewWithOptions(cfg, bootstrap.Options{Hasher: hasher.Fake{}})
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestBootstrap_BadUpstream(t *testing.T) {
	cfg := loadConfig(t, "store:\n  driver: memory\n")
	cfg.Upstream.URL = "://nope"

	_, err := bootstrap.NewWithOptions(cfg, bootstrap.Options{Hasher: hasher.Fake{}})
	if err == nil || !strings.Contains(err.Error(), "upstream") {
		t.Errorf("err = %v, want upstream error", err)
	}
}

func TestBootstrap_HotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotagate.yaml")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	write(`
store:
  driver: memory
logging:
  level: error
`)

	a, err := bootstrap.NewWithHotReload(path)
	if err != nil {
		t.Fatalf("NewWithHotReload: %v", err)
	}
	defer a.Shutdown()

	if _, err := a.Issuer.Issue(context.Background(), "gold"); err == nil {
		t.Fatal("gold should not exist before reload")
	}

	write(`
store:
  driver: memory
plans:
  - id: basic
    quota: 10
  - id: gold
    quota: 99
webhook:
  product_id: prod-gold
  plan: gold
logging:
  level: error
`)
	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	issued, err := a.Issuer.Issue(context.Background(), "gold")
	if err != nil {
		t.Fatalf("Issue gold after reload: %v", err)
	}
	if issued.Record.Quota != 99 {
		t.Errorf("Quota = %d, want 99", issued.Record.Quota)
	}

	bought, err := a.Webhook.HandlePurchase(context.Background(), map[string]string{"product_id": "prod-gold"})
	if err != nil {
		t.Fatalf("HandlePurchase after reload: %v", err)
	}
	if bought.Record.Plan != "gold" {
		t.Errorf("Plan = %s, want gold", bought.Record.Plan)
	}
}

func TestBootstrap_ReloadWithoutHolder(t *testing.T) {
	a := newApp(t, loadConfig(t, "store:\n  driver: memory\n"))
	if err := a.Reload(); err == nil {
		t.Error("Reload should fail without hot reload")
	}
}

func TestSetupLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	bootstrap.SetupLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("GlobalLevel = %s, want warn", zerolog.GlobalLevel())
	}

	bootstrap.SetupLogger(config.LoggingConfig{Level: "bogus"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("GlobalLevel = %s, want info fallback", zerolog.GlobalLevel())
	}
}
