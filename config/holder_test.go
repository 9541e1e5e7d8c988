package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/quotagate/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Webhook.ProductID != "prod-1" {
		t.Errorf("Webhook.ProductID = %s, want prod-1", got.Webhook.ProductID)
	}
	if !filepath.IsAbs(h.Path()) || filepath.Base(h.Path()) != "config.yaml" {
		t.Errorf("Path() = %s, want absolute path to config.yaml", h.Path())
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if q := h.Get().Plans[0].Quota; q != 100 {
		t.Errorf("initial quota = %d, want 100", q)
	}

	newContent := `
plans:
  - id: "basic"
    quota: 200
webhook:
  product_id: "prod-2"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Plans[0].Quota != 200 {
		t.Errorf("reloaded quota = %d, want 200", cfg.Plans[0].Quota)
	}
	if cfg.Webhook.ProductID != "prod-2" {
		t.Errorf("reloaded product = %s, want prod-2", cfg.Webhook.ProductID)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var received *config.Config

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
	})

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("OnChange callback was not called")
	}
	if received.Logging.Level != "debug" {
		t.Errorf("callback level = %s, want debug", received.Logging.Level)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var reloadErr error
	h.OnError(func(err error) { reloadErr = err })

	if err := os.WriteFile(path, []byte("store:\n  driver: mongo\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if reloadErr == nil {
		t.Error("OnError callback was not called")
	}

	if got := h.Get().Webhook.ProductID; got != "prod-1" {
		t.Errorf("should keep old config, got product %s", got)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan struct{}, 1)
	h.OnChange(func(*config.Config) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	newContent := `
plans:
  - id: "basic"
    quota: 5000
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("file watcher did not trigger reload")
	}

	// Editors may fire several events per save; wait for the final state.
	deadline := time.Now().Add(2 * time.Second)
	for h.Get().Plans[0].Quota != 5000 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if q := h.Get().Plans[0].Quota; q != 5000 {
		t.Errorf("after file watch, quota = %d, want 5000", q)
	}
}

func TestHolder_StopTwice(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := config.ReloadableFields()
	fixed := config.NonReloadableFields()

	for _, want := range []string{"plans", "webhook.plan", "logging.level"} {
		if !contains(reloadable, want) {
			t.Errorf("%s not in ReloadableFields", want)
		}
	}
	for _, want := range []string{"server.port", "store", "keys.prefix"} {
		if !contains(fixed, want) {
			t.Errorf("%s not in NonReloadableFields", want)
		}
	}
	for _, f := range reloadable {
		if contains(fixed, f) {
			t.Errorf("%s listed as both reloadable and fixed", f)
		}
	}
}

// Helpers

func validConfig() string {
	return `
store:
  driver: memory

plans:
  - id: "basic"
    name: "Basic"
    quota: 100

webhook:
  product_id: "prod-1"
`
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
