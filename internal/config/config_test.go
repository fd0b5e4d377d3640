package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.RequestDelay != 10*time.Second {
		t.Fatalf("expected 10s request delay, got %v", cfg.Crawler.RequestDelay)
	}
	if cfg.Crawler.ReadyTimeout != 10*time.Second {
		t.Fatalf("expected 10s ready timeout, got %v", cfg.Crawler.ReadyTimeout)
	}
	if cfg.Crawler.BaseDir != "data" || cfg.Storage.Backend != BackendLocal {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Crawler, cfg.Storage)
	}
	if cfg.Site.RaceResultURL != "https://race.netkeiba.com/race/result.html" {
		t.Fatalf("unexpected race result url %q", cfg.Site.RaceResultURL)
	}
	if cfg.Location().String() != "Asia/Tokyo" {
		t.Fatalf("expected Asia/Tokyo, got %s", cfg.Location())
	}
	if !cfg.Browser.Headless {
		t.Fatal("expected headless by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  base_dir: /var/keiba
  workers: 8
  sessions: 2
  request_delay: 3s
  timezone: UTC
browser:
  remote_url: http://chrome:9222
  proxies: ["http://p1:8080", "http://p2:8080"]
storage:
  backend: gcs
  gcs_bucket: keiba-pages
db:
  dsn: postgres://keiba@localhost/keiba
  max_conns: 10
pubsub:
  project_id: proj
  topic_name: races
logging:
  development: false
  level: warn
status:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Workers != 8 || cfg.Crawler.Sessions != 2 || cfg.Crawler.RequestDelay != 3*time.Second {
		t.Fatalf("crawler overrides not applied: %+v", cfg.Crawler)
	}
	if len(cfg.Browser.Proxies) != 2 || cfg.Browser.RemoteURL != "http://chrome:9222" {
		t.Fatalf("browser overrides not applied: %+v", cfg.Browser)
	}
	if cfg.Storage.Backend != BackendGCS || cfg.Storage.GCSBucket != "keiba-pages" || cfg.Storage.Prefix != "pages" {
		t.Fatalf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.DB.MaxConns != 10 || cfg.DB.MaxConnLifetime != time.Hour {
		t.Fatalf("db overrides not applied: %+v", cfg.DB)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" || cfg.Status.Addr != ":9090" {
		t.Fatalf("logging/status overrides not applied: %+v %+v", cfg.Logging, cfg.Status)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", cfg.Location())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KEIBA_CRAWLER_WORKERS", "12")
	t.Setenv("KEIBA_DB_DSN", "postgres://env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Workers != 12 {
		t.Fatalf("expected env workers 12, got %d", cfg.Crawler.Workers)
	}
	if cfg.DB.DSN != "postgres://env" {
		t.Fatalf("expected env dsn, got %q", cfg.DB.DSN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := map[string]func(*Config){
		"crawler.workers":    func(c *Config) { c.Crawler.Workers = 0 },
		"crawler.sessions":   func(c *Config) { c.Crawler.Sessions = 0 },
		"crawler.timezone":   func(c *Config) { c.Crawler.Timezone = "Mars/Olympus" },
		"storage.gcs_bucket": func(c *Config) { c.Storage.Backend = BackendGCS },
		"storage.backend":    func(c *Config) { c.Storage.Backend = "s3" },
		"crawler.base_dir":   func(c *Config) { c.Crawler.BaseDir = "" },
		"pubsub.topic_name":  func(c *Config) { c.PubSub.ProjectID = "p"; c.PubSub.TopicName = "" },
	}
	for want, mutate := range cases {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error mentioning %s, got %v", want, err)
		}
	}

	memory := base
	memory.Storage.Backend = BackendMemory
	memory.Crawler.BaseDir = ""
	if err := memory.Validate(); err != nil {
		t.Fatalf("memory backend should not need base_dir: %v", err)
	}
}
