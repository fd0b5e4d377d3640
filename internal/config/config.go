// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Site    crawler.Site  `mapstructure:"site"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
	Status  StatusConfig  `mapstructure:"status"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	// Workers bounds the parse pool.
	Workers int `mapstructure:"workers"`
	// Sessions is the number of fetch sessions when no proxies are given.
	Sessions      int           `mapstructure:"sessions"`
	RequestDelay  time.Duration `mapstructure:"request_delay"`
	ReadyTimeout  time.Duration `mapstructure:"ready_timeout"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	Timezone      string        `mapstructure:"timezone"`
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// BrowserConfig configures the chromedp sessions.
type BrowserConfig struct {
	RemoteURL string `mapstructure:"remote_url"`
	// Proxies lists upstream proxies; each one gets its own session.
	Proxies  []string `mapstructure:"proxies"`
	Headless bool     `mapstructure:"headless"`
}

// StorageConfig selects the page cache backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres. An empty DSN disables the database sink.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds the notification target. An empty project disables notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StatusConfig configures the optional status server. Empty Addr disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from defaults, an optional file and KEIBA_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KEIBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	site := crawler.DefaultSite()
	v.SetDefault("crawler.base_dir", "data")
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.sessions", 1)
	v.SetDefault("crawler.request_delay", 10*time.Second)
	v.SetDefault("crawler.ready_timeout", 10*time.Second)
	v.SetDefault("crawler.nav_timeout", 45*time.Second)
	v.SetDefault("crawler.http_timeout", 30*time.Second)
	v.SetDefault("crawler.timezone", "Asia/Tokyo")
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.proxies", []string{})
	v.SetDefault("browser.headless", true)
	v.SetDefault("site.calendar_url", site.CalendarURL)
	v.SetDefault("site.race_list_url", site.RaceListURL)
	v.SetDefault("site.race_result_url", site.RaceResultURL)
	v.SetDefault("site.horse_url", site.HorseURL)
	v.SetDefault("site.pedigree_url", site.PedigreeURL)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "race-results")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("status.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Crawler.Workers <= 0 {
		errs = append(errs, errors.New("crawler.workers must be > 0"))
	}
	if c.Crawler.Sessions <= 0 {
		errs = append(errs, errors.New("crawler.sessions must be > 0"))
	}
	if c.Crawler.RequestDelay < 0 {
		errs = append(errs, errors.New("crawler.request_delay must be >= 0"))
	}
	if c.Crawler.ReadyTimeout <= 0 || c.Crawler.NavTimeout <= 0 {
		errs = append(errs, errors.New("crawler.ready_timeout and crawler.nav_timeout must be > 0"))
	}
	if _, err := time.LoadLocation(c.Crawler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("crawler.timezone: %w", err))
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Crawler.BaseDir == "" {
			errs = append(errs, errors.New("crawler.base_dir is required for the local backend"))
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of local, gcs, memory", c.Storage.Backend))
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		errs = append(errs, errors.New("pubsub.topic_name must be set when pubsub.project_id is set"))
	}
	return errors.Join(errs...)
}

// Location returns the time zone used to decide which race dates are in the future.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Crawler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
