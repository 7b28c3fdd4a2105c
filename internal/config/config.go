// Package config loads and validates dealer crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dealerwatch/dealercrawl/internal/catalog"
	"github.com/dealerwatch/dealercrawl/internal/crawl"
	"github.com/dealerwatch/dealercrawl/internal/render"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler      CrawlerConfig       `mapstructure:"crawler"`
	Catalog      CatalogConfig       `mapstructure:"catalog"`
	Renderer     RendererConfig      `mapstructure:"renderer"`
	Output       OutputConfig        `mapstructure:"output"`
	Metrics      MetricsConfig       `mapstructure:"metrics"`
	DB           DBConfig            `mapstructure:"db"`
	Logging      LoggingConfig       `mapstructure:"logging"`
	VehicleTypes []VehicleTypeConfig `mapstructure:"vehicle_types"`
}

// VehicleTypeConfig groups brands sharing a dealer listing base URL.
type VehicleTypeConfig struct {
	Name    string       `mapstructure:"name"`
	BaseURL string       `mapstructure:"base_url"`
	Brands  []BrandEntry `mapstructure:"brands"`
}

// BrandEntry selects locations for one brand. A single "all" entry (or an
// empty list) expands to every catalog location.
type BrandEntry struct {
	Name      string   `mapstructure:"name"`
	Locations []string `mapstructure:"locations"`
}

// AllLocations reports whether this brand covers the whole catalog.
func (b BrandEntry) AllLocations() bool {
	if len(b.Locations) == 0 {
		return true
	}
	return len(b.Locations) == 1 && strings.EqualFold(strings.TrimSpace(b.Locations[0]), "all")
}

// CrawlerConfig governs scheduling, pacing, and retry behavior.
type CrawlerConfig struct {
	ConcurrencyWidth     int     `mapstructure:"concurrency_width"`
	MaxRetries           int     `mapstructure:"max_retries"`
	BackoffBaseMs        int     `mapstructure:"backoff_base_ms"`
	BackoffMaxMs         int     `mapstructure:"backoff_max_ms"`
	LocationDelayMinMs   int     `mapstructure:"location_delay_min_ms"`
	LocationDelayMaxMs   int     `mapstructure:"location_delay_max_ms"`
	BrandDelayMinMs      int     `mapstructure:"brand_delay_min_ms"`
	BrandDelayMaxMs      int     `mapstructure:"brand_delay_max_ms"`
	ValidateStrict       bool    `mapstructure:"validate_strict"`
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`
	FailureRateMinSample int     `mapstructure:"failure_rate_min_sample"`
	UserAgent            string  `mapstructure:"user_agent"`
}

// CatalogConfig points at the remote city catalog and its local cache.
type CatalogConfig struct {
	URL         string `mapstructure:"url"`
	CacheFile   string `mapstructure:"cache_file"`
	MaxAgeHours int    `mapstructure:"max_age_hours"`
	TimeoutSec  int    `mapstructure:"timeout_seconds"`
}

// RendererConfig configures the headless rendering subsystem.
type RendererConfig struct {
	Headless      bool    `mapstructure:"headless"`
	TimeoutMs     int     `mapstructure:"timeout_ms"`
	HostQPS       float64 `mapstructure:"host_qps"`
	SettleDelayMs int     `mapstructure:"settle_delay_ms"`
	MaxScroll     int     `mapstructure:"max_scroll"`
	ScrollDelayMs int     `mapstructure:"scroll_delay_ms"`
}

// OutputConfig controls where and how results are written.
type OutputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// MetricsConfig toggles the Prometheus endpoint for long runs.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DBConfig enables the optional Postgres sink when a DSN is set.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALERCRAWL")
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
	v.SetDefault("crawler.concurrency_width", 1)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_base_ms", 1000)
	v.SetDefault("crawler.backoff_max_ms", 30000)
	v.SetDefault("crawler.location_delay_min_ms", 1000)
	v.SetDefault("crawler.location_delay_max_ms", 4000)
	v.SetDefault("crawler.brand_delay_min_ms", 3000)
	v.SetDefault("crawler.brand_delay_max_ms", 8000)
	v.SetDefault("crawler.validate_strict", false)
	v.SetDefault("crawler.failure_rate_threshold", 0.5)
	v.SetDefault("crawler.failure_rate_min_sample", 10)
	v.SetDefault("crawler.user_agent", "dealercrawl/1.0 (+https://github.com/dealerwatch/dealercrawl)")
	v.SetDefault("catalog.url", "https://www.zigcdn.com/js/city_json.js")
	v.SetDefault("catalog.cache_file", "data/cities.json")
	v.SetDefault("catalog.max_age_hours", 24)
	v.SetDefault("catalog.timeout_seconds", 30)
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.timeout_ms", 15000)
	v.SetDefault("renderer.host_qps", 0.5)
	v.SetDefault("renderer.settle_delay_ms", 500)
	v.SetDefault("renderer.max_scroll", 5)
	v.SetDefault("renderer.scroll_delay_ms", 300)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.formats", []string{"csv", "json"})
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.ConcurrencyWidth <= 0 {
		return fmt.Errorf("crawler.concurrency_width must be > 0")
	}
	if c.Crawler.MaxRetries <= 0 {
		return fmt.Errorf("crawler.max_retries must be > 0")
	}
	if c.Crawler.LocationDelayMaxMs < c.Crawler.LocationDelayMinMs {
		return fmt.Errorf("crawler.location_delay_max_ms must be >= location_delay_min_ms")
	}
	if c.Crawler.BrandDelayMaxMs < c.Crawler.BrandDelayMinMs {
		return fmt.Errorf("crawler.brand_delay_max_ms must be >= brand_delay_min_ms")
	}
	if c.Crawler.FailureRateThreshold < 0 || c.Crawler.FailureRateThreshold > 1 {
		return fmt.Errorf("crawler.failure_rate_threshold must be within [0, 1]")
	}
	if c.Catalog.URL == "" {
		return fmt.Errorf("catalog.url must be set")
	}
	if c.Renderer.TimeoutMs <= 0 {
		return fmt.Errorf("renderer.timeout_ms must be > 0")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	for _, vt := range c.VehicleTypes {
		if vt.Name == "" {
			return fmt.Errorf("vehicle_types entries require a name")
		}
		if vt.BaseURL == "" {
			return fmt.Errorf("vehicle type %q requires a base_url", vt.Name)
		}
		for _, brand := range vt.Brands {
			if brand.Name == "" {
				return fmt.Errorf("vehicle type %q has a brand without a name", vt.Name)
			}
		}
	}
	return nil
}

// BrandConfigs flattens the vehicle type tree into the ordered brand list
// the matrix builder consumes.
func (c Config) BrandConfigs() []crawl.BrandConfig {
	var brands []crawl.BrandConfig
	for _, vt := range c.VehicleTypes {
		for _, brand := range vt.Brands {
			bc := crawl.BrandConfig{
				VehicleType:  vt.Name,
				BaseURL:      vt.BaseURL,
				Name:         brand.Name,
				AllLocations: brand.AllLocations(),
			}
			if !bc.AllLocations {
				bc.Locations = brand.Locations
			}
			brands = append(brands, bc)
		}
	}
	return brands
}

// SchedulerConfig converts the crawler knobs into the scheduler's form.
func (c Config) SchedulerConfig() crawl.SchedulerConfig {
	return crawl.SchedulerConfig{
		Width:       c.Crawler.ConcurrencyWidth,
		MaxAttempts: c.Crawler.MaxRetries,
		BackoffBase: time.Duration(c.Crawler.BackoffBaseMs) * time.Millisecond,
		BackoffMax:  time.Duration(c.Crawler.BackoffMaxMs) * time.Millisecond,
		LocationDelay: crawl.DelayWindow{
			Min: time.Duration(c.Crawler.LocationDelayMinMs) * time.Millisecond,
			Max: time.Duration(c.Crawler.LocationDelayMaxMs) * time.Millisecond,
		},
		BrandDelay: crawl.DelayWindow{
			Min: time.Duration(c.Crawler.BrandDelayMinMs) * time.Millisecond,
			Max: time.Duration(c.Crawler.BrandDelayMaxMs) * time.Millisecond,
		},
		FailureRateThreshold: c.Crawler.FailureRateThreshold,
		FailureRateMinSample: c.Crawler.FailureRateMinSample,
	}
}

// RenderConfig converts the renderer knobs into the render package form.
func (c Config) RenderConfig() render.Config {
	return render.Config{
		Headless:    c.Renderer.Headless,
		UserAgent:   c.Crawler.UserAgent,
		Timeout:     time.Duration(c.Renderer.TimeoutMs) * time.Millisecond,
		HostQPS:     c.Renderer.HostQPS,
		SettleDelay: time.Duration(c.Renderer.SettleDelayMs) * time.Millisecond,
		MaxScroll:   c.Renderer.MaxScroll,
		ScrollDelay: time.Duration(c.Renderer.ScrollDelayMs) * time.Millisecond,
	}
}

// CatalogConfigFor converts the catalog knobs into the catalog package form.
func (c Config) CatalogConfigFor() catalog.Config {
	return catalog.Config{
		URL:       c.Catalog.URL,
		CacheFile: c.Catalog.CacheFile,
		MaxAge:    time.Duration(c.Catalog.MaxAgeHours) * time.Hour,
		UserAgent: c.Crawler.UserAgent,
		Timeout:   time.Duration(c.Catalog.TimeoutSec) * time.Second,
	}
}
