package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `crawler:
  concurrency_width: 2
  max_retries: 4
  location_delay_min_ms: 10
  location_delay_max_ms: 20
  brand_delay_min_ms: 30
  brand_delay_max_ms: 40
  validate_strict: true
catalog:
  url: https://example.com/geo/city_json.js
  cache_file: /tmp/cities.json
renderer:
  timeout_ms: 20000
  host_qps: 1.0
  max_scroll: 2
  scroll_delay_ms: 100
output:
  dir: /tmp/dealers
  formats: [csv]
vehicle_types:
  - name: cars
    base_url: https://example.com/car-dealers
    brands:
      - name: bmw
        locations: [Hyderabad, Chennai]
      - name: kia
        locations: [all]
  - name: bikes
    base_url: https://example.com/bike-dealers
    brands:
      - name: ducati
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 1, cfg.Crawler.ConcurrencyWidth)
	require.Equal(t, 3, cfg.Crawler.MaxRetries)
	require.Equal(t, 0.5, cfg.Crawler.FailureRateThreshold)
	require.Equal(t, "https://www.zigcdn.com/js/city_json.js", cfg.Catalog.URL)
	require.True(t, cfg.Renderer.Headless)
	require.Equal(t, 5, cfg.Renderer.MaxScroll)
	require.Equal(t, []string{"csv", "json"}, cfg.Output.Formats)
	require.False(t, cfg.Metrics.Enabled)
	require.Empty(t, cfg.VehicleTypes)
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, 2, cfg.Crawler.ConcurrencyWidth)
	require.Equal(t, 4, cfg.Crawler.MaxRetries)
	require.True(t, cfg.Crawler.ValidateStrict)
	require.Equal(t, "https://example.com/geo/city_json.js", cfg.Catalog.URL)
	require.Len(t, cfg.VehicleTypes, 2)
	require.Equal(t, "cars", cfg.VehicleTypes[0].Name)
	require.Len(t, cfg.VehicleTypes[0].Brands, 2)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"zero width":           "crawler:\n  concurrency_width: 0\n",
		"inverted delay":       "crawler:\n  location_delay_min_ms: 50\n  location_delay_max_ms: 10\n",
		"threshold over one":   "crawler:\n  failure_rate_threshold: 1.5\n",
		"empty catalog url":    "catalog:\n  url: \"\"\n",
		"brand without name":   "vehicle_types:\n  - name: cars\n    base_url: https://x\n    brands:\n      - locations: [Pune]\n",
		"type without baseurl": "vehicle_types:\n  - name: cars\n    brands:\n      - name: bmw\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestBrandEntryAllLocations(t *testing.T) {
	t.Parallel()

	require.True(t, BrandEntry{Name: "kia"}.AllLocations())
	require.True(t, BrandEntry{Name: "kia", Locations: []string{" ALL "}}.AllLocations())
	require.False(t, BrandEntry{Name: "kia", Locations: []string{"Pune"}}.AllLocations())
	require.False(t, BrandEntry{Name: "kia", Locations: []string{"all", "Pune"}}.AllLocations())
}

func TestBrandConfigsFlattensVehicleTypes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	brands := cfg.BrandConfigs()
	require.Len(t, brands, 3)

	require.Equal(t, "cars", brands[0].VehicleType)
	require.Equal(t, "bmw", brands[0].Name)
	require.Equal(t, "https://example.com/car-dealers", brands[0].BaseURL)
	require.False(t, brands[0].AllLocations)
	require.Equal(t, []string{"Hyderabad", "Chennai"}, brands[0].Locations)

	require.True(t, brands[1].AllLocations, `a single "all" entry covers the catalog`)
	require.Empty(t, brands[1].Locations)

	require.Equal(t, "bikes", brands[2].VehicleType)
	require.True(t, brands[2].AllLocations, "no locations list covers the catalog")
}

func TestSchedulerConfigConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	sc := cfg.SchedulerConfig()
	require.Equal(t, 2, sc.Width)
	require.Equal(t, 4, sc.MaxAttempts)
	require.Equal(t, 10*time.Millisecond, sc.LocationDelay.Min)
	require.Equal(t, 20*time.Millisecond, sc.LocationDelay.Max)
	require.Equal(t, 30*time.Millisecond, sc.BrandDelay.Min)
	require.Equal(t, 40*time.Millisecond, sc.BrandDelay.Max)
	require.Equal(t, 0.5, sc.FailureRateThreshold)
}

func TestRenderAndCatalogConversions(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	rc := cfg.RenderConfig()
	require.Equal(t, 20*time.Second, rc.Timeout)
	require.Equal(t, 1.0, rc.HostQPS)
	require.True(t, rc.Headless)
	require.Equal(t, 2, rc.MaxScroll)
	require.Equal(t, 100*time.Millisecond, rc.ScrollDelay)

	cc := cfg.CatalogConfigFor()
	require.Equal(t, "https://example.com/geo/city_json.js", cc.URL)
	require.Equal(t, "/tmp/cities.json", cc.CacheFile)
	require.Equal(t, 24*time.Hour, cc.MaxAge)
	require.Equal(t, 30*time.Second, cc.Timeout)
}
