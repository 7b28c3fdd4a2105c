// Package catalog obtains and caches the universe of valid location
// identifiers from the remote city catalog endpoint.
package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

// Entry is one valid location identifier with optional region metadata.
// Entries are immutable once fetched.
type Entry struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// Config controls catalog fetching and cache freshness.
type Config struct {
	URL       string
	CacheFile string
	MaxAge    time.Duration
	UserAgent string
	Timeout   time.Duration
}

// Catalog supplies location lookups to the matrix builder. Load must be
// called before Entries or Resolve.
type Catalog struct {
	cfg       Config
	logger    *zap.Logger
	transport http.RoundTripper
	entries   []Entry
	byNorm    map[string]Entry
}

// New creates an unloaded catalog.
func New(cfg Config, logger *zap.Logger) *Catalog {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Catalog{cfg: cfg, logger: logger}
}

// WithTransport overrides the HTTP transport used for the remote fetch.
func (c *Catalog) WithTransport(rt http.RoundTripper) *Catalog {
	c.transport = rt
	return c
}

// Load populates the catalog. A fresh cache short-circuits the remote
// fetch; a remote failure degrades to a stale cache with a warning, and
// only when neither source is usable does Load fail with
// crawl.ErrCatalogUnavailable.
func (c *Catalog) Load() error {
	if cached, ok := readCache(c.cfg.CacheFile); ok && time.Since(cached.FetchedAt) < c.cfg.MaxAge {
		c.logger.Debug("using cached location catalog",
			zap.Int("entries", len(cached.Entries)),
			zap.Time("fetched_at", cached.FetchedAt),
		)
		c.index(cached.Entries)
		return nil
	}

	entries, err := c.fetchRemote()
	if err != nil {
		if cached, ok := readCache(c.cfg.CacheFile); ok {
			c.logger.Warn("catalog fetch failed, falling back to stale cache",
				zap.Error(err),
				zap.Time("fetched_at", cached.FetchedAt),
			)
			c.index(cached.Entries)
			return nil
		}
		return fmt.Errorf("%w: %v", crawl.ErrCatalogUnavailable, err)
	}

	c.index(entries)
	if c.cfg.CacheFile != "" {
		if werr := writeCache(c.cfg.CacheFile, cacheFile{FetchedAt: time.Now().UTC(), Entries: entries}); werr != nil {
			c.logger.Warn("failed to persist catalog cache", zap.Error(werr))
		}
	}
	return nil
}

// Entries returns the catalog in fetch order.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

// Resolve finds an entry by name, tolerating case and minor punctuation
// differences.
func (c *Catalog) Resolve(name string) (Entry, bool) {
	e, ok := c.byNorm[crawl.NormalizeName(name)]
	return e, ok
}

// LocationNames implements crawl.LocationSource for the matrix builder.
func (c *Catalog) LocationNames() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// ResolveLocation implements crawl.LocationSource.
func (c *Catalog) ResolveLocation(name string) (string, bool) {
	e, ok := c.Resolve(name)
	if !ok {
		return "", false
	}
	return e.Name, true
}

func (c *Catalog) index(entries []Entry) {
	c.entries = entries
	c.byNorm = make(map[string]Entry, len(entries))
	for _, e := range entries {
		key := crawl.NormalizeName(e.Name)
		if _, exists := c.byNorm[key]; !exists {
			c.byNorm[key] = e
		}
	}
}

// remoteCity mirrors the catalog endpoint's loose schema. Unknown fields
// are ignored; entries without a usable name are skipped.
type remoteCity struct {
	Value string `json:"value"`
	Name  string `json:"name"`
	State string `json:"state"`
}

func (c *Catalog) fetchRemote() ([]Entry, error) {
	collector := colly.NewCollector(colly.UserAgent(c.cfg.UserAgent))
	collector.SetRequestTimeout(c.cfg.Timeout)
	if c.transport != nil {
		collector.WithTransport(c.transport)
	}

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(c.cfg.URL); err != nil {
		return nil, fmt.Errorf("visit catalog endpoint: %w", err)
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch catalog: %w", fetchErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("catalog endpoint returned empty body")
	}

	return parseEntries(body)
}

// parseEntries decodes the endpoint response defensively: a schema the
// decoder does not recognize is an unavailability, not a crash.
func parseEntries(body []byte) ([]Entry, error) {
	var cities []remoteCity
	if err := json.Unmarshal(body, &cities); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	entries := make([]Entry, 0, len(cities))
	seen := make(map[string]struct{}, len(cities))
	for _, city := range cities {
		name := city.Value
		if name == "" {
			name = city.Name
		}
		if name == "" {
			continue
		}
		key := crawl.NormalizeName(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, Entry{Name: name, Region: city.State})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog response held no usable entries")
	}
	return entries, nil
}
