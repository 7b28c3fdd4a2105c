package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

const catalogURL = "https://example.com/geo/city_json.js"

const catalogBody = `[
  {"value": "Hyderabad", "state": "Telangana"},
  {"value": "Chennai", "state": "Tamil Nadu"},
  {"name": "Pune", "state": "Maharashtra"},
  {"value": "hyderabad", "state": "Telangana"},
  {"value": "", "name": ""}
]`

func testConfig(cacheFile string) Config {
	return Config{
		URL:       catalogURL,
		CacheFile: cacheFile,
		MaxAge:    time.Hour,
		UserAgent: "dealercrawl-test",
		Timeout:   5 * time.Second,
	}
}

func mockedCatalog(t *testing.T, cacheFile string, responder httpmock.Responder) *Catalog {
	t.Helper()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", catalogURL, responder)
	return New(testConfig(cacheFile), zap.NewNop()).WithTransport(transport)
}

func TestLoadFetchesAndParsesRemote(t *testing.T) {
	t.Parallel()

	c := mockedCatalog(t, "", httpmock.NewStringResponder(200, catalogBody))
	require.NoError(t, c.Load())

	entries := c.Entries()
	require.Len(t, entries, 3, "duplicates and empty names are dropped")
	require.Equal(t, "Hyderabad", entries[0].Name)
	require.Equal(t, "Telangana", entries[0].Region)
	require.Equal(t, "Pune", entries[2].Name)

	name, ok := c.ResolveLocation("  HYDERABAD ")
	require.True(t, ok)
	require.Equal(t, "Hyderabad", name)

	_, ok = c.ResolveLocation("Atlantis")
	require.False(t, ok)

	require.Equal(t, []string{"Hyderabad", "Chennai", "Pune"}, c.LocationNames())
}

func TestLoadWritesAndReusesCache(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "cities.json")
	c := mockedCatalog(t, cachePath, httpmock.NewStringResponder(200, catalogBody))
	require.NoError(t, c.Load())
	require.FileExists(t, cachePath)

	// A fresh cache short-circuits the fetch entirely: no responder needed.
	transport := httpmock.NewMockTransport()
	cached := New(testConfig(cachePath), zap.NewNop()).WithTransport(transport)
	require.NoError(t, cached.Load())
	require.Len(t, cached.Entries(), 3)
	require.Zero(t, transport.GetTotalCallCount())
}

func TestLoadFallsBackToStaleCache(t *testing.T) {
	t.Parallel()

	cachePath := filepath.Join(t.TempDir(), "cities.json")
	payload, err := json.Marshal(cacheFile{
		FetchedAt: time.Now().Add(-48 * time.Hour),
		Entries:   []Entry{{Name: "Pune", Region: "Maharashtra"}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cachePath, payload, 0o640))

	c := mockedCatalog(t, cachePath, httpmock.NewErrorResponder(os.ErrDeadlineExceeded))
	require.NoError(t, c.Load(), "a stale cache still beats a dead endpoint")
	require.Len(t, c.Entries(), 1)
	require.Equal(t, "Pune", c.Entries()[0].Name)
}

func TestLoadFailsWithoutRemoteOrCache(t *testing.T) {
	t.Parallel()

	c := mockedCatalog(t, filepath.Join(t.TempDir(), "missing.json"), httpmock.NewErrorResponder(os.ErrDeadlineExceeded))
	err := c.Load()
	require.ErrorIs(t, err, crawl.ErrCatalogUnavailable)
}

func TestLoadRejectsMalformedResponse(t *testing.T) {
	t.Parallel()

	c := mockedCatalog(t, "", httpmock.NewStringResponder(200, `{"not": "a list"}`))
	require.ErrorIs(t, c.Load(), crawl.ErrCatalogUnavailable)

	c = mockedCatalog(t, "", httpmock.NewStringResponder(200, `[]`))
	require.ErrorIs(t, c.Load(), crawl.ErrCatalogUnavailable)
}
