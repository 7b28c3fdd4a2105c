package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLocations struct {
	names map[string]string
	order []string
}

func newFakeLocations(names ...string) *fakeLocations {
	f := &fakeLocations{names: make(map[string]string), order: names}
	for _, n := range names {
		f.names[NormalizeName(n)] = n
	}
	return f
}

func (f *fakeLocations) LocationNames() []string { return f.order }

func (f *fakeLocations) ResolveLocation(name string) (string, bool) {
	canonical, ok := f.names[NormalizeName(name)]
	return canonical, ok
}

func TestTargetURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://www.example.com/bmw-dealers/navi-mumbai",
		TargetURL("https://www.example.com/bmw-dealers/", "BMW", "Navi Mumbai"),
	)
	require.Equal(t,
		"https://www.example.com/dealers/tata/pune",
		TargetURL("https://www.example.com/dealers", "Tata", "Pune"),
	)
}

func TestBuildTargetsExplicitList(t *testing.T) {
	t.Parallel()

	catalog := newFakeLocations("Hyderabad", "Chennai", "Pune")
	brands := []BrandConfig{
		{VehicleType: "cars", BaseURL: "https://example.com/d", Name: "bmw", Locations: []string{"Chennai", "Hyderabad"}},
	}

	targets, warnings := BuildTargets(brands, catalog)
	require.Empty(t, warnings)
	require.Len(t, targets, 2)
	require.Equal(t, "Chennai", targets[0].Location)
	require.Equal(t, "Hyderabad", targets[1].Location)
	require.Equal(t, "https://example.com/d/bmw/chennai", targets[0].URL)
}

func TestBuildTargetsAllLocationsFollowsCatalogOrder(t *testing.T) {
	t.Parallel()

	catalog := newFakeLocations("Hyderabad", "Chennai", "Pune")
	brands := []BrandConfig{
		{VehicleType: "cars", BaseURL: "https://example.com/d", Name: "kia", AllLocations: true},
	}

	targets, warnings := BuildTargets(brands, catalog)
	require.Empty(t, warnings)
	require.Len(t, targets, 3)
	for i, want := range []string{"Hyderabad", "Chennai", "Pune"} {
		require.Equal(t, want, targets[i].Location)
	}
}

func TestBuildTargetsUnknownLocationBecomesWarning(t *testing.T) {
	t.Parallel()

	catalog := newFakeLocations("Pune")
	brands := []BrandConfig{
		{VehicleType: "cars", BaseURL: "https://example.com/d", Name: "tata", Locations: []string{"Atlantis", "Pune"}},
	}

	targets, warnings := BuildTargets(brands, catalog)
	require.Len(t, targets, 1)
	require.Equal(t, "Pune", targets[0].Location)
	require.Len(t, warnings, 1)
	require.Equal(t, "Atlantis", warnings[0].Location)
	require.ErrorIs(t, warnings[0], ErrUnknownLocation)
}

func TestBuildTargetsCollapsesDuplicatePairs(t *testing.T) {
	t.Parallel()

	catalog := newFakeLocations("Pune", "Nagpur")
	brands := []BrandConfig{
		{VehicleType: "cars", BaseURL: "https://example.com/d", Name: "tata", Locations: []string{"Pune", "pune", "Nagpur"}},
	}

	targets, _ := BuildTargets(brands, catalog)
	require.Len(t, targets, 2)
}

func TestBuildTargetsKeepsBrandAcrossVehicleTypes(t *testing.T) {
	t.Parallel()

	catalog := newFakeLocations("Pune")
	brands := []BrandConfig{
		{VehicleType: "cars", BaseURL: "https://example.com/dealers", Name: "honda", Locations: []string{"Pune"}},
		{VehicleType: "bikes", BaseURL: "https://example.com/bikes/dealers", Name: "honda", Locations: []string{"Pune"}},
	}

	targets, warnings := BuildTargets(brands, catalog)
	require.Empty(t, warnings)
	require.Len(t, targets, 2, "same brand under two vehicle types is two targets")
	require.Equal(t, "https://example.com/dealers/honda/pune", targets[0].URL)
	require.Equal(t, "https://example.com/bikes/dealers/honda/pune", targets[1].URL)
	require.NotEqual(t, targets[0].Key(), targets[1].Key())
}

func TestBuildTargetsIsDeterministic(t *testing.T) {
	t.Parallel()

	catalog := newFakeLocations("Hyderabad", "Chennai", "Pune")
	brands := []BrandConfig{
		{VehicleType: "cars", BaseURL: "https://example.com/d", Name: "bmw", AllLocations: true},
		{VehicleType: "cars", BaseURL: "https://example.com/d", Name: "tata", Locations: []string{"Pune", "Chennai"}},
	}

	first, _ := BuildTargets(brands, catalog)
	second, _ := BuildTargets(brands, catalog)
	require.Equal(t, first, second)
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "navi mumbai", NormalizeName("  Navi-Mumbai "))
	require.Equal(t, "kun exclusive", NormalizeName("KUN   Exclusive"))
	require.Equal(t, "a b c", NormalizeName("a_b.c"))
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "navi-mumbai", Slugify("Navi Mumbai"))
	require.Equal(t, "mercedes-benz", Slugify("Mercedes-Benz"))
}
