package crawl

import (
	"strings"
)

// BrandConfig is one configured brand and its location selection. An
// AllLocations brand expands to every catalog entry in catalog order;
// otherwise Locations is honored in the configured order.
type BrandConfig struct {
	VehicleType  string
	BaseURL      string
	Name         string
	AllLocations bool
	Locations    []string
}

// LocationSource is the slice of the catalog the matrix builder needs.
type LocationSource interface {
	// LocationNames returns every valid location identifier in catalog order.
	LocationNames() []string
	// ResolveLocation maps a configured name to its canonical identifier.
	ResolveLocation(name string) (string, bool)
}

// TargetURL derives the fetch URL for a (brand, location) pair. It is a
// pure function of its inputs so an identical run produces identical URLs.
func TargetURL(baseURL, brand, location string) string {
	return strings.TrimRight(baseURL, "/") + "/" + Slugify(brand) + "/" + Slugify(location)
}

// BuildTargets expands brand configs against the catalog into the ordered,
// deduplicated target list for a run. Iteration order is deterministic:
// config order for brands, catalog order for "all", configured order for
// explicit lists. Locations the catalog cannot resolve are skipped and
// returned as warnings rather than aborting the run. Exact (brand,
// location) duplicates arising from overlapping configs collapse to the
// first occurrence.
func BuildTargets(brands []BrandConfig, locations LocationSource) ([]FetchTarget, []UnknownLocationWarning) {
	var (
		targets  []FetchTarget
		warnings []UnknownLocationWarning
		seen     = make(map[string]struct{})
	)

	for _, brand := range brands {
		names := brand.Locations
		if brand.AllLocations {
			names = locations.LocationNames()
		}
		for _, name := range names {
			resolved, ok := locations.ResolveLocation(name)
			if !ok {
				warnings = append(warnings, UnknownLocationWarning{Brand: brand.Name, Location: name})
				continue
			}
			target := FetchTarget{
				VehicleType: brand.VehicleType,
				Brand:       brand.Name,
				Location:    resolved,
				URL:         TargetURL(brand.BaseURL, brand.Name, resolved),
			}
			if _, dup := seen[target.Key()]; dup {
				continue
			}
			seen[target.Key()] = struct{}{}
			targets = append(targets, target)
		}
	}
	return targets, warnings
}
