// Package catalog holds the static mapping of selectable locations and
// review sources to their provider identifiers.
//
// Menu numbering is 1-based and follows entry order, so the catalog must
// keep a deterministic order and unique names. Changing the catalog data
// never requires changes to engine logic.
package catalog

import "fmt"

// Entry maps a human-readable name to an opaque provider identifier. The
// identifier is used only when calling the analytics provider.
type Entry struct {
	Name       string
	ProviderID string
}

// Catalog enumerates the selectable locations and review sources for one
// organization.
type Catalog struct {
	OrganizationID string
	locations      []Entry
	sources        []Entry
	locationIDs    map[string]string
	sourceIDs      map[string]string
}

// New builds a catalog from ordered location and source entries. Duplicate
// names are rejected so menu numbering stays unambiguous.
func New(organizationID string, locations, sources []Entry) (*Catalog, error) {
	c := &Catalog{
		OrganizationID: organizationID,
		locations:      locations,
		sources:        sources,
		locationIDs:    make(map[string]string, len(locations)),
		sourceIDs:      make(map[string]string, len(sources)),
	}
	for _, e := range locations {
		if _, dup := c.locationIDs[e.Name]; dup {
			return nil, fmt.Errorf("duplicate location name in catalog: %q", e.Name)
		}
		c.locationIDs[e.Name] = e.ProviderID
	}
	for _, e := range sources {
		if _, dup := c.sourceIDs[e.Name]; dup {
			return nil, fmt.Errorf("duplicate source name in catalog: %q", e.Name)
		}
		c.sourceIDs[e.Name] = e.ProviderID
	}
	return c, nil
}

// LocationNames returns location names in menu order.
func (c *Catalog) LocationNames() []string {
	return names(c.locations)
}

// SourceNames returns source names in menu order.
func (c *Catalog) SourceNames() []string {
	return names(c.sources)
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// ResolveLocations maps location names to provider identifiers, skipping
// names the catalog does not know.
func (c *Catalog) ResolveLocations(names []string) []string {
	return resolve(c.locationIDs, names)
}

// ResolveSources maps source names to provider identifiers, skipping names
// the catalog does not know.
func (c *Catalog) ResolveSources(names []string) []string {
	return resolve(c.sourceIDs, names)
}

func resolve(ids map[string]string, names []string) []string {
	var out []string
	for _, n := range names {
		if id, ok := ids[n]; ok && id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Default returns the Le Pain Quotidien Benelux catalog.
//
// The source list historically contained a duplicated key; it is fixed here
// to four uniquely named sources.
func Default() *Catalog {
	c, err := New("lpq_benelux",
		[]Entry{
			{Name: "Le Pain Quotidien Nieuw Loopveld 2 & 4 Amstelveen", ProviderID: "lpq_amstelveen_1"},
			{Name: "Le Pain Quotidien Beethovenstraat 56 hs Amsterdam", ProviderID: "lpq_amsterdam_1"},
			{Name: "Le Pain Quotidien Van Leijenberghlaan 130 Amsterdam", ProviderID: "lpq_amsterdam_2"},
			{Name: "Le Pain Quotidien Johannes Verhulststraat 104 Amsterdam", ProviderID: "lpq_amsterdam_3"},
			{Name: "Le Pain Quotidien Spuistraat 266 hs Amsterdam", ProviderID: "lpq_amsterdam_4"},
			{Name: "Le Pain Quotidien Dumortierlaan 75 Knokke", ProviderID: "lpq_knokke_1"},
			{Name: "Le Pain Quotidien Leopoldlaan Zaventem", ProviderID: "lpq_zaventem_1"},
			{Name: "Le Pain Quotidien Chaussée de Boondael 479 Brussels", ProviderID: "lpq_brussels_1"},
		},
		[]Entry{
			{Name: "Google Reviews", ProviderID: "google"},
			{Name: "TripAdvisor", ProviderID: "tripadvisor"},
			{Name: "Facebook", ProviderID: "facebook"},
			{Name: "Yelp", ProviderID: "yelp"},
		},
	)
	if err != nil {
		// The built-in catalog is validated by tests; a duplicate here is a
		// programming error.
		panic(err)
	}
	return c
}
