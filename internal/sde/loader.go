package sde

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"eve-arbitrage/internal/graph"
	"eve-arbitrage/internal/logger"

	"gopkg.in/yaml.v3"
)

//go:embed data/catalog.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when catalog data fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Data holds the static catalogs used by a run. It is read-only once loaded.
type Data struct {
	Regions   map[int32]*Region      // regionID -> region
	Systems   map[int32]*SolarSystem // systemID -> system
	Stations  map[int64]*Station     // stationID -> station
	Locations map[int64]*Location    // stationID -> joined trade location
	Items     map[int32]*Item        // typeID -> item
	Carriers  []Carrier              // sorted by name
	Universe  *graph.Universe
}

// Region represents an EVE region.
type Region struct {
	ID   int32  `yaml:"id"`
	Name string `yaml:"name"`
}

// SolarSystem represents an EVE solar system.
type SolarSystem struct {
	ID       int32   `yaml:"id"`
	Name     string  `yaml:"name"`
	RegionID int32   `yaml:"region_id"`
	Security float64 `yaml:"security"`
}

// Station represents an NPC station with a market.
type Station struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	SystemID int32  `yaml:"system_id"`
}

// Item is a tradeable type. Volume is m3 per unit.
type Item struct {
	TypeID   int32    `yaml:"type_id" json:"type_id"`
	Name     string   `yaml:"name" json:"name"`
	Category Category `yaml:"category" json:"category"`
	Group    string   `yaml:"group" json:"group"`
	Volume   float64  `yaml:"volume" json:"volume"`
}

// Location is a market station joined with its system and region.
type Location struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	SystemID   int32   `json:"system_id"`
	SystemName string  `json:"system_name"`
	RegionID   int32   `json:"region_id"`
	RegionName string  `json:"region_name"`
	Security   float64 `json:"security"`
}

// Carrier is a hauling profile. InsuranceRate is a fraction of cargo value charged per hop.
// Security lists the system classes the carrier may enter; empty allows all.
type Carrier struct {
	Name          string          `yaml:"name" json:"name"`
	Capacity      float64         `yaml:"capacity" json:"capacity"`
	FuelPerHop    float64         `yaml:"fuel_per_hop" json:"fuel_per_hop"`
	InsuranceRate float64         `yaml:"insurance_rate" json:"insurance_rate"`
	TimePerHop    time.Duration   `yaml:"time_per_hop" json:"time_per_hop"`
	Security      SecurityClasses `yaml:"security" json:"security,omitempty"`
}

// SecurityClasses is a carrier's list of allowed system classes.
type SecurityClasses []string

// UnmarshalYAML keeps an unquoted null entry as the null-sec class; yaml
// would otherwise decode it as a null value and drop it.
func (s *SecurityClasses) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: security must be a list", node.Line)
	}
	out := make(SecurityClasses, 0, len(node.Content))
	for _, n := range node.Content {
		if n.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: security class must be a scalar", n.Line)
		}
		switch {
		case n.Tag == "!!null" && n.Value == SecurityNull:
			out = append(out, SecurityNull)
		case n.Tag == "!!null" || n.Value == "":
			return fmt.Errorf("line %d: empty security class", n.Line)
		default:
			out = append(out, n.Value)
		}
	}
	*s = out
	return nil
}

// System security classes.
const (
	SecurityHigh = "high"
	SecurityLow  = "low"
	SecurityNull = "null"
)

// highSecFloor is the lowest true security that displays as 0.5; low security
// is anything above 0.
const highSecFloor = 0.45

func (c Carrier) allows(class string) bool {
	for _, s := range c.Security {
		if s == class {
			return true
		}
	}
	return false
}

// MinSecurity is the security floor of systems the carrier may path through,
// or 0 when it is unrestricted.
func (c Carrier) MinSecurity() float64 {
	switch {
	case len(c.Security) == 0 || c.allows(SecurityNull):
		return 0
	case c.allows(SecurityLow):
		return math.SmallestNonzeroFloat64
	default:
		return highSecFloor
	}
}

// validSecurity requires known classes that form a floor: low implies high,
// null implies low.
func (c Carrier) validSecurity() error {
	for _, s := range c.Security {
		if s != SecurityHigh && s != SecurityLow && s != SecurityNull {
			return fmt.Errorf("unknown security class %q", s)
		}
	}
	if len(c.Security) == 0 {
		return nil
	}
	if !c.allows(SecurityHigh) || (c.allows(SecurityNull) && !c.allows(SecurityLow)) {
		return fmt.Errorf("security classes %v must include every class above the lowest", c.Security)
	}
	return nil
}

type gate struct {
	From       int32   `yaml:"from"`
	To         int32   `yaml:"to"`
	FuelFactor float64 `yaml:"fuel_factor"`
}

type catalogFile struct {
	Regions  []Region      `yaml:"regions"`
	Systems  []SolarSystem `yaml:"systems"`
	Gates    []gate        `yaml:"gates"`
	Stations []Station     `yaml:"stations"`
	Items    []Item        `yaml:"items"`
	Carriers []Carrier     `yaml:"carriers"`
}

// Load reads a catalog file, or the embedded dataset when path is empty.
func Load(path string) (*Data, error) {
	raw := defaultCatalog
	source := "embedded"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		raw = b
		source = path
	}
	d, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	logger.Section("Catalog")
	logger.Stats("Source", source)
	logger.Stats("Locations", len(d.Locations))
	logger.Stats("Items", len(d.Items))
	logger.Stats("Carriers", len(d.Carriers))
	logger.Success("SDE", "Catalog loaded")
	return d, nil
}

// Parse decodes and validates catalog YAML and builds the path table.
func Parse(raw []byte) (*Data, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	d := &Data{
		Regions:   make(map[int32]*Region, len(f.Regions)),
		Systems:   make(map[int32]*SolarSystem, len(f.Systems)),
		Stations:  make(map[int64]*Station, len(f.Stations)),
		Locations: make(map[int64]*Location, len(f.Stations)),
		Items:     make(map[int32]*Item, len(f.Items)),
		Universe:  graph.NewUniverse(),
	}
	for i := range f.Regions {
		r := f.Regions[i]
		d.Regions[r.ID] = &r
	}
	for i := range f.Systems {
		s := f.Systems[i]
		if _, ok := d.Regions[s.RegionID]; !ok {
			return nil, fmt.Errorf("%w: system %d references unknown region %d", ErrInvalidCatalog, s.ID, s.RegionID)
		}
		d.Systems[s.ID] = &s
		d.Universe.SetRegion(s.ID, s.RegionID)
		d.Universe.SetSecurity(s.ID, s.Security)
	}
	for _, g := range f.Gates {
		if d.Systems[g.From] == nil || d.Systems[g.To] == nil {
			return nil, fmt.Errorf("%w: gate %d-%d references unknown system", ErrInvalidCatalog, g.From, g.To)
		}
		d.Universe.AddGate(g.From, g.To, g.FuelFactor)
	}
	for i := range f.Stations {
		st := f.Stations[i]
		sys := d.Systems[st.SystemID]
		if sys == nil {
			return nil, fmt.Errorf("%w: station %d references unknown system %d", ErrInvalidCatalog, st.ID, st.SystemID)
		}
		d.Stations[st.ID] = &st
		d.Locations[st.ID] = &Location{
			ID:         st.ID,
			Name:       st.Name,
			SystemID:   sys.ID,
			SystemName: sys.Name,
			RegionID:   sys.RegionID,
			RegionName: d.Regions[sys.RegionID].Name,
			Security:   sys.Security,
		}
	}
	for i := range f.Items {
		it := f.Items[i]
		cat, ok := ParseCategory(string(it.Category))
		if !ok {
			return nil, fmt.Errorf("%w: item %d has unknown category %q", ErrInvalidCatalog, it.TypeID, it.Category)
		}
		if it.Volume <= 0 {
			return nil, fmt.Errorf("%w: item %d has non-positive volume", ErrInvalidCatalog, it.TypeID)
		}
		it.Category = cat
		d.Items[it.TypeID] = &it
	}
	for _, c := range f.Carriers {
		if c.Capacity <= 0 {
			return nil, fmt.Errorf("%w: carrier %q has non-positive capacity", ErrInvalidCatalog, c.Name)
		}
		if c.FuelPerHop < 0 || c.InsuranceRate < 0 || c.TimePerHop < 0 {
			return nil, fmt.Errorf("%w: carrier %q has negative cost or time", ErrInvalidCatalog, c.Name)
		}
		if err := c.validSecurity(); err != nil {
			return nil, fmt.Errorf("%w: carrier %q: %v", ErrInvalidCatalog, c.Name, err)
		}
		d.Carriers = append(d.Carriers, c)
	}
	sort.Slice(d.Carriers, func(i, j int) bool { return d.Carriers[i].Name < d.Carriers[j].Name })

	if len(d.Locations) == 0 || len(d.Items) == 0 || len(d.Carriers) == 0 {
		return nil, fmt.Errorf("%w: catalog needs at least one location, item and carrier", ErrInvalidCatalog)
	}

	d.Universe.InitPathCache(d.SecurityFloors()...)
	return d, nil
}

// Default parses the embedded dataset.
func Default() (*Data, error) {
	return Parse(defaultCatalog)
}

// LocationIDs returns every location ID in ascending order.
func (d *Data) LocationIDs() []int64 {
	out := make([]int64, 0, len(d.Locations))
	for id := range d.Locations {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ItemIDs returns every item type ID in ascending order.
func (d *Data) ItemIDs() []int32 {
	out := make([]int32, 0, len(d.Items))
	for id := range d.Items {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SecurityFloors returns the distinct carrier security floors in ascending order.
func (d *Data) SecurityFloors() []float64 {
	seen := make(map[float64]bool, len(d.Carriers))
	var out []float64
	for _, c := range d.Carriers {
		if f := c.MinSecurity(); !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Float64s(out)
	return out
}
