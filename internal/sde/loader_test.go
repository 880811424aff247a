package sde

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"mineral", CategoryMineral, true},
		{"MINERAL", CategoryMineral, true},
		{"Ice Product", CategoryIceProduct, true},
		{"ice-product", CategoryIceProduct, true},
		{" ship ", CategoryShip, true},
		{"rigs", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("ParseCategory(%q) = %q,%v, want %q,%v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
	assert.Equal(t, "Ice Product", CategoryIceProduct.Label())
}

func TestDefault_EmbeddedCatalog(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)

	assert.Len(t, d.Locations, 5)
	assert.Equal(t, []int64{60003760, 60004588, 60005686, 60008494, 60011866}, d.LocationIDs())

	jita := d.Locations[60003760]
	require.NotNil(t, jita)
	assert.Equal(t, "Jita", jita.SystemName)
	assert.Equal(t, int32(10000002), jita.RegionID)
	assert.Equal(t, "The Forge", jita.RegionName)

	trit := d.Items[34]
	require.NotNil(t, trit)
	assert.Equal(t, CategoryMineral, trit.Category)
	assert.InDelta(t, 0.01, trit.Volume, 1e-12)

	require.Len(t, d.Carriers, 5)
	assert.Equal(t, "Ark", d.Carriers[0].Name, "carriers are sorted by name")
	for _, c := range d.Carriers {
		assert.Greater(t, c.Capacity, 0.0)
		assert.Greater(t, c.TimePerHop, time.Duration(0))
	}

	// every hub is reachable from Jita
	assert.True(t, d.Universe.PathCacheReady())
	for _, id := range d.LocationIDs() {
		_, ok := d.Universe.ShortestPath(jita.SystemID, d.Locations[id].SystemID)
		assert.True(t, ok, "no path Jita -> %d", id)
	}
	p, ok := d.Universe.ShortestPath(30000142, 30002187)
	require.True(t, ok)
	assert.Equal(t, 3, p.Hops)
	assert.True(t, d.Universe.PathCacheReady(d.SecurityFloors()...))
}

func TestParse_Invalid(t *testing.T) {
	base := `
regions: [{id: 1, name: R}]
systems: [{id: 10, name: A, region_id: 1, security: 1.0}]
stations: [{id: 100, name: S, system_id: 10}]
items: [{type_id: 34, name: Tritanium, category: mineral, volume: 0.01}]
`
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "regions: [\n"},
		{"zero capacity", base + "carriers: [{name: X, capacity: 0, fuel_per_hop: 1, time_per_hop: 1m}]"},
		{"no carriers", base},
		{"unknown security class", base + "carriers: [{name: X, capacity: 10, security: [wormhole]}]"},
		{"low without high", base + "carriers: [{name: X, capacity: 10, security: [low]}]"},
		{"null without low", base + "carriers: [{name: X, capacity: 10, security: [high, null]}]"},
		{"tilde security class", base + "carriers: [{name: X, capacity: 10, security: [high, low, ~]}]"},
		{"empty security class", base + "carriers: [{name: X, capacity: 10, security: [high, \"\"]}]"},
		{"security not a list", base + "carriers: [{name: X, capacity: 10, security: high}]"},
		{"unknown category", `
regions: [{id: 1, name: R}]
systems: [{id: 10, name: A, region_id: 1}]
stations: [{id: 100, name: S, system_id: 10}]
items: [{type_id: 1, name: X, category: rigs, volume: 1}]
carriers: [{name: X, capacity: 10}]
`},
		{"station without system", `
regions: [{id: 1, name: R}]
stations: [{id: 100, name: S, system_id: 10}]
`},
		{"gate to unknown system", `
regions: [{id: 1, name: R}]
systems: [{id: 10, name: A, region_id: 1}]
gates: [{from: 10, to: 11}]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("Parse() error = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestLoad_FileAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
regions: [{id: 1, name: R}]
systems: [{id: 10, name: Alpha, region_id: 1, security: 1.0}]
stations: [{id: 100, name: Alpha Station, system_id: 10}]
items: [{type_id: 34, name: Tritanium, category: Mineral, volume: 0.01}]
carriers: [{name: Hauler, capacity: 1000, fuel_per_hop: 10, insurance_rate: 0.01, time_per_hop: 2m}]
`), 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CategoryMineral, d.Items[34].Category)
	assert.Equal(t, 2*time.Minute, d.Carriers[0].TimePerHop)

	assert.Equal(t, "Alpha", d.Locations[100].SystemName)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCarrier_MinSecurity(t *testing.T) {
	tests := []struct {
		security []string
		want     float64
	}{
		{nil, 0},
		{[]string{"high", "low", "null"}, 0},
		{[]string{"high", "low"}, math.SmallestNonzeroFloat64},
		{[]string{"high"}, 0.45},
	}
	for _, tt := range tests {
		c := Carrier{Name: "X", Capacity: 1, Security: tt.security}
		if got := c.MinSecurity(); got != tt.want {
			t.Errorf("MinSecurity(%v) = %v, want %v", tt.security, got, tt.want)
		}
	}
}

func TestParse_NullSecurityClass(t *testing.T) {
	d, err := Parse([]byte(`
regions: [{id: 1, name: R}]
systems: [{id: 10, name: A, region_id: 1, security: 1.0}]
stations: [{id: 100, name: S, system_id: 10}]
items: [{type_id: 34, name: Tritanium, category: mineral, volume: 0.01}]
carriers: [{name: X, capacity: 10, security: [high, low, null]}]
`))
	require.NoError(t, err)
	require.Len(t, d.Carriers, 1)
	assert.Equal(t, SecurityClasses{"high", "low", "null"}, d.Carriers[0].Security)
	assert.Equal(t, 0.0, d.Carriers[0].MinSecurity())
}

func TestSecurityFloors_Default(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, math.SmallestNonzeroFloat64, 0.45}, d.SecurityFloors())
}
