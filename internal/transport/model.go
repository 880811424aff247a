// Package transport prices hauling cargo between trade locations.
package transport

import (
	"sort"
	"time"

	"eve-arbitrage/internal/graph"
	"eve-arbitrage/internal/sde"
)

// Estimate is the cheapest feasible way to move one lot. Feasible is false
// when no path exists or the cargo exceeds every carrier's capacity.
type Estimate struct {
	Feasible      bool          `json:"feasible"`
	Carrier       string        `json:"carrier,omitempty"`
	TotalCost     float64       `json:"total_cost"`
	FuelCost      float64       `json:"fuel_cost"`
	InsuranceCost float64       `json:"insurance_cost"`
	Hops          int           `json:"hops"`
	TravelTime    time.Duration `json:"travel_time"`
}

// Model is a pure cost function over read-only location and carrier catalogs.
type Model struct {
	locations map[int64]*sde.Location
	universe  *graph.Universe
	carriers  []sde.Carrier
}

// NewModel builds a model from catalog data. The path table is initialised if needed.
func NewModel(data *sde.Data) *Model {
	floors := data.SecurityFloors()
	if !data.Universe.PathCacheReady(floors...) {
		data.Universe.InitPathCache(floors...)
	}
	carriers := make([]sde.Carrier, len(data.Carriers))
	copy(carriers, data.Carriers)
	sort.Slice(carriers, func(i, j int) bool { return carriers[i].Name < carriers[j].Name })
	return &Model{
		locations: data.Locations,
		universe:  data.Universe,
		carriers:  carriers,
	}
}

// Route returns the best unrestricted path between two locations.
func (m *Model) Route(origin, destination int64) (graph.Path, bool) {
	return m.route(origin, destination, 0)
}

func (m *Model) route(origin, destination int64, minSecurity float64) (graph.Path, bool) {
	o, ok := m.locations[origin]
	if !ok {
		return graph.Path{}, false
	}
	d, ok := m.locations[destination]
	if !ok {
		return graph.Path{}, false
	}
	return m.universe.ShortestPathMinSecurity(o.SystemID, d.SystemID, minSecurity)
}

// EstimateTransport picks the carrier with the lowest total cost for the cargo,
// breaking ties on travel time and then carrier name. Each carrier follows its
// own best path through the security classes it may enter.
//
// Per carrier: fuel = FuelPerHop * sum of hop fuel factors, insurance =
// hops * InsuranceRate * cargoValue. With unit fuel factors the total is
// hops * (FuelPerHop + InsuranceRate*cargoValue).
func (m *Model) EstimateTransport(origin, destination int64, cargoVolume, cargoValue float64) Estimate {
	if cargoVolume < 0 || cargoValue < 0 {
		return Estimate{}
	}
	if cargoVolume == 0 {
		return Estimate{Feasible: true}
	}
	shortest, ok := m.Route(origin, destination)
	if !ok {
		return Estimate{}
	}
	if shortest.Hops == 0 {
		return Estimate{Feasible: true}
	}

	var best Estimate
	for _, c := range m.carriers {
		if c.Capacity < cargoVolume {
			continue
		}
		path, ok := m.route(origin, destination, c.MinSecurity())
		if !ok {
			continue
		}
		fuel := c.FuelPerHop * path.FuelFactor
		insurance := float64(path.Hops) * c.InsuranceRate * cargoValue
		e := Estimate{
			Feasible:      true,
			Carrier:       c.Name,
			FuelCost:      fuel,
			InsuranceCost: insurance,
			TotalCost:     fuel + insurance,
			Hops:          path.Hops,
			TravelTime:    time.Duration(path.Hops) * c.TimePerHop,
		}
		if !best.Feasible || better(e, best) {
			best = e
		}
	}
	return best
}

func better(a, b Estimate) bool {
	if a.TotalCost != b.TotalCost {
		return a.TotalCost < b.TotalCost
	}
	if a.TravelTime != b.TravelTime {
		return a.TravelTime < b.TravelTime
	}
	return a.Carrier < b.Carrier
}
