package ranking

import (
	"sort"

	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/sde"
)

// LocationScore is a location's mean net percent over routes touching it.
type LocationScore struct {
	LocationID int64   `json:"location_id"`
	Name       string  `json:"name"`
	Routes     int     `json:"routes"`
	AvgNetPct  float64 `json:"avg_net_pct"`
}

// CategoryBreakdown summarises one category.
type CategoryBreakdown struct {
	Category  sde.Category `json:"category"`
	Count     int          `json:"count"`
	AvgNetPct float64      `json:"avg_net_pct"`
}

// Summary aggregates a candidate set.
type Summary struct {
	TotalRoutes      int                 `json:"total_routes"`
	ProfitableRoutes int                 `json:"profitable_routes"`
	AvgNetPct        float64             `json:"avg_net_pct"`
	TopLocations     []LocationScore     `json:"top_locations"`
	Categories       []sde.Category      `json:"categories"`
	Breakdown        []CategoryBreakdown `json:"breakdown"`
}

type acc struct {
	name string
	n    int
	sum  float64
}

// Summarize computes the summary of candidates. Empty input yields zero values
// and empty slices.
func Summarize(candidates []engine.RouteCandidate) Summary {
	s := Summary{
		TopLocations: []LocationScore{},
		Categories:   []sde.Category{},
		Breakdown:    []CategoryBreakdown{},
	}
	if len(candidates) == 0 {
		return s
	}

	locs := make(map[int64]*acc)
	cats := make(map[sde.Category]*acc)
	add := func(m map[int64]*acc, id int64, name string, pct float64) {
		a := m[id]
		if a == nil {
			a = &acc{name: name}
			m[id] = a
		}
		a.n++
		a.sum += pct
	}

	var sum float64
	for i := range candidates {
		c := &candidates[i]
		s.TotalRoutes++
		if c.NetProfitPct > 0 {
			s.ProfitableRoutes++
		}
		sum += c.NetProfitPct
		add(locs, c.OriginID, c.OriginName, c.NetProfitPct)
		add(locs, c.DestinationID, c.DestinationName, c.NetProfitPct)

		a := cats[c.Category]
		if a == nil {
			a = &acc{}
			cats[c.Category] = a
		}
		a.n++
		a.sum += c.NetProfitPct
	}
	s.AvgNetPct = sum / float64(s.TotalRoutes)

	for id, a := range locs {
		s.TopLocations = append(s.TopLocations, LocationScore{
			LocationID: id,
			Name:       a.name,
			Routes:     a.n,
			AvgNetPct:  a.sum / float64(a.n),
		})
	}
	sort.Slice(s.TopLocations, func(i, j int) bool {
		a, b := s.TopLocations[i], s.TopLocations[j]
		if a.AvgNetPct != b.AvgNetPct {
			return a.AvgNetPct > b.AvgNetPct
		}
		return a.LocationID < b.LocationID
	})

	for c, a := range cats {
		s.Categories = append(s.Categories, c)
		s.Breakdown = append(s.Breakdown, CategoryBreakdown{Category: c, Count: a.n, AvgNetPct: a.sum / float64(a.n)})
	}
	sort.Slice(s.Categories, func(i, j int) bool { return s.Categories[i] < s.Categories[j] })
	sort.Slice(s.Breakdown, func(i, j int) bool { return s.Breakdown[i].Category < s.Breakdown[j].Category })
	return s
}
