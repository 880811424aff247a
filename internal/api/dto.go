package api

import (
	"time"

	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/ranking"
	"eve-arbitrage/internal/sde"
	"eve-arbitrage/internal/store"
)

// Percent fields in responses are 0-100; everything below the API works in fractions.
func percent(f float64) float64 { return f * 100 }

// RouteDTO is one route as served to clients.
type RouteDTO struct {
	TypeID            int32   `json:"type_id"`
	TypeName          string  `json:"type_name"`
	Category          string  `json:"category"`
	OriginID          int64   `json:"origin_id"`
	OriginName        string  `json:"origin_name"`
	OriginSystem      string  `json:"origin_system"`
	DestinationID     int64   `json:"destination_id"`
	DestinationName   string  `json:"destination_name"`
	DestinationSystem string  `json:"destination_system"`
	BuyPrice          float64 `json:"buy_price"`
	SellPrice         float64 `json:"sell_price"`
	VolumeAvailable   int64   `json:"volume_available"`
	MarketVolume      int64   `json:"market_volume"`
	CargoVolume       float64 `json:"cargo_volume"`

	GrossProfitPerUnit   float64 `json:"gross_profit_per_unit"`
	TransportCost        float64 `json:"transport_cost"`
	TransportCostPerUnit float64 `json:"transport_cost_per_unit"`
	NetProfitPerUnit     float64 `json:"net_profit_per_unit"`
	NetProfitPct         float64 `json:"net_profit_pct"`
	TotalNetProfit       float64 `json:"total_net_profit"`
	Profitable           bool    `json:"profitable"`

	Carrier           string  `json:"carrier"`
	Hops              int     `json:"hops"`
	TravelTimeMinutes float64 `json:"travel_time_minutes"`

	Risk           string  `json:"risk"`
	Confidence     float64 `json:"confidence"`
	Competitors    int     `json:"competitors"`
	OrderAgeHours  float64 `json:"order_age_hours"`
	DataAgeSeconds float64 `json:"data_age_seconds"`
}

func routeDTO(r *engine.RouteCandidate) RouteDTO {
	dataAge := r.OriginSnapshotAge
	if r.DestSnapshotAge > dataAge {
		dataAge = r.DestSnapshotAge
	}
	return RouteDTO{
		TypeID:               r.TypeID,
		TypeName:             r.TypeName,
		Category:             string(r.Category),
		OriginID:             r.OriginID,
		OriginName:           r.OriginName,
		OriginSystem:         r.OriginSystem,
		DestinationID:        r.DestinationID,
		DestinationName:      r.DestinationName,
		DestinationSystem:    r.DestinationSystem,
		BuyPrice:             r.BuyPrice,
		SellPrice:            r.SellPrice,
		VolumeAvailable:      r.VolumeAvailable,
		MarketVolume:         r.MarketVolume,
		CargoVolume:          r.CargoVolume,
		GrossProfitPerUnit:   r.GrossProfitPerUnit,
		TransportCost:        r.TransportCost,
		TransportCostPerUnit: r.TransportCostPerUnit,
		NetProfitPerUnit:     r.NetProfitPerUnit,
		NetProfitPct:         percent(r.NetProfitPct),
		TotalNetProfit:       r.TotalNetProfit,
		Profitable:           r.Profitable,
		Carrier:              r.Carrier,
		Hops:                 r.Hops,
		TravelTimeMinutes:    r.TravelTime.Minutes(),
		Risk:                 r.Risk.String(),
		Confidence:           r.Confidence,
		Competitors:          r.Competitors,
		OrderAgeHours:        r.OrderAge.Hours(),
		DataAgeSeconds:       dataAge.Seconds(),
	}
}

type locationScoreDTO struct {
	LocationID int64   `json:"location_id"`
	Name       string  `json:"name"`
	Routes     int     `json:"routes"`
	AvgNetPct  float64 `json:"avg_net_pct"`
}

type breakdownDTO struct {
	Category  string  `json:"category"`
	Label     string  `json:"label"`
	Count     int     `json:"count"`
	AvgNetPct float64 `json:"avg_net_pct"`
}

// SummaryDTO mirrors ranking.Summary with percent fields scaled.
type SummaryDTO struct {
	TotalRoutes      int                `json:"total_routes"`
	ProfitableRoutes int                `json:"profitable_routes"`
	AvgNetPct        float64            `json:"avg_net_pct"`
	TopLocations     []locationScoreDTO `json:"top_locations"`
	Categories       []string           `json:"categories"`
	Breakdown        []breakdownDTO     `json:"breakdown"`
}

func summaryDTO(s ranking.Summary) SummaryDTO {
	out := SummaryDTO{
		TotalRoutes:      s.TotalRoutes,
		ProfitableRoutes: s.ProfitableRoutes,
		AvgNetPct:        percent(s.AvgNetPct),
		TopLocations:     make([]locationScoreDTO, 0, len(s.TopLocations)),
		Categories:       make([]string, 0, len(s.Categories)),
		Breakdown:        make([]breakdownDTO, 0, len(s.Breakdown)),
	}
	for _, l := range s.TopLocations {
		out.TopLocations = append(out.TopLocations, locationScoreDTO{
			LocationID: l.LocationID,
			Name:       l.Name,
			Routes:     l.Routes,
			AvgNetPct:  percent(l.AvgNetPct),
		})
	}
	for _, c := range s.Categories {
		out.Categories = append(out.Categories, string(c))
	}
	for _, b := range s.Breakdown {
		out.Breakdown = append(out.Breakdown, breakdownDTO{
			Category:  string(b.Category),
			Label:     b.Category.Label(),
			Count:     b.Count,
			AvgNetPct: percent(b.AvgNetPct),
		})
	}
	return out
}

// RoutesResponse is the body of GET /api/routes.
type RoutesResponse struct {
	RunID       string                    `json:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	AgeSeconds  float64                   `json:"age_seconds"`
	Routes      []RouteDTO                `json:"routes"`
	Pagination  ranking.Pagination        `json:"pagination"`
	Summary     SummaryDTO                `json:"summary"`
	Locations   []engine.LocationActivity `json:"locations"`
}

// HeaderDTO is a retained batch in GET /api/history.
type HeaderDTO struct {
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	Routes     int       `json:"routes"`
	Profitable int       `json:"profitable"`
	TopNetPct  float64   `json:"top_net_pct"`
}

func headerDTO(h store.Header) HeaderDTO {
	return HeaderDTO{
		RunID:      h.RunID,
		CreatedAt:  h.CreatedAt,
		Routes:     h.Routes,
		Profitable: h.Profitable,
		TopNetPct:  percent(h.TopNetPct),
	}
}

// CategoryDTO is one entry of GET /api/categories.
type CategoryDTO struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Items  int    `json:"items"`
	Routes int    `json:"routes"`
}

func categoryDTOs(catalog *sde.Data, breakdown []ranking.CategoryBreakdown) []CategoryDTO {
	items := make(map[sde.Category]int)
	if catalog != nil {
		for _, it := range catalog.Items {
			items[it.Category]++
		}
	}
	routes := make(map[sde.Category]int, len(breakdown))
	for _, b := range breakdown {
		routes[b.Category] = b.Count
	}
	out := make([]CategoryDTO, 0, len(sde.Categories))
	for _, c := range sde.Categories {
		out = append(out, CategoryDTO{ID: string(c), Label: c.Label(), Items: items[c], Routes: routes[c]})
	}
	return out
}
