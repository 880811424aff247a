package engine

import (
	"fmt"
	"time"

	"eve-arbitrage/internal/config"
	"eve-arbitrage/internal/sde"
)

// RouteCandidate is one buy-here, sell-there opportunity. Percentages are
// fractions (0.4 means 40%). Candidates are values and are never mutated.
type RouteCandidate struct {
	TypeID     int32        `json:"type_id"`
	TypeName   string       `json:"type_name"`
	Category   sde.Category `json:"category"`
	UnitVolume float64      `json:"unit_volume"`

	OriginID          int64  `json:"origin_id"`
	OriginName        string `json:"origin_name"`
	OriginSystem      string `json:"origin_system"`
	DestinationID     int64  `json:"destination_id"`
	DestinationName   string `json:"destination_name"`
	DestinationSystem string `json:"destination_system"`

	BuyPrice  float64 `json:"buy_price"`  // best sell order at origin
	SellPrice float64 `json:"sell_price"` // best buy order at destination

	VolumeAvailable int64   `json:"volume_available"` // units moved in one lot
	MarketVolume    int64   `json:"market_volume"`    // uncapped min of both sides
	CargoVolume     float64 `json:"cargo_volume"`     // m3

	GrossProfitPerUnit   float64 `json:"gross_profit_per_unit"`
	TransportCost        float64 `json:"transport_cost"`
	TransportCostPerUnit float64 `json:"transport_cost_per_unit"`
	NetProfitPerUnit     float64 `json:"net_profit_per_unit"`
	NetProfitPct         float64 `json:"net_profit_pct"`
	TotalNetProfit       float64 `json:"total_net_profit"`
	Profitable           bool    `json:"profitable"`

	Carrier    string        `json:"carrier"`
	Hops       int           `json:"hops"`
	TravelTime time.Duration `json:"travel_time"`

	Risk        Risk          `json:"risk"`
	Confidence  float64       `json:"confidence"`
	Competitors int           `json:"competitors"`
	OrderAge    time.Duration `json:"order_age"`

	OriginSnapshotAge time.Duration `json:"origin_snapshot_age"`
	DestSnapshotAge   time.Duration `json:"dest_snapshot_age"`
}

// Risk is an ordinal risk class.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

func (r Risk) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Risk) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*r = RiskLow
	case "medium":
		*r = RiskMedium
	case "high":
		*r = RiskHigh
	default:
		return fmt.Errorf("unknown risk %q", b)
	}
	return nil
}

// Competition describes how busy a location's market was in a run.
type Competition string

const (
	CompetitionVeryLow  Competition = "very_low"
	CompetitionLow      Competition = "low"
	CompetitionMedium   Competition = "medium"
	CompetitionHigh     Competition = "high"
	CompetitionVeryHigh Competition = "very_high"
)

// CompetitionFor maps an observed order count to a level.
func CompetitionFor(orders int) Competition {
	switch {
	case orders >= 200:
		return CompetitionVeryHigh
	case orders >= 100:
		return CompetitionHigh
	case orders >= 30:
		return CompetitionMedium
	case orders >= 10:
		return CompetitionLow
	}
	return CompetitionVeryLow
}

// LocationActivity is the per-run market profile of one location.
type LocationActivity struct {
	LocationID  int64       `json:"location_id"`
	Name        string      `json:"name"`
	Snapshots   int         `json:"snapshots"`
	SellOrders  int         `json:"sell_orders"`
	BuyOrders   int         `json:"buy_orders"`
	Competition Competition `json:"competition"`
}

// Params tunes Compute.
type Params struct {
	MaxLotSize          float64 // m3 per lot; <= 0 means uncapped
	MinGrossProfit      float64
	IncludeUnprofitable bool
	CompetitorBand      float64 // fraction above the best sell price
	StaleOrderAge       time.Duration
	VeryStaleOrderAge   time.Duration
	VolumeSaturation    float64
	ProfitSaturation    float64
}

// DefaultParams mirrors config.Default().Engine.
func DefaultParams() Params {
	return ParamsFromConfig(config.Default().Engine)
}

// ParamsFromConfig converts the engine config section.
func ParamsFromConfig(c config.EngineConfig) Params {
	return Params{
		MaxLotSize:          c.MaxLotSize,
		MinGrossProfit:      c.MinGrossProfit,
		IncludeUnprofitable: c.IncludeUnprofitable,
		CompetitorBand:      c.CompetitorBand,
		StaleOrderAge:       c.StaleOrderAge,
		VeryStaleOrderAge:   c.VeryStaleOrderAge,
		VolumeSaturation:    c.VolumeSaturation,
		ProfitSaturation:    c.ProfitSaturation,
	}
}

// Stats counts why pairs did or did not become candidates.
type Stats struct {
	Snapshots        int `json:"snapshots"`
	UnknownSnapshots int `json:"unknown_snapshots"`
	Restricted       int `json:"restricted"`
	PairsEvaluated   int `json:"pairs_evaluated"`
	MissingOrders    int `json:"missing_orders"`
	NonPositiveGross int `json:"non_positive_gross"`
	BelowMinGross    int `json:"below_min_gross"`
	LotTooSmall      int `json:"lot_too_small"`
	Infeasible       int `json:"infeasible"`
	Unprofitable     int `json:"unprofitable"`
	Candidates       int `json:"candidates"`
}

// Result is the output of one Compute call.
type Result struct {
	Candidates []RouteCandidate   `json:"candidates"`
	Stats      Stats              `json:"stats"`
	Locations  []LocationActivity `json:"locations"`
}
