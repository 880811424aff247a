// Package engine turns a run's order-book snapshots into route candidates.
package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/market"
	"eve-arbitrage/internal/sde"
	"eve-arbitrage/internal/transport"
)

// Estimator prices a lot between two locations.
type Estimator interface {
	EstimateTransport(origin, destination int64, cargoVolume, cargoValue float64) transport.Estimate
}

// Engine computes candidates from a fully resolved snapshot set. It performs
// no I/O and holds only read-only catalogs, so Compute is deterministic.
type Engine struct {
	catalog   *sde.Data
	estimator Estimator
	params    Params
}

// New creates an engine.
func New(catalog *sde.Data, estimator Estimator, params Params) *Engine {
	return &Engine{catalog: catalog, estimator: estimator, params: params}
}

// Params returns the engine's parameters.
func (e *Engine) Params() Params { return e.params }

// sideBest is the top of one order ladder: price and the volume at exactly that price.
type sideBest struct {
	price  float64
	volume int64
	top    market.Order
	ok     bool
}

func bestOf(orders []market.Order) sideBest {
	if len(orders) == 0 {
		return sideBest{}
	}
	b := sideBest{price: orders[0].Price, top: orders[0], ok: true}
	for _, o := range orders {
		if o.Price != b.price {
			break
		}
		b.volume += o.Volume
	}
	return b
}

// Compute evaluates every ordered (origin, destination) pair per item. Output
// is ordered by type ID, origin ID, destination ID.
func (e *Engine) Compute(snapshots []*market.Snapshot, asOf time.Time) *Result {
	res := &Result{}
	byItem := make(map[int32]map[int64]*market.Snapshot)
	activity := make(map[int64]*LocationActivity)

	for _, s := range snapshots {
		if s == nil {
			continue
		}
		res.Stats.Snapshots++
		loc, okLoc := e.catalog.Locations[s.Pair.LocationID]
		_, okItem := e.catalog.Items[s.Pair.TypeID]
		if !okLoc || !okItem {
			res.Stats.UnknownSnapshots++
			continue
		}
		if restricted(s.Pair.LocationID, s.Pair.TypeID) {
			res.Stats.Restricted++
			continue
		}
		if byItem[s.Pair.TypeID] == nil {
			byItem[s.Pair.TypeID] = make(map[int64]*market.Snapshot)
		}
		byItem[s.Pair.TypeID][s.Pair.LocationID] = s

		a := activity[loc.ID]
		if a == nil {
			a = &LocationActivity{LocationID: loc.ID, Name: loc.Name}
			activity[loc.ID] = a
		}
		a.Snapshots++
		a.SellOrders += len(s.Sells)
		a.BuyOrders += len(s.Buys)
	}

	typeIDs := make([]int32, 0, len(byItem))
	for id := range byItem {
		typeIDs = append(typeIDs, id)
	}
	sort.Slice(typeIDs, func(i, j int) bool { return typeIDs[i] < typeIDs[j] })

	for _, typeID := range typeIDs {
		item := e.catalog.Items[typeID]
		books := byItem[typeID]
		locIDs := make([]int64, 0, len(books))
		for id := range books {
			locIDs = append(locIDs, id)
		}
		sort.Slice(locIDs, func(i, j int) bool { return locIDs[i] < locIDs[j] })

		for _, originID := range locIDs {
			origin := books[originID]
			sell := bestOf(origin.Sells)
			for _, destID := range locIDs {
				if destID == originID {
					continue
				}
				res.Stats.PairsEvaluated++
				buy := bestOf(books[destID].Buys)
				if !sell.ok || !buy.ok {
					res.Stats.MissingOrders++
					continue
				}
				c, reason := e.evaluate(item, origin, sell, books[destID], buy, asOf)
				switch reason {
				case "":
				case "non_positive_gross":
					res.Stats.NonPositiveGross++
					continue
				case "below_min_gross":
					res.Stats.BelowMinGross++
					continue
				case "lot_too_small":
					res.Stats.LotTooSmall++
					continue
				case "infeasible":
					res.Stats.Infeasible++
					continue
				}
				if !c.Profitable {
					res.Stats.Unprofitable++
					if !e.params.IncludeUnprofitable {
						continue
					}
				}
				res.Candidates = append(res.Candidates, c)
			}
		}
	}
	res.Stats.Candidates = len(res.Candidates)

	res.Locations = make([]LocationActivity, 0, len(activity))
	for _, a := range activity {
		a.Competition = CompetitionFor(a.SellOrders + a.BuyOrders)
		res.Locations = append(res.Locations, *a)
	}
	sort.Slice(res.Locations, func(i, j int) bool { return res.Locations[i].LocationID < res.Locations[j].LocationID })

	logger.Info("ENGINE", fmt.Sprintf("%d pairs evaluated, %d candidates (%d infeasible, %d unprofitable)",
		res.Stats.PairsEvaluated, res.Stats.Candidates, res.Stats.Infeasible, res.Stats.Unprofitable))
	return res
}

// evaluate builds the candidate for one pair, or names the reason it was skipped.
func (e *Engine) evaluate(item *sde.Item, origin *market.Snapshot, sell sideBest, dest *market.Snapshot, buy sideBest, asOf time.Time) (RouteCandidate, string) {
	gross := buy.price - sell.price
	if gross <= 0 {
		return RouteCandidate{}, "non_positive_gross"
	}
	if gross < e.params.MinGrossProfit {
		return RouteCandidate{}, "below_min_gross"
	}

	marketVol := sell.volume
	if buy.volume < marketVol {
		marketVol = buy.volume
	}
	units := marketVol
	if e.params.MaxLotSize > 0 {
		lotUnits := int64(math.Floor(e.params.MaxLotSize/item.Volume + 1e-9))
		if lotUnits < units {
			units = lotUnits
		}
	}
	if units <= 0 {
		return RouteCandidate{}, "lot_too_small"
	}

	cargoVolume := float64(units) * item.Volume
	cargoValue := float64(units) * sell.price
	est := e.estimator.EstimateTransport(origin.Pair.LocationID, dest.Pair.LocationID, cargoVolume, cargoValue)
	if !est.Feasible {
		return RouteCandidate{}, "infeasible"
	}

	costPerUnit := est.TotalCost / float64(units)
	net := gross - costPerUnit
	netPct := sanitizeFloat(net / sell.price)

	competitors := countCompetitors(origin.Sells, e.params.CompetitorBand)
	age := orderAge([]market.Order{sell.top, buy.top}, asOf)
	risk := classifyRisk(competitors, age, e.params)

	o := e.catalog.Locations[origin.Pair.LocationID]
	d := e.catalog.Locations[dest.Pair.LocationID]
	return RouteCandidate{
		TypeID:               item.TypeID,
		TypeName:             item.Name,
		Category:             item.Category,
		UnitVolume:           item.Volume,
		OriginID:             o.ID,
		OriginName:           o.Name,
		OriginSystem:         o.SystemName,
		DestinationID:        d.ID,
		DestinationName:      d.Name,
		DestinationSystem:    d.SystemName,
		BuyPrice:             sell.price,
		SellPrice:            buy.price,
		VolumeAvailable:      units,
		MarketVolume:         marketVol,
		CargoVolume:          cargoVolume,
		GrossProfitPerUnit:   gross,
		TransportCost:        est.TotalCost,
		TransportCostPerUnit: costPerUnit,
		NetProfitPerUnit:     net,
		NetProfitPct:         netPct,
		TotalNetProfit:       net * float64(units),
		Profitable:           net > 0,
		Carrier:              est.Carrier,
		Hops:                 est.Hops,
		TravelTime:           est.TravelTime,
		Risk:                 risk,
		Confidence:           confidence(units, netPct, risk, e.params),
		Competitors:          competitors,
		OrderAge:             age,
		OriginSnapshotAge:    origin.Age(asOf),
		DestSnapshotAge:      dest.Age(asOf),
	}, ""
}
