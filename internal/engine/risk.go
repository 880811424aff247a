package engine

import (
	"math"
	"time"

	"eve-arbitrage/internal/market"
)

// countCompetitors counts sell orders other than the best one priced within
// band of the best price. sells must be sorted ascending.
func countCompetitors(sells []market.Order, band float64) int {
	if len(sells) < 2 {
		return 0
	}
	limit := sells[0].Price * (1 + band)
	n := 0
	for _, o := range sells[1:] {
		if o.Price > limit {
			break
		}
		n++
	}
	return n
}

// orderAge is the age of the older of the two best orders. Orders without an
// issue time contribute nothing.
func orderAge(best []market.Order, asOf time.Time) time.Duration {
	var oldest time.Duration
	for _, o := range best {
		if o.Issued.IsZero() {
			continue
		}
		if age := asOf.Sub(o.Issued); age > oldest {
			oldest = age
		}
	}
	return oldest
}

// classifyRisk scores competition (0-1 orders: 0, 2-4: 1, 5+: 2) plus
// staleness (fresh: 0, stale: 1, very stale: 2). Total <= 1 is low, 2 medium, 3+ high.
func classifyRisk(competitors int, age time.Duration, p Params) Risk {
	points := 0
	switch {
	case competitors >= 5:
		points += 2
	case competitors >= 2:
		points++
	}
	switch {
	case p.VeryStaleOrderAge > 0 && age >= p.VeryStaleOrderAge:
		points += 2
	case p.StaleOrderAge > 0 && age >= p.StaleOrderAge:
		points++
	}
	switch {
	case points <= 1:
		return RiskLow
	case points == 2:
		return RiskMedium
	}
	return RiskHigh
}

// confidence combines saturating volume and profit terms with inverse risk.
// It is non-decreasing in volume and net percent and non-increasing in risk.
func confidence(volume int64, netPct float64, risk Risk, p Params) float64 {
	vs := p.VolumeSaturation
	if vs <= 0 {
		vs = 100
	}
	ps := p.ProfitSaturation
	if ps <= 0 {
		ps = 0.2
	}
	v := float64(volume)
	volTerm := v / (v + vs)
	profitTerm := 0.0
	if netPct > 0 {
		profitTerm = netPct / (netPct + ps)
	}
	riskTerm := 0.0
	switch risk {
	case RiskLow:
		riskTerm = 1
	case RiskMedium:
		riskTerm = 0.5
	}
	c := 0.4*volTerm + 0.4*profitTerm + 0.2*riskTerm
	return math.Max(0, math.Min(1, sanitizeFloat(c)))
}

func sanitizeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
