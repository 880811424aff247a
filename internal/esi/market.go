package esi

import (
	"context"
	"fmt"
	"time"

	"eve-arbitrage/internal/market"
)

// MarketOrder mirrors the ESI market order response.
type MarketOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       int32   `json:"type_id"`
	LocationID   int64   `json:"location_id"`
	SystemID     int32   `json:"system_id"`
	Price        float64 `json:"price"`
	VolumeRemain int32   `json:"volume_remain"`
	IsBuyOrder   bool    `json:"is_buy_order"`
	Issued       string  `json:"issued"`
	Duration     int     `json:"duration"`
	RegionID     int32   `json:"-"` // set by us
}

var _ market.Source = (*Client)(nil)

// FetchRegionOrdersByType fetches all market orders for a type in a region.
// Results are cached per (region, type) with ETag revalidation.
func (c *Client) FetchRegionOrdersByType(ctx context.Context, regionID, typeID int32) ([]MarketOrder, time.Time, error) {
	return c.fetchRegionOrdersCached(ctx, regionID, typeID)
}

// FetchOrderBook implements market.Source: it fetches the region's orders for
// the type and keeps the ones placed at the requested station.
func (c *Client) FetchOrderBook(ctx context.Context, pair market.Pair) (*market.Snapshot, error) {
	regionID, ok := c.regions[pair.LocationID]
	if !ok {
		return nil, market.NewFetchError(market.KindNotFound, fmt.Errorf("%w %d", errUnknownLocation, pair.LocationID))
	}
	orders, fetchedAt, err := c.FetchRegionOrdersByType(ctx, regionID, pair.TypeID)
	if err != nil {
		return nil, err
	}

	var sells, buys []market.Order
	for _, o := range orders {
		if o.LocationID != pair.LocationID || o.TypeID != pair.TypeID {
			continue
		}
		if o.Price <= 0 || o.VolumeRemain <= 0 {
			continue
		}
		mo := market.Order{
			OrderID: o.OrderID,
			Price:   o.Price,
			Volume:  int64(o.VolumeRemain),
			Issued:  parseIssued(o.Issued),
		}
		if o.IsBuyOrder {
			buys = append(buys, mo)
		} else {
			sells = append(sells, mo)
		}
	}
	return market.NewSnapshot(pair, sells, buys, fetchedAt), nil
}

func parseIssued(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
