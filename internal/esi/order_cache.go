package esi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"eve-arbitrage/internal/logger"

	"golang.org/x/sync/singleflight"
)

// orderCacheKey identifies a cached set of region orders for one type.
type orderCacheKey struct {
	RegionID int32
	TypeID   int32
}

// orderCacheEntry holds cached orders together with HTTP caching metadata.
type orderCacheEntry struct {
	orders    []MarketOrder
	etag      string    // ETag from ESI response (page 1)
	expires   time.Time // parsed Expires header
	fetchedAt time.Time // when the body was last downloaded or revalidated
}

// OrderCache is a thread-safe in-memory cache for region market orders.
// It uses ETag/Expires headers from ESI to avoid re-downloading unchanged data.
// A singleflight.Group prevents duplicate in-flight fetches for the same key.
type OrderCache struct {
	mu      sync.RWMutex
	entries map[orderCacheKey]*orderCacheEntry
	group   singleflight.Group
}

// NewOrderCache creates an empty order cache.
func NewOrderCache() *OrderCache {
	return &OrderCache{
		entries: make(map[orderCacheKey]*orderCacheEntry),
	}
}

// Get returns cached orders if they exist and have not expired at now.
// Returns (orders, fetchedAt, etag, hit). An expired entry still yields its etag.
func (oc *OrderCache) Get(regionID, typeID int32, now time.Time) ([]MarketOrder, time.Time, string, bool) {
	oc.mu.RLock()
	defer oc.mu.RUnlock()

	e, ok := oc.entries[orderCacheKey{regionID, typeID}]
	if !ok {
		return nil, time.Time{}, "", false
	}
	if now.After(e.expires) {
		return nil, time.Time{}, e.etag, false
	}
	return e.orders, e.fetchedAt, e.etag, true
}

// Put stores orders in the cache with the given etag and expiry.
func (oc *OrderCache) Put(regionID, typeID int32, orders []MarketOrder, etag string, expires, fetchedAt time.Time) {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	oc.entries[orderCacheKey{regionID, typeID}] = &orderCacheEntry{
		orders:    orders,
		etag:      etag,
		expires:   expires,
		fetchedAt: fetchedAt,
	}
}

// Touch extends an existing entry after a 304 Not Modified and returns its orders.
func (oc *OrderCache) Touch(regionID, typeID int32, expires, fetchedAt time.Time) ([]MarketOrder, bool) {
	oc.mu.Lock()
	defer oc.mu.Unlock()

	e, ok := oc.entries[orderCacheKey{regionID, typeID}]
	if !ok {
		return nil, false
	}
	e.expires = expires
	e.fetchedAt = fetchedAt
	return e.orders, true
}

// Len returns the number of cached entries.
func (oc *OrderCache) Len() int {
	oc.mu.RLock()
	defer oc.mu.RUnlock()
	return len(oc.entries)
}

type cachedOrders struct {
	orders    []MarketOrder
	fetchedAt time.Time
}

// fetchRegionOrdersCached fetches region orders with full caching support:
//  1. If orders are in cache and not expired → instant return
//  2. If orders expired but we have an ETag → conditional request (If-None-Match)
//     - 304: touch expiry, return cached data (no body transfer)
//     - 200: full re-fetch, update cache
//  3. Cache miss → full fetch, populate cache
//
// Uses singleflight to coalesce concurrent requests for the same region+type.
func (c *Client) fetchRegionOrdersCached(ctx context.Context, regionID, typeID int32) ([]MarketOrder, time.Time, error) {
	sfKey := fmt.Sprintf("%d:%d", regionID, typeID)

	ch := c.orderCache.group.DoChan(sfKey, func() (interface{}, error) {
		return c.fetchRegionOrdersWithCache(ctx, regionID, typeID)
	})
	select {
	case <-ctx.Done():
		return nil, time.Time{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, time.Time{}, r.Err
		}
		co := r.Val.(cachedOrders)
		return co.orders, co.fetchedAt, nil
	}
}

// fetchRegionOrdersWithCache is the actual implementation behind singleflight.
func (c *Client) fetchRegionOrdersWithCache(ctx context.Context, regionID, typeID int32) (cachedOrders, error) {
	now := c.now()
	orders, fetchedAt, etag, hit := c.orderCache.Get(regionID, typeID, now)
	if hit {
		logger.Debug("ESI", fmt.Sprintf("OrderCache HIT region=%d type=%d (%d orders)", regionID, typeID, len(orders)))
		return cachedOrders{orders, fetchedAt}, nil
	}

	url := fmt.Sprintf("%s/markets/%d/orders/?datasource=tranquility&order_type=all&type_id=%d",
		c.baseURL, regionID, typeID)

	if etag != "" {
		notModified, expires, err := c.conditionalCheck(ctx, url+"&page=1", etag)
		if err == nil && notModified {
			if cached, ok := c.orderCache.Touch(regionID, typeID, expires, now); ok {
				logger.Debug("ESI", fmt.Sprintf("OrderCache 304 region=%d type=%d (ETag match)", regionID, typeID))
				return cachedOrders{cached, now}, nil
			}
		}
		// ETag miss or error, fall through to a full fetch
	}

	all, respEtag, respExpires, err := getPaginated[MarketOrder](ctx, c, url)
	if err != nil {
		return cachedOrders{}, err
	}
	for i := range all {
		all[i].RegionID = regionID
	}
	c.orderCache.Put(regionID, typeID, all, respEtag, respExpires, now)
	logger.Debug("ESI", fmt.Sprintf("OrderCache MISS region=%d type=%d (%d orders, expires=%s)",
		regionID, typeID, len(all), respExpires.Format("15:04:05")))
	return cachedOrders{all, now}, nil
}

// conditionalCheck sends a GET with If-None-Match.
// Returns (notModified, newExpires, error).
func (c *Client) conditionalCheck(ctx context.Context, pageURL, etag string) (bool, time.Time, error) {
	req, err := c.newRequest(ctx, pageURL)
	if err != nil {
		return false, time.Time{}, err
	}
	req.Header.Set("If-None-Match", etag)

	resp, err := c.do(req)
	if err != nil {
		return false, time.Time{}, err
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusNotModified, parseExpires(resp, c.now()), nil
}
