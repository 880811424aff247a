// Package store persists published result batches.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eve-arbitrage/internal/config"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/market"
	"eve-arbitrage/internal/ranking"
)

var (
	ErrNilBatch      = errors.New("store: nil batch")
	ErrNoRunID       = errors.New("store: batch has no run id")
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// Summary is the batch-level summary: the ranking summary over the unfiltered
// set plus per-location market activity.
type Summary struct {
	ranking.Summary
	Locations []engine.LocationActivity `json:"locations"`
}

// Diagnostics explains how a run got its routes.
type Diagnostics struct {
	Aggregator market.Diagnostics `json:"aggregator"`
	Engine     engine.Stats       `json:"engine"`
}

// ResultBatch is one run's published output. Immutable once stored.
type ResultBatch struct {
	RunID       string                  `json:"run_id"`
	CreatedAt   time.Time               `json:"created_at"`
	Routes      []engine.RouteCandidate `json:"routes"`
	Summary     Summary                 `json:"summary"`
	Diagnostics Diagnostics             `json:"diagnostics"`
}

// Header describes a retained batch without its routes.
type Header struct {
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	Routes     int       `json:"routes"`
	Profitable int       `json:"profitable"`
	TopNetPct  float64   `json:"top_net_pct"`
}

func (b *ResultBatch) Header() Header {
	h := Header{RunID: b.RunID, CreatedAt: b.CreatedAt, Routes: len(b.Routes), Profitable: b.Summary.ProfitableRoutes}
	if len(b.Routes) > 0 {
		h.TopNetPct = b.Routes[0].NetProfitPct
	}
	return h
}

// Store is the read/write contract of the result store. PutBatch is atomic
// and idempotent per RunID: readers see the previous batch or the new one,
// never a partial write.
type Store interface {
	PutBatch(ctx context.Context, b *ResultBatch) error
	// GetLatestBatch returns the newest batch no older than maxAge, or nil.
	// maxAge <= 0 means any age.
	GetLatestBatch(ctx context.Context, maxAge time.Duration) (*ResultBatch, error)
	// History lists retained batches, newest first.
	History(ctx context.Context, limit int) ([]Header, error)
	Close() error
}

func validate(b *ResultBatch) error {
	if b == nil {
		return ErrNilBatch
	}
	if b.RunID == "" {
		return ErrNoRunID
	}
	return nil
}

func fresh(b *ResultBatch, maxAge time.Duration, now time.Time) bool {
	return b != nil && (maxAge <= 0 || now.Sub(b.CreatedAt) <= maxAge)
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(cfg.History), nil
	case "sqlite", "":
		s, err := OpenSQLite(cfg.Path, cfg.History)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		r, err := NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.History)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
}
