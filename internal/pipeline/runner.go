// Package pipeline runs aggregate, compute, rank and publish as one unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/market"
	"eve-arbitrage/internal/ranking"
	"eve-arbitrage/internal/sde"
	"eve-arbitrage/internal/store"

	"github.com/google/uuid"
)

var (
	ErrCatalogMissing   = errors.New("catalog missing")
	ErrNoPairs          = errors.New("no (location, item) pairs to fetch")
	ErrAllFetchesFailed = errors.New("every order book fetch failed")
	ErrRunInProgress    = errors.New("a run is already in progress")
)

// Run results as reported in status and metrics.
const (
	ResultPublished = "published"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Aggregator fetches snapshots for a set of pairs.
type Aggregator interface {
	Aggregate(ctx context.Context, pairs []market.Pair) (*market.Result, error)
}

// Computer turns snapshots into candidates.
type Computer interface {
	Compute(snapshots []*market.Snapshot, asOf time.Time) *engine.Result
}

// RunRecorder receives one observation per finished run.
type RunRecorder interface {
	ObserveRun(result string, d time.Duration, routes int, at time.Time)
}

// Options configures a Runner. Empty Locations or Items mean every one in the catalog.
type Options struct {
	Locations []int64
	Items     []int32
	Clock     clock.Clock
	Metrics   RunRecorder
	NewRunID  func() string
}

// Status describes the latest finished run.
type Status struct {
	RunID       string             `json:"run_id,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Result      string             `json:"result"`
	Error       string             `json:"error,omitempty"`
	Routes      int                `json:"routes"`
	Diagnostics *store.Diagnostics `json:"diagnostics,omitempty"`
}

// Runner executes runs. At most one run is active at a time.
type Runner struct {
	catalog  *sde.Data
	agg      Aggregator
	computer Computer
	store    store.Store
	opts     Options

	running atomic.Bool
	runs    atomic.Int64

	mu   sync.RWMutex
	last *Status
}

// NewRunner wires a runner.
func NewRunner(catalog *sde.Data, agg Aggregator, computer Computer, st store.Store, opts Options) *Runner {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Runner{catalog: catalog, agg: agg, computer: computer, store: st, opts: opts}
}

// Pairs returns the watch set: configured locations and items that exist in
// the catalog, crossed, ordered by location then type.
func (r *Runner) Pairs() ([]market.Pair, error) {
	if r.catalog == nil || len(r.catalog.Locations) == 0 || len(r.catalog.Items) == 0 {
		return nil, ErrCatalogMissing
	}
	locations := r.opts.Locations
	if len(locations) == 0 {
		locations = r.catalog.LocationIDs()
	}
	items := r.opts.Items
	if len(items) == 0 {
		items = r.catalog.ItemIDs()
	}

	seen := make(map[market.Pair]bool)
	var pairs []market.Pair
	for _, loc := range locations {
		if _, ok := r.catalog.Locations[loc]; !ok {
			logger.Warn("RUN", fmt.Sprintf("Unknown location %d in watch set, skipped", loc))
			continue
		}
		for _, typeID := range items {
			if _, ok := r.catalog.Items[typeID]; !ok {
				continue
			}
			p := market.Pair{LocationID: loc, TypeID: typeID}
			if !seen[p] {
				seen[p] = true
				pairs = append(pairs, p)
			}
		}
	}
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
	return pairs, nil
}

// Running reports whether a run is active.
func (r *Runner) Running() bool { return r.running.Load() }

// LastRun returns the latest finished run, or nil before the first one.
func (r *Runner) LastRun() *Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}

// Run executes one run. Nothing is published when it fails or is cancelled;
// readers keep seeing the previous batch.
func (r *Runner) Run(ctx context.Context) (*store.ResultBatch, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	n := r.runs.Add(1)
	started := r.opts.Clock.Now()
	logger.Section(fmt.Sprintf("Run #%d", n))

	batch, diag, err := r.execute(ctx)
	finished := r.opts.Clock.Now()

	st := &Status{StartedAt: started, FinishedAt: finished, Diagnostics: diag}
	switch {
	case err == nil:
		st.Result = ResultPublished
		st.RunID = batch.RunID
		st.Routes = len(batch.Routes)
		logger.Success("RUN", fmt.Sprintf("Published %s: %d routes in %v", batch.RunID, len(batch.Routes), finished.Sub(started).Round(time.Millisecond)))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		st.Result = ResultCancelled
		st.Error = err.Error()
		logger.Warn("RUN", fmt.Sprintf("Run cancelled: %v", err))
	default:
		st.Result = ResultFailed
		st.Error = err.Error()
		logger.Error("RUN", fmt.Sprintf("Run failed: %v", err))
	}

	r.mu.Lock()
	r.last = st
	r.mu.Unlock()
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveRun(st.Result, finished.Sub(started), st.Routes, finished)
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *Runner) execute(ctx context.Context) (*store.ResultBatch, *store.Diagnostics, error) {
	pairs, err := r.Pairs()
	if err != nil {
		return nil, nil, err
	}
	logger.Info("RUN", fmt.Sprintf("Fetching %d order books", len(pairs)))

	res, err := r.agg.Aggregate(ctx, pairs)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: %w", err)
	}
	diag := &store.Diagnostics{Aggregator: res.Diagnostics}
	logger.Stats("Fetched", res.Diagnostics.Succeeded)
	logger.Stats("Failed", res.Diagnostics.Failed)
	logger.Stats("Stale", res.Diagnostics.Stale)
	logger.Stats("Retries", res.Diagnostics.Retries)
	if res.Diagnostics.Succeeded == 0 {
		return nil, diag, fmt.Errorf("%w (%d requested)", ErrAllFetchesFailed, res.Diagnostics.Requested)
	}

	computed := r.computer.Compute(res.Snapshots(), res.CapturedAt)
	diag.Engine = computed.Stats

	idx := ranking.NewIndex(computed.Candidates)
	batch := &store.ResultBatch{
		RunID:     r.opts.NewRunID(),
		CreatedAt: r.opts.Clock.Now(),
		Routes:    idx.Routes(),
		Summary: store.Summary{
			Summary:   idx.Summary(ranking.Filter{}),
			Locations: computed.Locations,
		},
		Diagnostics: *diag,
	}
	if err := ctx.Err(); err != nil {
		return nil, diag, err
	}
	if err := r.store.PutBatch(ctx, batch); err != nil {
		return nil, diag, fmt.Errorf("publish: %w", err)
	}
	return batch, diag, nil
}
