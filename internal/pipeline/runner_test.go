package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/market"
	"eve-arbitrage/internal/sde"
	"eve-arbitrage/internal/store"
	"eve-arbitrage/internal/transport"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
regions: [{id: 1, name: R}]
systems:
  - {id: 10, name: Alpha, region_id: 1, security: 1.0}
  - {id: 11, name: Mid, region_id: 1, security: 1.0}
  - {id: 12, name: Beta, region_id: 1, security: 1.0}
gates:
  - {from: 10, to: 11, fuel_factor: 1}
  - {from: 11, to: 12, fuel_factor: 1}
stations:
  - {id: 1, name: A, system_id: 10}
  - {id: 2, name: B, system_id: 12}
items:
  - {type_id: 34, name: Ore, category: mineral, volume: 0.01}
  - {type_id: 35, name: Gel, category: planetary, volume: 0.01}
carriers:
  - {name: Hauler, capacity: 1000000, fuel_per_hop: 25, insurance_rate: 0, time_per_hop: 5m}
`

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// books is the order data served by the fake source.
var books = map[market.Pair][2][]market.Order{
	{LocationID: 1, TypeID: 34}: {{{OrderID: 1, Price: 10, Volume: 100}}, nil},
	{LocationID: 2, TypeID: 34}: {nil, {{OrderID: 2, Price: 15, Volume: 50}}},
	{LocationID: 1, TypeID: 35}: {{{OrderID: 3, Price: 100, Volume: 10}}, nil},
	{LocationID: 2, TypeID: 35}: {nil, {{OrderID: 4, Price: 200, Volume: 10}}},
}

type fixture struct {
	catalog *sde.Data
	clock   *clock.Mock
	store   *store.Memory
	runs    *runRecorder
	fail    func(p market.Pair) error
}

type runRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *runRecorder) ObserveRun(result string, _ time.Duration, _ int, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	data, err := sde.Parse([]byte(testCatalog))
	require.NoError(t, err)
	return &fixture{catalog: data, clock: clock.NewMock(start), store: store.NewMemory(5), runs: &runRecorder{}}
}

func (f *fixture) source() market.Source {
	return market.SourceFunc(func(ctx context.Context, p market.Pair) (*market.Snapshot, error) {
		if f.fail != nil {
			if err := f.fail(p); err != nil {
				return nil, err
			}
		}
		b := books[p]
		return market.NewSnapshot(p, b[0], b[1], f.clock.Now()), nil
	})
}

func (f *fixture) runner(opts Options) *Runner {
	agg := market.NewAggregator(f.source(), nil, nil, market.Options{
		Retry:        market.RetryPolicy{MaxRetries: 1, BackoffBase: time.Second, BackoffMax: time.Second},
		FetchTimeout: time.Second,
		Clock:        f.clock,
	})
	p := engine.DefaultParams()
	e := engine.New(f.catalog, transport.NewModel(f.catalog), p)
	opts.Clock = f.clock
	opts.Metrics = f.runs
	return NewRunner(f.catalog, agg, e, f.store, opts)
}

func TestRun_Publishes(t *testing.T) {
	f := newFixture(t)
	r := f.runner(Options{})

	batch, err := r.Run(context.Background())
	require.NoError(t, err)
	_, err = uuid.Parse(batch.RunID)
	assert.NoError(t, err, "run ids are uuids")

	require.Len(t, batch.Routes, 2)
	assert.Equal(t, int32(35), batch.Routes[0].TypeID, "gel (net 95%) ranks above ore (net 40%)")
	assert.InDelta(t, 0.4, batch.Routes[1].NetProfitPct, 1e-9)
	assert.Equal(t, 2, batch.Summary.TotalRoutes)
	assert.Len(t, batch.Summary.Locations, 2)
	assert.Equal(t, 4, batch.Diagnostics.Aggregator.Succeeded)
	assert.Equal(t, 2, batch.Diagnostics.Engine.Candidates)

	latest, err := f.store.GetLatestBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Same(t, batch, latest)

	st := r.LastRun()
	require.NotNil(t, st)
	assert.Equal(t, ResultPublished, st.Result)
	assert.Equal(t, batch.RunID, st.RunID)
	assert.Equal(t, 2, st.Routes)
	assert.Equal(t, []string{ResultPublished}, f.runs.results)
}

func TestRun_AllFetchesFailedKeepsPreviousBatch(t *testing.T) {
	f := newFixture(t)
	r := f.runner(Options{})
	first, err := r.Run(context.Background())
	require.NoError(t, err)

	f.fail = func(market.Pair) error { return market.NewFetchError(market.KindUnavailable, errors.New("down")) }
	_, err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrAllFetchesFailed)

	latest, err := f.store.GetLatestBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, latest.RunID, "readers still see the previous batch")

	st := r.LastRun()
	assert.Equal(t, ResultFailed, st.Result)
	require.NotNil(t, st.Diagnostics)
	assert.Equal(t, 4, st.Diagnostics.Aggregator.Failed)
	assert.Equal(t, []string{ResultPublished, ResultFailed}, f.runs.results)
}

func TestRun_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.fail = func(p market.Pair) error {
		if p.TypeID == 35 && p.LocationID == 2 {
			return market.NewFetchError(market.KindTimeout, context.DeadlineExceeded)
		}
		return nil
	}
	batch, err := f.runner(Options{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Routes, 1)
	assert.Equal(t, int32(34), batch.Routes[0].TypeID)
	require.Len(t, batch.Diagnostics.Aggregator.FailedPairs, 1)
	assert.Equal(t, market.Pair{LocationID: 2, TypeID: 35}, batch.Diagnostics.Aggregator.FailedPairs[0].Pair)
	assert.Equal(t, 1, batch.Diagnostics.Aggregator.FailuresByKind["timeout"])
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := f.runner(Options{})
	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	latest, err := f.store.GetLatestBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.Equal(t, ResultCancelled, r.LastRun().Result)
}

func TestRun_FatalConfigErrors(t *testing.T) {
	f := newFixture(t)

	_, err := NewRunner(nil, nil, nil, f.store, Options{}).Run(context.Background())
	assert.ErrorIs(t, err, ErrCatalogMissing)

	_, err = f.runner(Options{Locations: []int64{999}}).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoPairs)

	latest, _ := f.store.GetLatestBatch(context.Background(), 0)
	assert.Nil(t, latest)
}

func TestPairs_WatchSet(t *testing.T) {
	f := newFixture(t)
	pairs, err := f.runner(Options{Locations: []int64{2, 1, 2, 77}, Items: []int32{34}}).Pairs()
	require.NoError(t, err)
	assert.Equal(t, []market.Pair{{LocationID: 1, TypeID: 34}, {LocationID: 2, TypeID: 34}}, pairs)

	pairs, err = f.runner(Options{}).Pairs()
	require.NoError(t, err)
	assert.Len(t, pairs, 4)
}

type blockingAgg struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAgg) Aggregate(ctx context.Context, pairs []market.Pair) (*market.Result, error) {
	close(b.entered)
	<-b.release
	return nil, context.Canceled
}

func TestRun_SingleFlight(t *testing.T) {
	f := newFixture(t)
	agg := &blockingAgg{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRunner(f.catalog, agg, nil, f.store, Options{Clock: f.clock})

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-agg.entered
	assert.True(t, r.Running())
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(agg.release)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, r.Running())
}

func TestScheduler_Trigger(t *testing.T) {
	f := newFixture(t)
	r := f.runner(Options{})
	s := NewScheduler(r, 0)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.True(t, s.Trigger())

	require.Eventually(t, func() bool {
		st := r.LastRun()
		return st != nil && st.Result == ResultPublished
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_PeriodicRunsImmediately(t *testing.T) {
	f := newFixture(t)
	r := f.runner(Options{})
	s := NewScheduler(r, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool {
		latest, _ := f.store.GetLatestBatch(context.Background(), 0)
		return latest != nil
	}, 2*time.Second, 5*time.Millisecond)
}
