package market

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eve-arbitrage/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// scriptedSource fails each pair with the scripted errors in order, then succeeds.
type scriptedSource struct {
	mu       sync.Mutex
	clk      clock.Clock
	script   map[Pair][]error
	captured map[Pair]time.Time
	calls    map[Pair]int
	hold     time.Duration

	inFlight    int32
	maxInFlight int32
}

func newScriptedSource(clk clock.Clock) *scriptedSource {
	return &scriptedSource{
		clk:      clk,
		script:   map[Pair][]error{},
		captured: map[Pair]time.Time{},
		calls:    map[Pair]int{},
	}
}

func (s *scriptedSource) FetchOrderBook(ctx context.Context, pair Pair) (*Snapshot, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		m := atomic.LoadInt32(&s.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxInFlight, m, n) {
			break
		}
	}
	if s.hold > 0 {
		select {
		case <-time.After(s.hold):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	call := s.calls[pair]
	s.calls[pair] = call + 1
	var err error
	if call < len(s.script[pair]) {
		err = s.script[pair][call]
	}
	captured, ok := s.captured[pair]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		captured = s.clk.Now()
	}
	return NewSnapshot(pair,
		[]Order{{OrderID: 1, Price: 10, Volume: 100, Issued: captured}},
		[]Order{{OrderID: 2, Price: 9, Volume: 50, Issued: captured}},
		captured), nil
}

func (s *scriptedSource) callsFor(p Pair) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[p]
}

func noJitter(d time.Duration) time.Duration { return d }

func newTestAggregator(src Source, clk clock.Clock, maxRetries int) *Aggregator {
	return NewAggregator(src, semaphore.NewWeighted(4), rate.NewLimiter(rate.Inf, 1), Options{
		Retry: RetryPolicy{
			MaxRetries:  maxRetries,
			BackoffBase: 100 * time.Millisecond,
			BackoffMax:  time.Second,
			Jitter:      noJitter,
		},
		FetchTimeout:   time.Second,
		SnapshotMaxAge: 10 * time.Minute,
		Clock:          clk,
	})
}

func pairs(n int) []Pair {
	out := make([]Pair, n)
	for i := range out {
		out[i] = Pair{LocationID: int64(60000000 + i), TypeID: 34}
	}
	return out
}

func TestAggregate_AllSucceed(t *testing.T) {
	clk := clock.NewMock(t0)
	src := newScriptedSource(clk)
	agg := newTestAggregator(src, clk, 2)

	ps := pairs(5)
	res, err := agg.Aggregate(context.Background(), append(ps, ps[0]))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Diagnostics.Requested, "duplicates are fetched once")
	assert.Equal(t, 5, res.Diagnostics.Succeeded)
	assert.Zero(t, res.Diagnostics.Failed)
	snaps := res.Snapshots()
	require.Len(t, snaps, 5)
	for i := 1; i < len(snaps); i++ {
		assert.True(t, snaps[i-1].Pair.Less(snaps[i].Pair))
	}
	assert.Equal(t, 1, src.callsFor(ps[0]))
}

func TestAggregate_RetriesExhausted(t *testing.T) {
	clk := clock.NewMock(t0)
	src := newScriptedSource(clk)
	ps := pairs(3)
	timeout := NewFetchError(KindTimeout, errors.New("deadline"))
	src.script[ps[1]] = []error{timeout, timeout, timeout}

	agg := newTestAggregator(src, clk, 2)
	res, err := agg.Aggregate(context.Background(), ps)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Diagnostics.Succeeded)
	assert.Equal(t, 1, res.Diagnostics.Failed)
	assert.Equal(t, 2, res.Diagnostics.Retries)
	assert.Equal(t, map[string]int{"timeout": 1}, res.Diagnostics.FailuresByKind)
	require.Len(t, res.Diagnostics.FailedPairs, 1)

	f := res.Diagnostics.FailedPairs[0]
	assert.Equal(t, ps[1], f.Pair)
	assert.Equal(t, StateExhausted, f.State)
	assert.Equal(t, 3, f.Attempts)
	assert.Equal(t, 3, src.callsFor(ps[1]))

	out := res.Outcomes[ps[1]]
	assert.Equal(t, StatusFailed, out.Status)
	for _, s := range res.Snapshots() {
		assert.NotEqual(t, ps[1], s.Pair)
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clk.Sleeps())
}

func TestAggregate_RecoversAfterTransient(t *testing.T) {
	clk := clock.NewMock(t0)
	src := newScriptedSource(clk)
	p := pairs(1)[0]
	src.script[p] = []error{NewFetchError(KindUnavailable, errors.New("502"))}

	res, err := newTestAggregator(src, clk, 2).Aggregate(context.Background(), []Pair{p})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Outcomes[p].Status)
	assert.Equal(t, 1, res.Diagnostics.Retries)
}

func TestAggregate_PermanentNotRetried(t *testing.T) {
	clk := clock.NewMock(t0)
	src := newScriptedSource(clk)
	p := pairs(1)[0]
	src.script[p] = []error{NewFetchError(KindNotFound, errors.New("404"))}

	res, err := newTestAggregator(src, clk, 5).Aggregate(context.Background(), []Pair{p})
	require.NoError(t, err)

	assert.Equal(t, 1, src.callsFor(p))
	require.Len(t, res.Diagnostics.FailedPairs, 1)
	assert.Equal(t, StatePermanentFailure, res.Diagnostics.FailedPairs[0].State)
	assert.Equal(t, KindNotFound, res.Diagnostics.FailedPairs[0].Kind)
	assert.Empty(t, clk.Sleeps())
}

func TestAggregate_RateLimitHonoursRetryAfter(t *testing.T) {
	clk := clock.NewMock(t0)
	src := newScriptedSource(clk)
	p := pairs(1)[0]
	src.script[p] = []error{&FetchError{Kind: KindRateLimited, Status: 429, RetryAfter: 5 * time.Second, Err: errors.New("slow down")}}

	res, err := newTestAggregator(src, clk, 2).Aggregate(context.Background(), []Pair{p})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Outcomes[p].Status)
	assert.Equal(t, []time.Duration{5 * time.Second}, clk.Sleeps())
}

func TestAggregate_DiscardsStale(t *testing.T) {
	clk := clock.NewMock(t0)
	src := newScriptedSource(clk)
	ps := pairs(2)
	src.captured[ps[0]] = t0.Add(-time.Hour)

	res, err := newTestAggregator(src, clk, 0).Aggregate(context.Background(), ps)
	require.NoError(t, err)

	assert.Equal(t, StatusStale, res.Outcomes[ps[0]].Status)
	assert.Nil(t, res.Outcomes[ps[0]].Snapshot)
	assert.Equal(t, time.Hour, res.Outcomes[ps[0]].Age)
	assert.Equal(t, StatusOK, res.Outcomes[ps[1]].Status)
	assert.Equal(t, 1, res.Diagnostics.Stale)
	assert.Equal(t, []Pair{ps[0]}, res.Diagnostics.StalePairs)
	assert.Len(t, res.Snapshots(), 1)
}

func TestAggregate_Cancelled(t *testing.T) {
	src := newScriptedSource(clock.Real{})
	src.hold = time.Second
	agg := newTestAggregator(src, clock.Real{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res, err := agg.Aggregate(ctx, pairs(8))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestAggregate_PerAttemptTimeout(t *testing.T) {
	src := newScriptedSource(clock.Real{})
	src.hold = time.Second
	agg := NewAggregator(src, semaphore.NewWeighted(2), nil, Options{
		Retry:        RetryPolicy{MaxRetries: 0, BackoffBase: time.Millisecond, Jitter: noJitter},
		FetchTimeout: 10 * time.Millisecond,
	})
	p := pairs(1)[0]
	res, err := agg.Aggregate(context.Background(), []Pair{p})
	require.NoError(t, err)
	require.Len(t, res.Diagnostics.FailedPairs, 1)
	assert.Equal(t, KindTimeout, res.Diagnostics.FailedPairs[0].Kind)
	assert.Equal(t, StateExhausted, res.Diagnostics.FailedPairs[0].State)
}

func TestAggregate_ConcurrencyBounded(t *testing.T) {
	src := newScriptedSource(clock.Real{})
	src.hold = 5 * time.Millisecond
	agg := NewAggregator(src, semaphore.NewWeighted(2), rate.NewLimiter(rate.Inf, 1), Options{
		FetchTimeout: time.Second,
	})
	res, err := agg.Aggregate(context.Background(), pairs(12))
	require.NoError(t, err)
	assert.Equal(t, 12, res.Diagnostics.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt32(&src.maxInFlight), int32(2))
}

func TestAggregate_TokenBucketSpacesDispatch(t *testing.T) {
	const interval = 20 * time.Millisecond
	var mu sync.Mutex
	var starts []time.Time
	src := SourceFunc(func(_ context.Context, pair Pair) (*Snapshot, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return NewSnapshot(pair, nil, nil, time.Now()), nil
	})
	agg := NewAggregator(src, semaphore.NewWeighted(16), rate.NewLimiter(rate.Every(interval), 1), Options{
		FetchTimeout: time.Second,
	})

	begin := time.Now()
	res, err := agg.Aggregate(context.Background(), pairs(6))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Diagnostics.Succeeded)

	require.Len(t, starts, 6)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i, at := range starts {
		earliest := begin.Add(time.Duration(i)*interval - 2*time.Millisecond)
		assert.False(t, at.Before(earliest), "dispatch %d at %v, want >= %v", i, at.Sub(begin), earliest.Sub(begin))
	}
}

func TestAggregate_LimiterPastDeadlineIsTimeout(t *testing.T) {
	src := newScriptedSource(clock.Real{})
	agg := NewAggregator(src, semaphore.NewWeighted(4), rate.NewLimiter(rate.Every(time.Hour), 1), Options{
		Retry:        RetryPolicy{MaxRetries: 3, BackoffBase: time.Millisecond, Jitter: noJitter},
		FetchTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := agg.Aggregate(ctx, pairs(2))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Diagnostics.Succeeded)
	require.Len(t, res.Diagnostics.FailedPairs, 1)
	f := res.Diagnostics.FailedPairs[0]
	assert.Equal(t, KindTimeout, f.Kind)
	assert.Equal(t, StateExhausted, f.State)
	assert.Equal(t, 0, src.callsFor(f.Pair))
	assert.Equal(t, map[string]int{"timeout": 1}, res.Diagnostics.FailuresByKind)
}

type countingRecorder struct {
	mu       sync.Mutex
	fetches  map[string]int
	retries  map[string]int
	outcomes map[string]int
}

func (r *countingRecorder) ObserveFetch(result string, _ time.Duration) {
	r.mu.Lock()
	r.fetches[result]++
	r.mu.Unlock()
}

func (r *countingRecorder) IncRetry(kind string) {
	r.mu.Lock()
	r.retries[kind]++
	r.mu.Unlock()
}

func (r *countingRecorder) ObserveOutcome(status string) {
	r.mu.Lock()
	r.outcomes[status]++
	r.mu.Unlock()
}

func TestAggregate_RecordsMetrics(t *testing.T) {
	clk := clock.NewMock(t0)
	src := newScriptedSource(clk)
	ps := pairs(2)
	src.script[ps[0]] = []error{NewFetchError(KindNetwork, errors.New("reset"))}
	rec := &countingRecorder{fetches: map[string]int{}, retries: map[string]int{}, outcomes: map[string]int{}}

	agg := newTestAggregator(src, clk, 1)
	agg.opts.Metrics = rec
	_, err := agg.Aggregate(context.Background(), ps)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"ok": 2, "network": 1}, rec.fetches)
	assert.Equal(t, map[string]int{"network": 1}, rec.retries)
	assert.Equal(t, map[string]int{"ok": 2}, rec.outcomes)
}
