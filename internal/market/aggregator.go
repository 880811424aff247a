// Package market gathers order-book snapshots for a set of (location, item) pairs.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Recorder receives aggregator measurements. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveFetch(result string, d time.Duration)
	IncRetry(kind string)
	ObserveOutcome(status string)
}

// Options configures an Aggregator.
type Options struct {
	Retry          RetryPolicy
	FetchTimeout   time.Duration // per attempt
	SnapshotMaxAge time.Duration // 0 disables the freshness check
	Clock          clock.Clock
	Metrics        Recorder
}

// Aggregator fans out fetches under a shared semaphore and rate limiter.
// Both are injected so several aggregators (or runs) can share or isolate them.
type Aggregator struct {
	source  Source
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	opts    Options
}

// NewAggregator creates an aggregator. A nil limiter means no rate limit.
func NewAggregator(source Source, sem *semaphore.Weighted, limiter *rate.Limiter, opts Options) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if sem == nil {
		sem = semaphore.NewWeighted(1)
	}
	return &Aggregator{source: source, sem: sem, limiter: limiter, opts: opts}
}

// Diagnostics summarises a run for operators.
type Diagnostics struct {
	Requested      int            `json:"requested"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	Stale          int            `json:"stale"`
	Retries        int            `json:"retries"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
	FailedPairs    []Failure      `json:"failed_pairs"`
	StalePairs     []Pair         `json:"stale_pairs"`
	Duration       time.Duration  `json:"duration"`
}

// Result maps every requested pair to its Outcome.
type Result struct {
	Outcomes    map[Pair]Outcome
	Diagnostics Diagnostics
	CapturedAt  time.Time
}

// Snapshots returns the usable snapshots ordered by pair.
func (r *Result) Snapshots() []*Snapshot {
	out := make([]*Snapshot, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Status == StatusOK {
			out = append(out, o.Snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair.Less(out[j].Pair) })
	return out
}

// Aggregate fetches every pair and returns once all tasks are resolved.
// Individual failures never fail the call; only cancellation of ctx does,
// in which case the partial result is discarded.
func (a *Aggregator) Aggregate(ctx context.Context, pairs []Pair) (*Result, error) {
	start := a.opts.Clock.Now()
	pairs = dedupe(pairs)

	tasks := make([]*task, len(pairs))
	for i, p := range pairs {
		tasks[i] = newTask(p)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			a.run(gctx, t)
			if t.state == StateCancelled {
				return gctx.Err()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		logger.Warn("AGG", fmt.Sprintf("Run cancelled: %v", err))
		return nil, err
	}

	now := a.opts.Clock.Now()
	res := &Result{
		Outcomes:    make(map[Pair]Outcome, len(tasks)),
		CapturedAt:  now,
		Diagnostics: Diagnostics{Requested: len(tasks), FailuresByKind: map[string]int{}},
	}
	for _, t := range tasks {
		res.Diagnostics.Retries += t.retries
		out := a.outcome(t, now)
		res.Outcomes[t.pair] = out
		switch out.Status {
		case StatusOK:
			res.Diagnostics.Succeeded++
		case StatusStale:
			res.Diagnostics.Stale++
			res.Diagnostics.StalePairs = append(res.Diagnostics.StalePairs, t.pair)
		case StatusFailed:
			res.Diagnostics.Failed++
			res.Diagnostics.FailuresByKind[out.Failure.Kind.String()]++
			res.Diagnostics.FailedPairs = append(res.Diagnostics.FailedPairs, *out.Failure)
		}
		if a.opts.Metrics != nil {
			a.opts.Metrics.ObserveOutcome(out.Status.String())
		}
	}
	sort.Slice(res.Diagnostics.FailedPairs, func(i, j int) bool {
		return res.Diagnostics.FailedPairs[i].Pair.Less(res.Diagnostics.FailedPairs[j].Pair)
	})
	sort.Slice(res.Diagnostics.StalePairs, func(i, j int) bool {
		return res.Diagnostics.StalePairs[i].Less(res.Diagnostics.StalePairs[j])
	})
	res.Diagnostics.Duration = now.Sub(start)

	logger.Info("AGG", fmt.Sprintf("%d pairs: %d ok, %d failed, %d stale, %d retries",
		res.Diagnostics.Requested, res.Diagnostics.Succeeded, res.Diagnostics.Failed,
		res.Diagnostics.Stale, res.Diagnostics.Retries))
	return res, nil
}

// run drives one task to a terminal state.
func (a *Aggregator) run(ctx context.Context, t *task) {
	for {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			t.cancel()
			return
		}
		if err := a.limiter.Wait(ctx); err != nil {
			a.sem.Release(1)
			if ctx.Err() != nil {
				t.cancel()
				return
			}
			// The limiter refuses when the next token lands past the run
			// deadline; waiting again cannot help. Burst 0 refuses always.
			t.to(StateInFlight)
			t.attempts++
			if _, ok := ctx.Deadline(); ok {
				t.lastErr = NewFetchError(KindTimeout, err)
				t.to(StateExhausted)
			} else {
				t.lastErr = NewFetchError(KindUnknown, err)
				t.to(StatePermanentFailure)
			}
			logger.Warn("AGG", fmt.Sprintf("%s not dispatched: %v", t.pair, t.lastErr))
			return
		}

		t.to(StateInFlight)
		t.attempts++
		snap, err := a.attempt(ctx, t.pair)
		a.sem.Release(1)

		if err == nil {
			t.snapshot = snap
			t.to(StateSucceeded)
			return
		}
		if ctx.Err() != nil {
			t.cancel()
			return
		}

		fe := Classify(err)
		t.lastErr = fe
		next, delay := a.opts.Retry.Decide(fe, t.attempts-1)
		t.to(next)
		switch next {
		case StateRetryScheduled:
			t.retries++
			if a.opts.Metrics != nil {
				a.opts.Metrics.IncRetry(fe.Kind.String())
			}
			logger.Debug("AGG", fmt.Sprintf("%s attempt %d failed (%v), retrying in %s", t.pair, t.attempts, fe, delay))
			if err := a.opts.Clock.Sleep(ctx, delay); err != nil {
				t.cancel()
				return
			}
		case StatePermanentFailure:
			logger.Warn("AGG", fmt.Sprintf("%s permanent failure: %v", t.pair, fe))
			return
		default:
			logger.Warn("AGG", fmt.Sprintf("%s gave up after %d attempts: %v", t.pair, t.attempts, fe))
			return
		}
	}
}

// attempt performs one fetch under the per-attempt timeout.
func (a *Aggregator) attempt(ctx context.Context, pair Pair) (*Snapshot, error) {
	actx := ctx
	if a.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, a.opts.FetchTimeout)
		defer cancel()
	}

	began := time.Now()
	snap, err := a.source.FetchOrderBook(actx, pair)
	if err == nil && snap == nil {
		err = NewFetchError(KindMalformed, errors.New("empty snapshot"))
	}
	if err == nil && snap.Pair != pair {
		err = NewFetchError(KindMalformed, fmt.Errorf("snapshot for %s returned for %s", snap.Pair, pair))
	}
	// a deadline hit on the attempt context is a timeout even if the
	// source wrapped it in something else
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = NewFetchError(KindTimeout, err)
		}
	}
	if a.opts.Metrics != nil {
		result := "ok"
		if err != nil {
			result = Classify(err).Kind.String()
		}
		a.opts.Metrics.ObserveFetch(result, time.Since(began))
	}
	if err != nil {
		return nil, err
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = a.opts.Clock.Now()
	}
	return snap, nil
}

func (a *Aggregator) outcome(t *task, now time.Time) Outcome {
	switch t.state {
	case StateSucceeded:
		age := t.snapshot.Age(now)
		if a.opts.SnapshotMaxAge > 0 && age > a.opts.SnapshotMaxAge {
			return Outcome{Status: StatusStale, Age: age}
		}
		return Outcome{Status: StatusOK, Snapshot: t.snapshot, Age: age}
	default:
		f := &Failure{Pair: t.pair, State: t.state, Attempts: t.attempts}
		if t.lastErr != nil {
			f.Kind = t.lastErr.Kind
			f.Err = t.lastErr.Error()
		}
		return Outcome{Status: StatusFailed, Failure: f}
	}
}

func dedupe(pairs []Pair) []Pair {
	seen := make(map[Pair]bool, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// SharedLimits bundles the semaphore and limiter shared by an aggregator's tasks.
type SharedLimits struct {
	Sem     *semaphore.Weighted
	Limiter *rate.Limiter
}

// NewSharedLimits builds a semaphore of maxConcurrency slots and a token bucket.
func NewSharedLimits(maxConcurrency int, perSecond float64, burst int) SharedLimits {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(perSecond), burst)
	if perSecond <= 0 {
		lim = rate.NewLimiter(rate.Inf, burst)
	}
	return SharedLimits{Sem: semaphore.NewWeighted(int64(maxConcurrency)), Limiter: lim}
}
