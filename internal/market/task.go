package market

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// TaskState is the lifecycle of one pair's fetch.
//
//	Pending -> InFlight -> Succeeded | RetryScheduled | PermanentFailure | Exhausted
//	RetryScheduled -> InFlight
//	any non-terminal state -> Cancelled
type TaskState int

const (
	StatePending TaskState = iota
	StateInFlight
	StateRetryScheduled
	StateSucceeded
	StatePermanentFailure
	StateExhausted
	StateCancelled
)

var stateNames = [...]string{
	StatePending:          "pending",
	StateInFlight:         "in_flight",
	StateRetryScheduled:   "retry_scheduled",
	StateSucceeded:        "succeeded",
	StatePermanentFailure: "permanent_failure",
	StateExhausted:        "exhausted",
	StateCancelled:        "cancelled",
}

func (s TaskState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s TaskState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TaskState) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = TaskState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", b)
}

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	switch s {
	case StateSucceeded, StatePermanentFailure, StateExhausted, StateCancelled:
		return true
	}
	return false
}

var transitions = map[TaskState][]TaskState{
	StatePending:        {StateInFlight, StateCancelled},
	StateInFlight:       {StateSucceeded, StateRetryScheduled, StatePermanentFailure, StateExhausted, StateCancelled},
	StateRetryScheduled: {StateInFlight, StateCancelled},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to TaskState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RetryPolicy decides what happens after a failed attempt.
type RetryPolicy struct {
	MaxRetries  int // retries after the first attempt
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Jitter perturbs a backoff delay; nil uses a 0.5x-1.5x random factor.
	Jitter func(time.Duration) time.Duration
}

// Decide returns the next state after attempt (0-based) failed with fe, and
// the delay before the next attempt when the state is StateRetryScheduled.
func (p RetryPolicy) Decide(fe *FetchError, attempt int) (TaskState, time.Duration) {
	if fe == nil || !fe.Kind.Transient() {
		return StatePermanentFailure, 0
	}
	if attempt >= p.MaxRetries {
		return StateExhausted, 0
	}
	delay := p.Backoff(attempt)
	if fe.Kind == KindRateLimited && fe.RetryAfter > delay {
		delay = fe.RetryAfter
	}
	return StateRetryScheduled, delay
}

// Backoff is base*2^attempt with jitter, capped at BackoffMax. Doubling stops
// once the cap is reached so large attempts cannot overflow.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BackoffBase
	for i := 0; i < attempt && d > 0; i++ {
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			break
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = addJitter
	}
	d = jitter(d)
	if p.BackoffMax > 0 && d > p.BackoffMax {
		d = p.BackoffMax
	}
	if d < 0 {
		d = 0
	}
	return d
}

func addJitter(d time.Duration) time.Duration {
	f := float64(d) * (0.5 + rand.Float64())
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(f)
}

// task tracks one pair through the state machine.
type task struct {
	pair     Pair
	state    TaskState
	attempts int
	retries  int
	lastErr  *FetchError
	snapshot *Snapshot
	history  []TaskState
}

func newTask(pair Pair) *task {
	return &task{pair: pair, state: StatePending, history: []TaskState{StatePending}}
}

func (t *task) to(next TaskState) {
	if !CanTransition(t.state, next) {
		panic(fmt.Sprintf("market: illegal transition %s -> %s for %s", t.state, next, t.pair))
	}
	t.state = next
	t.history = append(t.history, next)
}

// cancel moves a non-terminal task to Cancelled.
func (t *task) cancel() {
	if !t.state.Terminal() {
		t.to(StateCancelled)
	}
}
