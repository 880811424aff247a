package market

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Pair identifies one order book: an item at a trade location.
type Pair struct {
	LocationID int64 `json:"location_id"`
	TypeID     int32 `json:"type_id"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%d/%d", p.LocationID, p.TypeID)
}

// Less orders pairs by location then type.
func (p Pair) Less(o Pair) bool {
	if p.LocationID != o.LocationID {
		return p.LocationID < o.LocationID
	}
	return p.TypeID < o.TypeID
}

// Order is one outstanding market order.
type Order struct {
	OrderID int64     `json:"order_id"`
	Price   float64   `json:"price"`
	Volume  int64     `json:"volume"`
	Issued  time.Time `json:"issued"`
}

// Snapshot is a timestamped order book. Sells are sorted by ascending price,
// Buys by descending price; equal prices keep ascending OrderID.
type Snapshot struct {
	Pair       Pair      `json:"pair"`
	Sells      []Order   `json:"sells"`
	Buys       []Order   `json:"buys"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewSnapshot copies and sorts the order ladders.
func NewSnapshot(pair Pair, sells, buys []Order, capturedAt time.Time) *Snapshot {
	s := &Snapshot{
		Pair:       pair,
		Sells:      append([]Order(nil), sells...),
		Buys:       append([]Order(nil), buys...),
		CapturedAt: capturedAt,
	}
	sort.SliceStable(s.Sells, func(i, j int) bool {
		if s.Sells[i].Price != s.Sells[j].Price {
			return s.Sells[i].Price < s.Sells[j].Price
		}
		return s.Sells[i].OrderID < s.Sells[j].OrderID
	})
	sort.SliceStable(s.Buys, func(i, j int) bool {
		if s.Buys[i].Price != s.Buys[j].Price {
			return s.Buys[i].Price > s.Buys[j].Price
		}
		return s.Buys[i].OrderID < s.Buys[j].OrderID
	})
	return s
}

// Age is the snapshot's age at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// Source fetches one order book. The deadline comes from ctx. Failures
// should be *FetchError; other errors are classified by the aggregator.
type Source interface {
	FetchOrderBook(ctx context.Context, pair Pair) (*Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, pair Pair) (*Snapshot, error)

func (f SourceFunc) FetchOrderBook(ctx context.Context, pair Pair) (*Snapshot, error) {
	return f(ctx, pair)
}

// Status tags an Outcome.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusStale:
		return "stale"
	}
	return "unknown"
}

// Outcome is the per-pair result: a snapshot, a failure, or a discarded stale snapshot.
type Outcome struct {
	Status   Status        `json:"status"`
	Snapshot *Snapshot     `json:"snapshot,omitempty"`
	Failure  *Failure      `json:"failure,omitempty"`
	Age      time.Duration `json:"age,omitempty"`
}

// Failure records why a pair produced no snapshot.
type Failure struct {
	Pair     Pair      `json:"pair"`
	Kind     ErrorKind `json:"kind"`
	State    TaskState `json:"state"`
	Attempts int       `json:"attempts"`
	Err      string    `json:"error"`
}
