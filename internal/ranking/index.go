package ranking

import (
	"sync"

	"eve-arbitrage/internal/engine"
)

type view struct {
	routes  []engine.RouteCandidate
	summary Summary
}

// Index serves pages over one immutable candidate set. Sorting happens once;
// filtered views and their summaries are built on first use and reused.
// Safe for concurrent use.
type Index struct {
	sorted []engine.RouteCandidate

	mu    sync.RWMutex
	views map[Filter]*view
}

// NewIndex sorts candidates into a new index.
func NewIndex(candidates []engine.RouteCandidate) *Index {
	return &Index{
		sorted: Sort(candidates),
		views:  make(map[Filter]*view),
	}
}

// Len returns the unfiltered route count.
func (x *Index) Len() int { return len(x.sorted) }

// Routes returns the full ranked list. Callers must not modify it.
func (x *Index) Routes() []engine.RouteCandidate { return x.sorted }

func (x *Index) view(f Filter) *view {
	x.mu.RLock()
	v, ok := x.views[f]
	x.mu.RUnlock()
	if ok {
		return v
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if v, ok := x.views[f]; ok {
		return v
	}
	routes := x.sorted
	if f != (Filter{}) {
		routes = make([]engine.RouteCandidate, 0, len(x.sorted))
		for i := range x.sorted {
			if f.match(&x.sorted[i]) {
				routes = append(routes, x.sorted[i])
			}
		}
	}
	v = &view{routes: routes, summary: Summarize(routes)}
	x.views[f] = v
	return v
}

// Summary returns the summary for a filter.
func (x *Index) Summary(f Filter) Summary { return x.view(f).summary }

// Page returns one page of the filtered ranking.
func (x *Index) Page(f Filter, page, pageSize int) (*Page, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}
	v := x.view(f)
	routes, p := paginate(v.routes, page, pageSize)
	return &Page{Routes: routes, Pagination: p, Summary: v.summary}, nil
}
