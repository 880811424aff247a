// Package ranking orders, filters and paginates route candidates.
package ranking

import (
	"errors"
	"fmt"
	"sort"

	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/sde"
)

// MaxPageSize bounds page_size on every query.
const MaxPageSize = 200

var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = fmt.Errorf("page_size must be between 1 and %d", MaxPageSize)
	ErrUnknownCategory = errors.New("unknown category")
)

// Filter narrows the candidate set before pagination. The zero value matches all.
type Filter struct {
	Category sde.Category
}

// NewFilter validates a raw category string. Empty means no filter.
func NewFilter(category string) (Filter, error) {
	if category == "" {
		return Filter{}, nil
	}
	c, ok := sde.ParseCategory(category)
	if !ok {
		return Filter{}, fmt.Errorf("%w %q", ErrUnknownCategory, category)
	}
	return Filter{Category: c}, nil
}

func (f Filter) match(c *engine.RouteCandidate) bool {
	return f.Category == "" || c.Category == f.Category
}

// Pagination is the page metadata returned with every page.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// Page is one slice of the ranked, filtered routes.
type Page struct {
	Routes     []engine.RouteCandidate `json:"routes"`
	Pagination Pagination              `json:"pagination"`
	Summary    Summary                 `json:"summary"`
}

// Less is the default route order: net percent desc, volume desc, then type,
// origin and destination IDs ascending. It is a total order over distinct routes.
func Less(a, b *engine.RouteCandidate) bool {
	if a.NetProfitPct != b.NetProfitPct {
		return a.NetProfitPct > b.NetProfitPct
	}
	if a.VolumeAvailable != b.VolumeAvailable {
		return a.VolumeAvailable > b.VolumeAvailable
	}
	if a.TypeID != b.TypeID {
		return a.TypeID < b.TypeID
	}
	if a.OriginID != b.OriginID {
		return a.OriginID < b.OriginID
	}
	return a.DestinationID < b.DestinationID
}

// Sort returns a sorted copy; the input is left untouched.
func Sort(candidates []engine.RouteCandidate) []engine.RouteCandidate {
	out := make([]engine.RouteCandidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool { return Less(&out[i], &out[j]) })
	return out
}

func validatePage(page, pageSize int) error {
	if page < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, pageSize)
	}
	return nil
}

// Rank sorts, filters and paginates candidates in one pass. Use an Index when
// the same set is queried repeatedly.
func Rank(candidates []engine.RouteCandidate, f Filter, page, pageSize int) (*Page, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}
	return NewIndex(candidates).Page(f, page, pageSize)
}

func paginate(sorted []engine.RouteCandidate, page, pageSize int) ([]engine.RouteCandidate, Pagination) {
	total := len(sorted)
	totalPages := (total + pageSize - 1) / pageSize
	p := Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []engine.RouteCandidate{}, p
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	routes := make([]engine.RouteCandidate, end-start)
	copy(routes, sorted[start:end])
	return routes, p
}
