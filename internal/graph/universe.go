package graph

import "sort"

// Edge is one stargate hop. FuelFactor scales a carrier's per-hop fuel cost.
type Edge struct {
	To         int32
	FuelFactor float64
}

// Universe holds the adjacency list of solar systems connected by stargates,
// plus mappings from system to region and security.
type Universe struct {
	// Adj maps systemID -> outgoing edges
	Adj map[int32][]Edge
	// SystemRegion maps systemID -> regionID
	SystemRegion map[int32]int32
	// SystemSecurity maps systemID -> security (0.0 null to 1.0 highsec)
	SystemSecurity map[int32]float64

	// paths holds the all-pairs tables built by InitPathCache, keyed by
	// security floor; nil until then.
	paths map[float64]map[int32]map[int32]Path
}

// NewUniverse creates an empty Universe with initialized maps.
func NewUniverse() *Universe {
	return &Universe{
		Adj:            make(map[int32][]Edge),
		SystemRegion:   make(map[int32]int32),
		SystemSecurity: make(map[int32]float64),
	}
}

// AddGate adds a bidirectional stargate connection. Adding a gate drops any
// precomputed path table.
func (u *Universe) AddGate(a, b int32, fuelFactor float64) {
	if fuelFactor <= 0 {
		fuelFactor = 1
	}
	u.Adj[a] = append(u.Adj[a], Edge{To: b, FuelFactor: fuelFactor})
	u.Adj[b] = append(u.Adj[b], Edge{To: a, FuelFactor: fuelFactor})
	u.paths = nil
}

// SetRegion associates a system with a region.
func (u *Universe) SetRegion(systemID, regionID int32) {
	u.SystemRegion[systemID] = regionID
}

// SetSecurity sets the security level for a system (0.0–1.0).
func (u *Universe) SetSecurity(systemID int32, security float64) {
	u.SystemSecurity[systemID] = security
}

// Systems returns every known system ID in ascending order.
func (u *Universe) Systems() []int32 {
	seen := make(map[int32]bool, len(u.SystemRegion)+len(u.Adj))
	for id := range u.SystemRegion {
		seen[id] = true
	}
	for id := range u.Adj {
		seen[id] = true
	}
	out := make([]int32, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// pathLevel normalises a security floor so every "no filter" value shares one table.
func pathLevel(minSecurity float64) float64 {
	if minSecurity <= 0 {
		return 0
	}
	return minSecurity
}

// InitPathCache precomputes shortest paths between every pair of systems,
// unfiltered and for each given security floor. The universe must not be
// modified concurrently with readers afterwards.
func (u *Universe) InitPathCache(minSecurities ...float64) {
	systems := u.Systems()
	tables := make(map[float64]map[int32]map[int32]Path, len(minSecurities)+1)
	for _, level := range append([]float64{0}, minSecurities...) {
		level = pathLevel(level)
		if _, ok := tables[level]; ok {
			continue
		}
		table := make(map[int32]map[int32]Path, len(systems))
		for _, origin := range systems {
			if u.passable(origin, level) {
				table[origin] = u.dijkstra(origin, level)
			}
		}
		tables[level] = table
	}
	u.paths = tables
}

// PathCacheReady reports whether InitPathCache has built the unfiltered table
// and one for each given security floor since the last AddGate.
func (u *Universe) PathCacheReady(minSecurities ...float64) bool {
	if u.paths == nil {
		return false
	}
	for _, level := range minSecurities {
		if _, ok := u.paths[pathLevel(level)]; !ok {
			return false
		}
	}
	return true
}
