package graph

import "container/heap"

// Path is the best route between two systems: fewest hops, ties broken by
// the lowest summed fuel factor.
type Path struct {
	Hops       int     `json:"hops"`
	FuelFactor float64 `json:"fuel_factor"`
}

func (p Path) less(o Path) bool {
	if p.Hops != o.Hops {
		return p.Hops < o.Hops
	}
	return p.FuelFactor < o.FuelFactor
}

// ShortestPath returns the best path between origin and dest and whether one exists.
func (u *Universe) ShortestPath(origin, dest int32) (Path, bool) {
	return u.ShortestPathMinSecurity(origin, dest, 0)
}

// ShortestPathMinSecurity returns the best path using only systems with
// security >= minSecurity; use minSecurity <= 0 for no filter. Systems with
// unknown security are excluded when filtering. It reads the precomputed table
// for that level when available and falls back to a single search.
func (u *Universe) ShortestPathMinSecurity(origin, dest int32, minSecurity float64) (Path, bool) {
	if origin == dest {
		return Path{}, true
	}
	if !u.passable(origin, minSecurity) || !u.passable(dest, minSecurity) {
		return Path{}, false
	}
	if table, ok := u.paths[pathLevel(minSecurity)]; ok {
		p, ok := table[origin][dest]
		return p, ok
	}
	p, ok := u.dijkstra(origin, minSecurity)[dest]
	return p, ok
}

func (u *Universe) passable(systemID int32, minSecurity float64) bool {
	if minSecurity <= 0 {
		return true
	}
	sec, ok := u.SystemSecurity[systemID]
	return ok && sec >= minSecurity
}

// dijkstra computes best paths from origin to every system reachable through
// passable systems.
func (u *Universe) dijkstra(origin int32, minSecurity float64) map[int32]Path {
	dist := map[int32]Path{origin: {}}
	done := make(map[int32]bool)

	pq := &priorityQueue{{systemID: origin}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if done[item.systemID] {
			continue
		}
		done[item.systemID] = true
		for _, e := range u.Adj[item.systemID] {
			if done[e.To] || !u.passable(e.To, minSecurity) {
				continue
			}
			np := Path{Hops: item.path.Hops + 1, FuelFactor: item.path.FuelFactor + e.FuelFactor}
			if d, ok := dist[e.To]; !ok || np.less(d) {
				dist[e.To] = np
				heap.Push(pq, pqItem{systemID: e.To, path: np})
			}
		}
	}
	return dist
}

// Priority queue for Dijkstra
type pqItem struct {
	systemID int32
	path     Path
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].path == pq[j].path {
		return pq[i].systemID < pq[j].systemID
	}
	return pq[i].path.less(pq[j].path)
}
func (pq priorityQueue) Swap(i, j int)        { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
