package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// diamond: 1-2-4 costs 2.0, 1-3-4 costs 3.0, 1-5-6-4 is longer; 7 is isolated.
func diamond() *Universe {
	u := NewUniverse()
	u.AddGate(1, 2, 1.0)
	u.AddGate(2, 4, 1.0)
	u.AddGate(1, 3, 1.5)
	u.AddGate(3, 4, 1.5)
	u.AddGate(1, 5, 0.1)
	u.AddGate(5, 6, 0.1)
	u.AddGate(6, 4, 0.1)
	u.SetRegion(7, 99)
	return u
}

func TestShortestPath_FewestHopsThenFuel(t *testing.T) {
	u := diamond()
	p, ok := u.ShortestPath(1, 4)
	if !ok {
		t.Fatal("ShortestPath(1,4) not found")
	}
	if p.Hops != 2 {
		t.Errorf("Hops = %d, want 2", p.Hops)
	}
	assert.InDelta(t, 2.0, p.FuelFactor, 1e-9)
}

func TestShortestPath_Cases(t *testing.T) {
	u := diamond()
	tests := []struct {
		name     string
		from, to int32
		wantHops int
		wantOK   bool
	}{
		{"same system", 1, 1, 0, true},
		{"adjacent", 1, 2, 1, true},
		{"reverse direction", 4, 1, 2, true},
		{"isolated", 1, 7, 0, false},
		{"unknown", 1, 12345, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := u.ShortestPath(tt.from, tt.to)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && p.Hops != tt.wantHops {
				t.Errorf("Hops = %d, want %d", p.Hops, tt.wantHops)
			}
		})
	}
}

func TestInitPathCache_MatchesSearch(t *testing.T) {
	u := diamond()
	want := map[[2]int32]Path{}
	for _, a := range u.Systems() {
		for _, b := range u.Systems() {
			if p, ok := u.ShortestPath(a, b); ok {
				want[[2]int32{a, b}] = p
			}
		}
	}

	u.InitPathCache()
	if !u.PathCacheReady() {
		t.Fatal("PathCacheReady() = false after InitPathCache")
	}
	for _, a := range u.Systems() {
		for _, b := range u.Systems() {
			p, ok := u.ShortestPath(a, b)
			w, wok := want[[2]int32{a, b}]
			if ok != wok || p != w {
				t.Errorf("cached %d->%d = %+v/%v, want %+v/%v", a, b, p, ok, w, wok)
			}
		}
	}

	u.AddGate(7, 1, 1)
	if u.PathCacheReady() {
		t.Error("AddGate should invalidate the path table")
	}
	p, ok := u.ShortestPath(1, 7)
	assert.True(t, ok)
	assert.Equal(t, 1, p.Hops)
}

// secured diamond: 2 is low security, so a high-security floor forces 1-3-4.
func secured() *Universe {
	u := diamond()
	for _, id := range []int32{1, 3, 4, 5, 6} {
		u.SetSecurity(id, 0.9)
	}
	u.SetSecurity(2, 0.3)
	u.SetSecurity(7, 1.0)
	return u
}

func TestShortestPathMinSecurity(t *testing.T) {
	tests := []struct {
		name     string
		from, to int32
		floor    float64
		wantHops int
		wantFuel float64
		wantOK   bool
	}{
		{"no filter takes low sec", 1, 4, 0, 2, 2.0, true},
		{"negative floor is no filter", 1, 4, -1, 2, 2.0, true},
		{"low sec allowed", 1, 4, 0.1, 2, 2.0, true},
		{"high sec detours", 1, 4, 0.45, 2, 3.0, true},
		{"destination below floor", 1, 2, 0.45, 0, 0, false},
		{"origin below floor", 2, 4, 0.45, 0, 0, false},
		{"same system ignores floor", 2, 2, 0.45, 0, 0, true},
		{"floor above everything", 1, 4, 0.95, 0, 0, false},
	}
	for _, cached := range []bool{false, true} {
		u := secured()
		if cached {
			u.InitPathCache(0.1, 0.45, 0.95)
		}
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s cached=%v", tt.name, cached), func(t *testing.T) {
				p, ok := u.ShortestPathMinSecurity(tt.from, tt.to, tt.floor)
				if ok != tt.wantOK {
					t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
				}
				if p.Hops != tt.wantHops {
					t.Errorf("Hops = %d, want %d", p.Hops, tt.wantHops)
				}
				assert.InDelta(t, tt.wantFuel, p.FuelFactor, 1e-9)
			})
		}
	}
}

func TestShortestPathMinSecurity_UnknownSecurityBlocked(t *testing.T) {
	u := secured()
	delete(u.SystemSecurity, 3)
	// 1-3-4 is gone and 1-5-6-4 is the only high-security route left
	p, ok := u.ShortestPathMinSecurity(1, 4, 0.45)
	if !ok {
		t.Fatal("no path")
	}
	if p.Hops != 3 {
		t.Errorf("Hops = %d, want 3", p.Hops)
	}
}

func TestPathCacheReady_PerFloor(t *testing.T) {
	u := secured()
	u.InitPathCache(0.45)
	assert.True(t, u.PathCacheReady())
	assert.True(t, u.PathCacheReady(0.45, 0, -2))
	assert.False(t, u.PathCacheReady(0.1))
}
