// README: In-process spatial index over moving agents. Grid buckets with
// per-cell locks; queries restrict to cells intersecting the search circle
// and then filter by true haversine distance.
package spatial

import (
	"context"
	"math"
	"sync"
	"time"

	"dispatch/internal/config"
	"dispatch/internal/geo"
	"dispatch/internal/logx"
	"dispatch/internal/types"
)

const metersPerDegLat = 111320.0

// Index maintains current positions of all reporting agents and answers
// radius queries. Agents past the staleness threshold are filtered on read
// but only evicted by the sweeper after the longer hard threshold, so a
// short signal gap (tunnel, dead zone) does not thrash the index.
type Index struct {
	cellSizeDeg float64
	resultCap   int
	staleAfter  time.Duration
	evictAfter  time.Duration
	sweepEvery  time.Duration

	mu    sync.RWMutex // guards the cells map itself, not cell contents
	cells map[cellKey]*cell

	locate sync.Map // types.ID -> cellKey
	// moves serializes cell transitions per agent. A move spans two cells,
	// so cell locks alone cannot order two concurrent moves of the same
	// agent; without this an overtaken move can strand an occupant in a
	// cell locate no longer points at.
	moves sync.Map // types.ID -> *sync.Mutex

	now func() time.Time
	log logx.Logger
}

func NewIndex(cfg config.SpatialConfig, log logx.Logger) *Index {
	if log == nil {
		log = logx.Nop()
	}
	return &Index{
		cellSizeDeg: cfg.CellSizeM / metersPerDegLat,
		resultCap:   cfg.ResultCap,
		staleAfter:  cfg.StaleAfter,
		evictAfter:  cfg.EvictAfter,
		sweepEvery:  cfg.SweepInterval,
		cells:       make(map[cellKey]*cell),
		now:         time.Now,
		log:         log,
	}
}

// WithClock overrides the index clock. Tests only.
func (ix *Index) WithClock(now func() time.Time) *Index {
	ix.now = now
	return ix
}

func (ix *Index) keyFor(p types.Point) cellKey {
	return cellKey{
		X: int32(math.Floor(p.Lng / ix.cellSizeDeg)),
		Y: int32(math.Floor(p.Lat / ix.cellSizeDeg)),
	}
}

func (ix *Index) cellAt(k cellKey, create bool) *cell {
	ix.mu.RLock()
	c := ix.cells[k]
	ix.mu.RUnlock()
	if c != nil || !create {
		return c
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if c = ix.cells[k]; c == nil {
		c = newCell()
		ix.cells[k] = c
	}
	return c
}

func (ix *Index) moveLock(id types.ID) *sync.Mutex {
	v, _ := ix.moves.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Upsert records an agent's position, moving it between cells as needed.
func (ix *Index) Upsert(id types.ID, pos types.Point, at time.Time) {
	mv := ix.moveLock(id)
	mv.Lock()
	defer mv.Unlock()

	k := ix.keyFor(pos)
	if prev, ok := ix.locate.Load(id); ok {
		pk := prev.(cellKey)
		if pk != k {
			if pc := ix.cellAt(pk, false); pc != nil {
				pc.mu.Lock()
				delete(pc.agents, id)
				pc.mu.Unlock()
			}
		}
	}

	c := ix.cellAt(k, true)
	c.mu.Lock()
	c.agents[id] = occupant{Position: pos, UpdatedAt: at}
	c.mu.Unlock()
	ix.locate.Store(id, k)
}

// Remove drops an agent from the index, e.g. when it goes offline.
func (ix *Index) Remove(id types.ID) {
	mv := ix.moveLock(id)
	mv.Lock()
	defer mv.Unlock()

	prev, ok := ix.locate.LoadAndDelete(id)
	if !ok {
		return
	}
	if c := ix.cellAt(prev.(cellKey), false); c != nil {
		c.mu.Lock()
		delete(c.agents, id)
		c.mu.Unlock()
	}
}

// Len returns the number of indexed agents.
func (ix *Index) Len() int {
	n := 0
	ix.locate.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// QueryRadius returns agents within radiusM of origin ordered by ascending
// great-circle distance, freshest-report filter applied, capped at the
// configured result limit. Cells only bound the scan; membership is decided
// by true distance, so corner-of-cell false positives never leak through.
func (ix *Index) QueryRadius(origin types.Point, radiusM float64) []Neighbor {
	dLat, dLng := geo.DegreeSpan(origin.Lat, radiusM)
	lo := ix.keyFor(types.Point{Lat: origin.Lat - dLat, Lng: origin.Lng - dLng})
	hi := ix.keyFor(types.Point{Lat: origin.Lat + dLat, Lng: origin.Lng + dLng})

	cutoff := ix.now().Add(-ix.staleAfter)

	var out []Neighbor
	for y := lo.Y; y <= hi.Y; y++ {
		for x := lo.X; x <= hi.X; x++ {
			c := ix.cellAt(cellKey{X: x, Y: y}, false)
			if c == nil {
				continue
			}
			c.mu.RLock()
			for id, occ := range c.agents {
				if occ.UpdatedAt.Before(cutoff) {
					continue
				}
				d := geo.HaversineM(origin, occ.Position)
				if d > radiusM {
					continue
				}
				out = append(out, Neighbor{ID: id, Position: occ.Position, UpdatedAt: occ.UpdatedAt, DistanceM: d})
			}
			c.mu.RUnlock()
		}
	}

	geo.SortByDistance(out, func(n Neighbor) float64 { return n.DistanceM })
	if len(out) > ix.resultCap {
		out = out[:ix.resultCap]
	}
	return out
}

// Sweep evicts agents silent beyond the hard threshold and prunes cells they
// leave empty. Returns the number of evictions.
func (ix *Index) Sweep() int {
	cutoff := ix.now().Add(-ix.evictAfter)
	evicted := 0

	ix.locate.Range(func(key, _ any) bool {
		id := key.(types.ID)
		mv := ix.moveLock(id)
		mv.Lock()
		defer mv.Unlock()

		// Re-load under the move lock; the Range value may predate a move.
		loc, ok := ix.locate.Load(id)
		if !ok {
			return true
		}
		c := ix.cellAt(loc.(cellKey), false)
		if c == nil {
			ix.locate.Delete(id)
			return true
		}
		c.mu.Lock()
		if occ, ok := c.agents[id]; ok && occ.UpdatedAt.Before(cutoff) {
			delete(c.agents, id)
			ix.locate.Delete(id)
			evicted++
		}
		c.mu.Unlock()
		return true
	})

	if evicted > 0 {
		ix.log.Info("spatial sweep evicted silent agents", logx.Int("count", evicted))
	}
	return evicted
}

// RunSweeper periodically evicts hard-stale agents until ctx is cancelled.
func (ix *Index) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(ix.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ix.Sweep()
		}
	}
}
