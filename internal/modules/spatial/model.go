// README: Cell geometry for the geohash-bucket index.
package spatial

import (
	"sync"
	"time"

	"dispatch/internal/types"
)

// cellKey addresses one grid cell. X grows eastward, Y northward, both
// quantized by the configured cell size.
type cellKey struct {
	X, Y int32
}

// occupant is one agent's last known position inside a cell.
type occupant struct {
	Position  types.Point
	UpdatedAt time.Time
}

// cell is a leaf bucket of the index. Each cell has its own RWMutex so
// position updates in one neighbourhood never serialize against queries or
// updates elsewhere.
type cell struct {
	mu     sync.RWMutex
	agents map[types.ID]occupant
}

func newCell() *cell {
	return &cell{agents: make(map[types.ID]occupant)}
}

// Neighbor is one proximity-query result.
type Neighbor struct {
	ID        types.ID
	Position  types.Point
	UpdatedAt time.Time
	DistanceM float64
}
