// README: Terminal-record handoff to the trip-lifecycle collaborator.
package archive

import (
	"context"
	"time"

	"dispatch/internal/types"
)

// Outcome is the terminal record of one request. Ownership of the request
// passes downstream with it; the engine keeps nothing durable.
type Outcome struct {
	RequestID  types.ID
	AgentID    *types.ID
	Status     string
	Reason     string
	Rounds     int
	CreatedAt  time.Time
	ResolvedAt time.Time
	LatencyMs  int64
}

// Event is one state transition, appended as it happens so a supervisory
// process can reconstruct in-flight history after a crash.
type Event struct {
	RequestID  types.ID
	FromStatus string
	ToStatus   string
	AgentID    *types.ID
	CreatedAt  time.Time
}

// Store persists outcomes and transition events. Write failures must never
// fail a dispatch; callers log and continue.
type Store interface {
	SaveOutcome(ctx context.Context, o Outcome) error
	AppendEvent(ctx context.Context, e Event) error
}

// NopStore discards everything; used when no database is configured.
type NopStore struct{}

func (NopStore) SaveOutcome(context.Context, Outcome) error { return nil }
func (NopStore) AppendEvent(context.Context, Event) error   { return nil }
