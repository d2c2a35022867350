// README: Registry owns per-agent state and the exclusive offer lease.
package agent

import (
	"errors"
	"sync"
	"time"

	"dispatch/internal/types"
)

var (
	ErrNotFound = errors.New("agent not found")
	// ErrLeaseHeld is the lease-conflict outcome: some other request already
	// holds the pending offer on this agent.
	ErrLeaseHeld = errors.New("agent already holds a pending offer")
	// ErrNotAvailable covers offline, assigned, or otherwise unofferable agents.
	ErrNotAvailable = errors.New("agent not available")
	// ErrLeaseMismatch is returned when a release or assign names a request
	// that does not hold the lease.
	ErrLeaseMismatch = errors.New("lease held by a different request")
)

// lease is the exclusive claim one request holds on one agent while an offer
// is pending. At most one per agent, enforced under the entry mutex.
type lease struct {
	requestID types.ID
	expiresAt time.Time
}

type entry struct {
	mu    sync.Mutex
	agent Agent
	lease *lease
}

// Registry is the authoritative in-process view of all known agents. Entries
// are keyed in a sync.Map and each carries its own mutex, so contention stays
// per-agent; there is no registry-wide lock on the hot paths.
type Registry struct {
	entries sync.Map // types.ID -> *entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// WithClock overrides the registry clock. Tests only.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) get(id types.ID) (*entry, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// Report creates the agent on first sight and refreshes its position and
// motion vector on every subsequent report. A brand-new agent starts
// available with a neutral quality score.
func (r *Registry) Report(id types.ID, pos types.Point, at time.Time, speedMPS, headingDeg float64) Agent {
	v, _ := r.entries.LoadOrStore(id, &entry{agent: Agent{
		ID:      id,
		State:   StateAvailable,
		Quality: 0.5,
	}})
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agent.Position = pos
	e.agent.UpdatedAt = at
	e.agent.SpeedMPS = speedMPS
	e.agent.HeadingDeg = headingDeg
	return e.agent
}

// Get returns a snapshot of the agent.
func (r *Registry) Get(id types.ID) (Agent, bool) {
	e, ok := r.get(id)
	if !ok {
		return Agent{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent, true
}

// SetState forces an availability transition, e.g. an agent going on or off
// shift. Moving away from available drops any live lease.
func (r *Registry) SetState(id types.ID, s State) error {
	e, ok := r.get(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agent.State = s
	if s != StateOffered {
		e.lease = nil
	}
	return nil
}

// SetQuality overrides the quality score, clamped to [0,1].
func (r *Registry) SetQuality(id types.ID, q float64) error {
	e, ok := r.get(id)
	if !ok {
		return ErrNotFound
	}
	if q < 0 {
		q = 0
	} else if q > 1 {
		q = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agent.Quality = q
	return nil
}

// TryAcquire atomically claims the pending-offer slot of an agent for a
// request: it succeeds only if the agent is available and holds no live
// lease. This is the single compare-and-set the at-most-one-offer invariant
// rests on; callers racing for the same agent see exactly one success.
// A lease whose expiry has passed counts as free.
func (r *Registry) TryAcquire(agentID, requestID types.ID, expiresAt time.Time) error {
	e, ok := r.get(agentID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lease != nil && e.lease.expiresAt.After(r.now()) {
		return ErrLeaseHeld
	}
	if e.agent.State != StateAvailable && e.agent.State != StateOffered {
		return ErrNotAvailable
	}
	e.lease = &lease{requestID: requestID, expiresAt: expiresAt}
	e.agent.State = StateOffered
	e.agent.OffersSeen++
	return nil
}

// Release frees the lease if requestID holds it and returns the agent to the
// available pool. Releasing a lease you do not hold is a mismatch, not a
// silent success, so coordinator bugs surface.
func (r *Registry) Release(agentID, requestID types.ID) error {
	e, ok := r.get(agentID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lease == nil {
		return nil
	}
	if e.lease.requestID != requestID {
		return ErrLeaseMismatch
	}
	e.lease = nil
	if e.agent.State == StateOffered {
		e.agent.State = StateAvailable
	}
	return nil
}

// Assign converts a held lease into an assignment on acceptance.
func (r *Registry) Assign(agentID, requestID types.ID) error {
	e, ok := r.get(agentID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lease == nil || e.lease.requestID != requestID {
		return ErrLeaseMismatch
	}
	e.lease = nil
	e.agent.State = StateAssigned
	e.agent.OffersAccepted++
	return nil
}

// Complete returns an assigned agent to the available pool once the external
// trip lifecycle finishes with it.
func (r *Registry) Complete(agentID types.ID) error {
	e, ok := r.get(agentID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.agent.State == StateAssigned {
		e.agent.State = StateAvailable
	}
	return nil
}

// LeaseHolder reports which request currently leases the agent, if any.
func (r *Registry) LeaseHolder(agentID types.ID) (types.ID, bool) {
	e, ok := r.get(agentID)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lease == nil || !e.lease.expiresAt.After(r.now()) {
		return "", false
	}
	return e.lease.requestID, true
}

// Candidates resolves a list of agent ids into offerable snapshots: available
// state, serving the requested class, quality at or above floor. Order is
// preserved so spatial distance ordering survives.
func (r *Registry) Candidates(ids []types.ID, class string, qualityFloor float64) []Agent {
	out := make([]Agent, 0, len(ids))
	for _, id := range ids {
		e, ok := r.get(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		a := e.agent
		held := e.lease != nil && e.lease.expiresAt.After(r.now())
		e.mu.Unlock()
		if a.State != StateAvailable || held {
			continue
		}
		if !a.Serves(class) || a.Quality < qualityFloor {
			continue
		}
		out = append(out, a)
	}
	return out
}
