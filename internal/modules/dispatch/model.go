// README: Request aggregate, offer records, and the engine's state flow.
package dispatch

import (
	"errors"
	"time"

	"dispatch/internal/types"
)

type Status string

const (
	StatusSearching Status = "searching"
	StatusOffering  Status = "offering"
	StatusMatched   Status = "matched"
	StatusExhausted Status = "exhausted"
	StatusCancelled Status = "cancelled"
)

// AllowedTransitions represents the engine-owned part of the request state
// flow as code. Post-match states (arriving, in_progress, completed) belong
// to the trip-lifecycle collaborator and never appear here.
var AllowedTransitions = map[Status][]Status{
	StatusSearching: {StatusOffering, StatusExhausted, StatusCancelled},
	StatusOffering:  {StatusSearching, StatusMatched, StatusExhausted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the engine is done with a request in this status.
func (s Status) Terminal() bool {
	return s == StatusMatched || s == StatusExhausted || s == StatusCancelled
}

// Request is one demand-side matching need.
type Request struct {
	ID        types.ID
	Origin    types.Point
	Class     string
	CreatedAt time.Time

	Status    Status
	AgentID   *types.ID
	MatchedAt *time.Time
	Rounds    int
}

type OfferOutcome string

const (
	OutcomePending   OfferOutcome = "pending"
	OutcomeAccepted  OfferOutcome = "accepted"
	OutcomeDeclined  OfferOutcome = "declined"
	OutcomeExpired   OfferOutcome = "expired"
	OutcomeWithdrawn OfferOutcome = "withdrawn"
)

// Offer is a time-bounded exclusive claim linking one request to one
// candidate agent. The registry lease is its concurrency shadow; the Offer
// record carries identity and timing for observability and stale-acceptance
// checks.
type Offer struct {
	ID        types.ID
	RequestID types.ID
	AgentID   types.ID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Outcome   OfferOutcome
}

// MatchResult is the successful dispatch outcome.
type MatchResult struct {
	RequestID types.ID
	AgentID   types.ID
	MatchedAt time.Time
	LatencyMs int64
	Rounds    int
}

var (
	ErrNotFound     = errors.New("request not found")
	ErrConflict     = errors.New("request already exists")
	ErrInvalidState = errors.New("invalid state transition")
	ErrBadRequest   = errors.New("bad request")
	// ErrNoSupply is the exhausted terminal outcome: all rounds consumed with
	// zero matches. Expected under thin supply, not a system error.
	ErrNoSupply = errors.New("no supply available")
	// ErrCancelled reports that the request was cancelled while in flight.
	ErrCancelled = errors.New("request cancelled")
	// ErrStaleDecision rejects a decision for an offer that is no longer
	// pending (already resolved, expired, or from a past round).
	ErrStaleDecision = errors.New("decision does not match a pending offer")
)
