// README: Offer delivery boundary. The coordinator pushes offers and
// withdrawals through a Notifier; decisions come back via the coordinator's
// Resolve entry point, correlated by request id + agent id.
package notify

import (
	"context"
	"time"

	"dispatch/internal/types"
)

// OfferEvent is pushed to an agent's client when it is selected.
type OfferEvent struct {
	RequestID types.ID    `json:"request_id"`
	AgentID   types.ID    `json:"agent_id"`
	Origin    types.Point `json:"origin"`
	Class     string      `json:"class,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// WithdrawReason explains why an outstanding offer no longer stands.
type WithdrawReason string

const (
	// WithdrawMatched: another agent won the request.
	WithdrawMatched WithdrawReason = "matched_elsewhere"
	// WithdrawCancelled: the requester cancelled.
	WithdrawCancelled WithdrawReason = "request_cancelled"
	// WithdrawExpired: the acceptance window elapsed.
	WithdrawExpired WithdrawReason = "offer_expired"
)

// WithdrawEvent tells an agent an offer is off the table. Always explicit,
// never a silent timeout, so agent clients stop waiting immediately.
type WithdrawEvent struct {
	RequestID types.ID       `json:"request_id"`
	AgentID   types.ID       `json:"agent_id"`
	Reason    WithdrawReason `json:"reason"`
}

// Notifier delivers offer lifecycle events to agent clients. Delivery is
// best-effort: a failed push is logged by the caller and the offer simply
// expires unanswered.
type Notifier interface {
	Offer(ctx context.Context, ev OfferEvent) error
	Withdraw(ctx context.Context, ev WithdrawEvent) error
}
