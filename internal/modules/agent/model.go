// README: Agent aggregate and availability states.
package agent

import (
	"time"

	"dispatch/internal/types"
)

type State string

const (
	StateAvailable   State = "available"
	StateOffered     State = "offered"
	StateAssigned    State = "assigned"
	StateUnavailable State = "unavailable"
)

// Agent is a mobile supply unit. Instances handed out by the Registry are
// snapshots; mutation goes through Registry methods only.
type Agent struct {
	ID        types.ID
	Position  types.Point
	UpdatedAt time.Time

	// Motion vector from the last report, informational.
	HeadingDeg float64
	SpeedMPS   float64

	State State
	// Classes the agent can serve ("standard", "xl", ...). Empty means any.
	Classes []string

	// Quality is a normalized reliability/rating signal in [0,1].
	Quality float64

	OffersSeen     int64
	OffersAccepted int64
}

// AcceptanceRate is the fraction of offers this agent accepted. Agents with
// no history score a neutral 0.5 so newcomers are neither boosted nor buried.
func (a Agent) AcceptanceRate() float64 {
	if a.OffersSeen == 0 {
		return 0.5
	}
	return float64(a.OffersAccepted) / float64(a.OffersSeen)
}

// Serves reports whether the agent can serve the requested class.
func (a Agent) Serves(class string) bool {
	if class == "" || len(a.Classes) == 0 {
		return true
	}
	for _, c := range a.Classes {
		if c == class {
			return true
		}
	}
	return false
}
