// README: Pluggable scoring signals composed by the ranker.
package rank

import (
	"dispatch/internal/config"
	"dispatch/internal/modules/agent"
)

// Candidate pairs an agent snapshot with its straight-line distance from the
// request origin, as produced by the spatial query.
type Candidate struct {
	Agent     agent.Agent
	DistanceM float64
}

// Input is a candidate with its resolved arrival estimate, ready to score.
type Input struct {
	Candidate
	ETASeconds  float64
	ETAFallback bool
}

// Scorer is one ranking signal. Implementations must be pure so repeated
// ranking of the same inputs stays deterministic; anything that needs I/O
// (routing, learned models) resolves into Input before scoring.
type Scorer interface {
	Score(in Input, p config.DispatchParams) float64
	Weight(w config.Weights) float64
}

// InverseDistance rewards proximity: w1 * 1/(distance+eps).
type InverseDistance struct{}

func (InverseDistance) Score(in Input, p config.DispatchParams) float64 {
	return 1 / (in.DistanceM + p.Epsilon)
}
func (InverseDistance) Weight(w config.Weights) float64 { return w.Distance }

// InverseETA rewards short estimated arrival: w2 * 1/(eta+eps).
type InverseETA struct{}

func (InverseETA) Score(in Input, p config.DispatchParams) float64 {
	return 1 / (in.ETASeconds + p.Epsilon)
}
func (InverseETA) Weight(w config.Weights) float64 { return w.ETA }

// Quality passes the agent's reliability score through: w3 * quality.
type Quality struct{}

func (Quality) Score(in Input, _ config.DispatchParams) float64 { return in.Agent.Quality }
func (Quality) Weight(w config.Weights) float64                 { return w.Quality }

// Acceptance rewards agents who historically accept: w4 * acceptanceRate.
type Acceptance struct{}

func (Acceptance) Score(in Input, _ config.DispatchParams) float64 {
	return in.Agent.AcceptanceRate()
}
func (Acceptance) Weight(w config.Weights) float64 { return w.Acceptance }

// DefaultScorers is the composite documented for the engine.
func DefaultScorers() []Scorer {
	return []Scorer{InverseDistance{}, InverseETA{}, Quality{}, Acceptance{}}
}
