// README: Retry/expansion policy as an explicit round record.
package dispatch

import "dispatch/internal/config"

// RoundState is the explicit search posture of one attempt cycle. Threading
// it through the loop (instead of hidden counters) keeps retries restartable
// and testable in isolation.
type RoundState struct {
	Round        int
	RadiusM      float64
	QualityFloor float64
}

// FirstRound derives the opening posture from the current parameters.
func FirstRound(p config.DispatchParams) RoundState {
	return RoundState{Round: 1, RadiusM: p.InitialRadiusM, QualityFloor: p.QualityFloor}
}

// NextRound widens the search after a failed round: radius multiplies by the
// configured factor up to the cap, and the quality floor relaxes toward zero.
// ok is false once the round budget is spent; the caller then gives up and
// marks the request exhausted.
func NextRound(prev RoundState, p config.DispatchParams) (next RoundState, ok bool) {
	if prev.Round >= p.MaxRounds {
		return RoundState{}, false
	}
	radius := prev.RadiusM * p.RadiusFactor
	if radius > p.MaxRadiusM {
		radius = p.MaxRadiusM
	}
	floor := prev.QualityFloor - p.QualityFloorRelax
	if floor < 0 {
		floor = 0
	}
	return RoundState{Round: prev.Round + 1, RadiusM: radius, QualityFloor: floor}, true
}
