// README: Candidate ranker: quality floor, ETA resolution, composite score,
// deterministic ordering.
package rank

import (
	"context"
	"sort"

	"dispatch/internal/config"
	"dispatch/internal/logx"
	"dispatch/internal/metrics"
	"dispatch/internal/types"
)

// ETAProvider estimates arrival time from an agent position to the request
// origin. Implementations may call out to a routing service.
type ETAProvider interface {
	ETASeconds(ctx context.Context, from, to types.Point) (float64, error)
}

// Ranked is a scored candidate.
type Ranked struct {
	Input
	Score float64
}

type Ranker struct {
	eta     ETAProvider
	scorers []Scorer
	metrics *metrics.Metrics
	log     logx.Logger
}

// NewRanker builds a ranker. eta may be nil, in which case every candidate
// uses the distance-over-assumed-speed fallback.
func NewRanker(eta ETAProvider, m *metrics.Metrics, log logx.Logger) *Ranker {
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = logx.Nop()
	}
	return &Ranker{eta: eta, scorers: DefaultScorers(), metrics: m, log: log}
}

// WithScorers replaces the composite, e.g. to plug in a learned signal.
func (r *Ranker) WithScorers(scorers []Scorer) *Ranker {
	r.scorers = scorers
	return r
}

// Rank orders candidates by descending composite score. Candidates below the
// quality floor are excluded before scoring, not ranked last. Ties break on
// ascending agent id so identical inputs always produce identical output.
func (r *Ranker) Rank(ctx context.Context, origin types.Point, cands []Candidate, p config.DispatchParams) []Ranked {
	out := make([]Ranked, 0, len(cands))
	for _, c := range cands {
		if c.Agent.Quality < p.QualityFloor {
			continue
		}
		in := Input{Candidate: c}
		in.ETASeconds, in.ETAFallback = r.resolveETA(ctx, c, origin, p)

		score := 0.0
		for _, s := range r.scorers {
			score += s.Weight(p.Weights) * s.Score(in, p)
		}
		out = append(out, Ranked{Input: in, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Agent.ID < out[j].Agent.ID
	})
	return out
}

// resolveETA asks the routing provider and falls back to straight-line
// distance over the assumed speed. The substitution is counted and logged so
// a dead provider cannot hide behind the fallback indefinitely.
func (r *Ranker) resolveETA(ctx context.Context, c Candidate, origin types.Point, p config.DispatchParams) (float64, bool) {
	if r.eta != nil {
		eta, err := r.eta.ETASeconds(ctx, c.Agent.Position, origin)
		if err == nil && eta >= 0 {
			return eta, false
		}
		if err != nil {
			r.log.Warn("eta provider failed, using distance fallback",
				logx.String("agent_id", string(c.Agent.ID)), logx.Err(err))
		}
	}
	r.metrics.ETAFallbacksTotal.Inc()
	return c.DistanceM / p.AssumedSpeedMPS, true
}
