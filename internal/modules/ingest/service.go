// README: Location ingest: validation, monotonicity, jump filter, index upsert.
package ingest

import (
	"context"
	"errors"
	"time"

	"dispatch/internal/config"
	"dispatch/internal/geo"
	"dispatch/internal/logx"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/agent"
	"dispatch/internal/modules/spatial"
	"dispatch/internal/types"
)

// ErrBadUpdate rejects structurally invalid reports (missing id, coordinates
// off the globe). Everything else is acknowledged; suspect updates are
// dropped internally and surfaced as metrics, never as caller errors.
var ErrBadUpdate = errors.New("bad location update")

// Update is one inbound position report.
type Update struct {
	AgentID    types.ID
	Position   types.Point
	Timestamp  time.Time
	SpeedMPS   float64
	HeadingDeg float64
	AccuracyM  float64
}

type Service struct {
	registry *agent.Registry
	index    *spatial.Index
	metrics  *metrics.Metrics
	log      logx.Logger

	maxSpeedMPS float64
	updates     chan Update
}

func NewService(reg *agent.Registry, ix *spatial.Index, cfg config.IngestConfig, m *metrics.Metrics, log logx.Logger) *Service {
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = logx.Nop()
	}
	return &Service{
		registry:    reg,
		index:       ix,
		metrics:     m,
		log:         log,
		maxSpeedMPS: cfg.MaxSpeedMPS,
		updates:     make(chan Update, 1024),
	}
}

// Enqueue hands a report to the ingest worker without blocking the caller.
// Under overload the update is dropped and counted; the next report a few
// seconds later supersedes it anyway.
func (s *Service) Enqueue(u Update) error {
	if u.AgentID == "" || !geo.ValidPoint(u.Position) || u.Timestamp.IsZero() {
		return ErrBadUpdate
	}
	select {
	case s.updates <- u:
	default:
		s.metrics.RejectedUpdates.WithLabelValues("overflow").Inc()
	}
	return nil
}

// Run consumes queued updates until ctx is cancelled. A bad update never
// stops the stream.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.updates:
			s.Apply(u)
		}
	}
}

// Apply validates one update against the agent's history and, if plausible,
// writes it through to the registry and the spatial index.
func (s *Service) Apply(u Update) {
	last, known := s.registry.Get(u.AgentID)
	if known && !last.UpdatedAt.IsZero() {
		if !u.Timestamp.After(last.UpdatedAt) {
			s.metrics.RejectedUpdates.WithLabelValues("out_of_order").Inc()
			return
		}
		dt := u.Timestamp.Sub(last.UpdatedAt).Seconds()
		dist := geo.HaversineM(last.Position, u.Position)
		if dt > 0 && dist/dt > s.maxSpeedMPS {
			// Implausible jump: GPS glitch or spoofing. Keep the last
			// known-good position and surface the rejection.
			s.metrics.RejectedUpdates.WithLabelValues("implausible_jump").Inc()
			s.log.Warn("rejected implausible position jump",
				logx.String("agent_id", string(u.AgentID)),
				logx.Float64("implied_mps", dist/dt),
				logx.Float64("limit_mps", s.maxSpeedMPS))
			return
		}
	}

	a := s.registry.Report(u.AgentID, u.Position, u.Timestamp, u.SpeedMPS, u.HeadingDeg)
	if a.State != agent.StateUnavailable {
		s.index.Upsert(u.AgentID, u.Position, u.Timestamp)
	}
}

// SetAvailability flips an agent on or off shift. Going off removes it from
// the spatial index immediately; coming back re-indexes the last position.
func (s *Service) SetAvailability(id types.ID, available bool) error {
	if available {
		if err := s.registry.SetState(id, agent.StateAvailable); err != nil {
			return err
		}
		if a, ok := s.registry.Get(id); ok && !a.UpdatedAt.IsZero() {
			s.index.Upsert(id, a.Position, a.UpdatedAt)
		}
		return nil
	}
	if err := s.registry.SetState(id, agent.StateUnavailable); err != nil {
		return err
	}
	s.index.Remove(id)
	return nil
}
