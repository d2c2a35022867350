// README: Archive store backed by PostgreSQL.
package archive

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) SaveOutcome(ctx context.Context, o Outcome) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO request_outcomes (
            request_id, agent_id, status, reason, rounds,
            created_at, resolved_at, latency_ms
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8
        )
        ON CONFLICT (request_id) DO NOTHING`,
		string(o.RequestID),
		toStringPtr(o.AgentID),
		o.Status,
		o.Reason,
		o.Rounds,
		o.CreatedAt,
		o.ResolvedAt,
		o.LatencyMs,
	)
	return err
}

func (s *PGStore) AppendEvent(ctx context.Context, e Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO request_events (
            request_id, from_status, to_status, agent_id, created_at
        ) VALUES ($1, $2, $3, $4, $5)`,
		string(e.RequestID),
		e.FromStatus,
		e.ToStatus,
		toStringPtr(e.AgentID),
		e.CreatedAt,
	)
	return err
}

func toStringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
