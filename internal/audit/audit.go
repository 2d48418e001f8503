// Package audit persists admin action events. The sink is optional: with no
// database configured every call is a no-op, mirroring how the rest of the
// service treats Postgres.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Event struct {
	Action         string // e.g. lead.convert, invitation.send
	OrganizationID string
	ActorSub       string
	RequestID      string
	Status         string // ok | denied | failed
	Detail         string
	Duration       time.Duration
}

type Recorder struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func New(pool *pgxpool.Pool, log *zap.SugaredLogger) *Recorder {
	return &Recorder{pool: pool, log: log}
}

func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS admin_events (
		id BIGSERIAL PRIMARY KEY,
		action TEXT NOT NULL,
		organization_id TEXT,
		actor_sub TEXT,
		request_id TEXT,
		status TEXT NOT NULL,
		detail TEXT,
		duration_ms BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

// Record is best-effort; a failed insert is logged, never surfaced.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r.pool == nil {
		return
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_events(action, organization_id, actor_sub, request_id, status, detail, duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, e.Action, e.OrganizationID, e.ActorSub, e.RequestID, e.Status, e.Detail, e.Duration.Milliseconds())
	if err != nil {
		r.log.Warnw("audit insert failed", "action", e.Action, "err", err)
	}
}
