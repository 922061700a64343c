package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const archiveSchema = `
create table if not exists audit_events (
    id          text primary key,
    event_type  text not null,
    severity    text not null,
    occurred_at timestamptz not null,
    actor       text not null,
    target      text,
    details     jsonb not null,
    metadata    jsonb
)`

// PGArchive writes audit events to Postgres through database/sql. It is
// the durable sink behind the in-memory ring's retention window.
type PGArchive struct {
	db *sql.DB
}

// NewPGArchive wraps an open database handle.
func NewPGArchive(db *sql.DB) (*PGArchive, error) {
	if db == nil {
		return nil, errors.New("audit: database handle is required")
	}
	return &PGArchive{db: db}, nil
}

// EnsureSchema creates the audit_events table when missing.
func (p *PGArchive) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Archive inserts one event. Events are immutable; conflicts on id are
// rejected by the primary key.
func (p *PGArchive) Archive(ctx context.Context, ev Event) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	var metadata []byte
	if len(ev.Metadata) > 0 {
		metadata, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	const q = `insert into audit_events (id, event_type, severity, occurred_at, actor, target, details, metadata)
        values ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = p.db.ExecContext(ctx, q,
		ev.ID, string(ev.Type), string(ev.Severity), ev.Timestamp,
		ev.Actor, nullable(ev.Target), details, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
