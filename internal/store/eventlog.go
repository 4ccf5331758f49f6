package store

import (
	"context"
	"encoding/json"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// Event is one row of the audit trail appended after every task-kernel
// transition, narrowed to microfactory's session/step vocabulary.
type Event struct {
	ID        int64
	SessionID string
	StepID    string
	Type      string
	Payload   json.RawMessage
	Timestamp int64
	Sequence  int64
}

// AppendEvent inserts one audit event, assigning it the next per-session
// sequence number.
func (s *LibSQLStore) AppendEvent(ctx context.Context, ev *Event) error {
	var nextSeq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`, ev.SessionID,
	).Scan(&nextSeq)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "compute event sequence: %s", err.Error()).WithCause(err).WithSession(ev.SessionID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, step_id, event_type, payload, timestamp, sequence) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionID, nullIfEmpty(ev.StepID), ev.Type, string(ev.Payload), ev.Timestamp, nextSeq,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePersistence, "append event: %s", err.Error()).WithCause(err).WithSession(ev.SessionID)
	}
	ev.Sequence = nextSeq
	return nil
}

// ListEvents returns every event recorded for a session, in sequence
// order.
func (s *LibSQLStore) ListEvents(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, COALESCE(step_id, ''), event_type, COALESCE(payload, ''), timestamp, sequence
		 FROM events WHERE session_id = ? ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePersistence, "list events for %s: %s", sessionID, err.Error()).WithCause(err).WithSession(sessionID)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var payload string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.StepID, &ev.Type, &payload, &ev.Timestamp, &ev.Sequence); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodePersistence, "scan event row: %s", err.Error()).WithCause(err).WithSession(sessionID)
		}
		if payload != "" {
			ev.Payload = json.RawMessage(payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
