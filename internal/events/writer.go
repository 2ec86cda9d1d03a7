package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended to the log.
const (
	ReportSaved         = "report.saved"
	PhotoAdded          = "photo.added"
	ExportStarted       = "export.started"
	ExportCompleted     = "export.completed"
	ExportFailed        = "export.failed"
	ExportPersistFailed = "export.persist_failed"
	CertificateEmailed  = "certificate.emailed"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts one event using tx, which may be a *sql.DB or *sql.Tx.
func (w Writer) Append(ctx context.Context, tx Execer, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
