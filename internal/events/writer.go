package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"devterminal/internal/domain"
)

// Event types appended by the engine.
const (
	RequestCreated    = "request.created"
	RequestAnalyzed   = "request.analyzed"
	RequestBuilding   = "request.building"
	RequestCompleted  = "request.completed"
	RequestFailed     = "request.failed"
	RequestReverted   = "request.reverted"
	RequestCloned     = "request.cloned"
	StepRunning       = "step.running"
	StepCompleted     = "step.completed"
	StepFailed        = "step.failed"
	ArtifactCreated   = "artifact.created"
	ArtifactCollision = "artifact.collision"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (w Writer) Append(ctx context.Context, ex Execer, evtType, requestID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(domain.TimeLayout)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO events(ts,type,request_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(requestID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
