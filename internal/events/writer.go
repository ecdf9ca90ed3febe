package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine.
const (
	PlayCreated             = "play.created"
	PlayUpdated             = "play.updated"
	PlayDeleted             = "play.deleted"
	OpportunityCreated      = "opportunity.created"
	OpportunityUpdated      = "opportunity.updated"
	OpportunityDeleted      = "opportunity.deleted"
	OpportunityPlayAttached = "opportunity.play.attached"
	OpportunityPlayUpdated  = "opportunity.play.updated"
	OpportunityPlayDetached = "opportunity.play.detached"
	StageUpdated            = "stage.updated"
	StageNoteAdded          = "stage.note.added"
	StageNoteUpdated        = "stage.note.updated"
	StageNoteDeleted        = "stage.note.deleted"
	DictionaryChanged       = "dictionary.changed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event in the caller's transaction so it commits or rolls
// back with the mutation it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
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
