package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one row change on a table. Record holds the row after the
// change (the last known row for deletes) so subscribers can merge it directly.
type ChangeEvent struct {
	Table    string          `json:"table"`
	Type     ChangeType      `json:"type"`
	ID       string          `json:"id"`
	Record   json.RawMessage `json:"record,omitempty"`
	Audience []uuid.UUID     `json:"audience,omitempty"`
	At       time.Time       `json:"at"`
}

// NewEvent builds a change event. A non-empty audience restricts delivery to those users.
func NewEvent(table string, typ ChangeType, id string, record any, audience ...uuid.UUID) (ChangeEvent, error) {
	ev := ChangeEvent{
		Table:    table,
		Type:     typ,
		ID:       id,
		Audience: audience,
		At:       time.Now().UTC(),
	}
	if record != nil {
		b, err := json.Marshal(record)
		if err != nil {
			return ev, err
		}
		ev.Record = b
	}
	return ev, nil
}

func (ev ChangeEvent) visibleTo(userID uuid.UUID) bool {
	if len(ev.Audience) == 0 {
		return true
	}
	for _, u := range ev.Audience {
		if u == userID {
			return true
		}
	}
	return false
}
