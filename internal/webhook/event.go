package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types Linear delivers.
const (
	TypeIssue      = "Issue"
	TypeComment    = "Comment"
	TypeIssueLabel = "IssueLabel"
	TypeReaction   = "Reaction"
	TypeProject    = "Project"
)

// Event actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// Event is the envelope of a Linear webhook delivery. Only the fields the
// receiver acts on are decoded; Data keeps the raw payload.
type Event struct {
	Type             string          `json:"type"`
	Action           string          `json:"action"`
	Data             json.RawMessage `json:"data"`
	URL              string          `json:"url,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	WebhookTimestamp int64           `json:"webhookTimestamp,omitempty"` // unix ms
	OrganizationID   string          `json:"organizationId,omitempty"`
}

type eventData struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier,omitempty"`
}

// ParseEvent decodes a delivery body.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if ev.Type == "" {
		return nil, errors.New("decoding event: missing type")
	}
	return &ev, nil
}

// DataID returns data.id from the payload.
func (e *Event) DataID() (string, error) {
	if len(e.Data) == 0 {
		return "", errors.New("event has no data")
	}
	var d eventData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return "", fmt.Errorf("decoding event data: %w", err)
	}
	if d.ID == "" {
		return "", errors.New("event data has no id")
	}
	return d.ID, nil
}
