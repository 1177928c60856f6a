package archdoc

import (
	"encoding/json"
	"time"
)

// Event types delivered to an EventHook.
const (
	EventViewOpened     = "view_opened"
	EventViewState      = "view_state"
	EventViewEdited     = "view_edited"
	EventViewClosed     = "view_closed"
	EventProjectSaved   = "project_saved"
	EventProjectDeleted = "project_deleted"
)

// Event is a view or project lifecycle notification.
type Event struct {
	Type      string    `json:"type"`
	ViewID    string    `json:"view_id"`
	State     string    `json:"state"`
	Stage     string    `json:"stage,omitempty"`
	ProjectID string    `json:"project_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// AgentReply is a design agent's answer. Response is normalized by archdoc
// before use; it may be a JSON object or a string holding one.
type AgentReply struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}
