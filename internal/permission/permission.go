// Package permission provides permission control for tool execution.
package permission

import "github.com/rushi32/IsoCode/pkg/types"

// PermissionAction is an alias of types.PermissionAction: the Tool
// Dispatcher's policy table and the Checker that enforces it share one
// vocabulary (spec §4.4 step 2: policy ∈ {always, ask, never}) instead of
// the dispatcher translating between two parallel enums.
type PermissionAction = types.PermissionAction

const (
	ActionAlways = types.ActionAlways
	ActionAsk    = types.ActionAsk
	ActionNever  = types.ActionNever
)

// PermissionType represents the type of permission being checked.
type PermissionType string

const (
	PermBash        PermissionType = "bash"
	PermEdit        PermissionType = "edit"
	PermWebFetch    PermissionType = "webfetch"
	PermExternalDir PermissionType = "external_directory"
	PermDoomLoop    PermissionType = "doom_loop"
)

// Request represents a request for permission.
type Request struct {
	ID        string         `json:"id"`
	Type      PermissionType `json:"type"`
	Pattern   []string       `json:"pattern,omitempty"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	CallID    string         `json:"callID,omitempty"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Response represents a user's response to a permission request.
type Response struct {
	RequestID string `json:"requestID"`
	Action    string `json:"action"` // "once" | "always" | "reject"
}

// RejectedError is returned when permission is denied.
type RejectedError struct {
	SessionID string
	Type      PermissionType
	CallID    string
	Metadata  map[string]any
	Message   string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// IsRejectedError checks if an error is a permission rejection.
func IsRejectedError(err error) bool {
	_, ok := err.(*RejectedError)
	return ok
}

