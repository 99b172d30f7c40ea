// Package types holds the data model shared across the agent runtime:
// sessions, messages, directives and the on-disk persistence records.
package types

import (
	"sync"
	"time"
)

// Mode selects how the ReAct engine handles file mutations and delegation.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeAgent     Mode = "agent"
	ModeAgentPlus Mode = "agent-plus"
)

// PendingDiff is a proposed unified diff awaiting approve/reject. At most
// one exists per session at any time.
type PendingDiff struct {
	FilePath string `json:"filePath"`
	Diff     string `json:"diff"`
}

// Session is the unit of ReAct engine state, keyed by a client-supplied
// identifier and retained in the Session Manager's registry for the
// lifetime of the conversation.
type Session struct {
	ID            string    `json:"id"`
	Model         string    `json:"model,omitempty"`
	Mode          Mode      `json:"mode"`
	WorkspaceRoot string    `json:"workspaceRoot"`
	ParentID      string    `json:"parentID,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Messages []Message `json:"messages"`

	Pending *PendingDiff `json:"pending,omitempty"`

	RetryCount          int    `json:"retryCount"`
	PlanText            string `json:"planText,omitempty"`
	PlanTotal           int    `json:"planTotal"`
	PlanCompleted       int    `json:"planCompleted"`
	ConsecutiveFinals   int    `json:"consecutiveFinals"`
	ConsecutiveNoAction int    `json:"consecutiveNoAction"`
	CompactionCount     int    `json:"compactionCount"`
	StopRequested       bool   `json:"stopRequested"`
	DelegationDisabled  bool   `json:"delegationDisabled"`
	Step                int    `json:"step"`

	// mu guards the small set of fields another in-flight request may set
	// concurrently with the owning step loop: StopRequested (via /stop-agent)
	// and Pending (via the approve/reject decision path).
	mu sync.Mutex
}

// Lock/Unlock let callers outside the owning task safely flip StopRequested
// or consume/clear Pending without racing the step loop.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// RequestStop marks the session for cooperative termination.
func (s *Session) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopRequested = true
}

// IsStopRequested reports whether termination was requested.
func (s *Session) IsStopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopRequested
}

// SetPending records a new pending diff, replacing any existing one.
func (s *Session) SetPending(p *PendingDiff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pending = p
}

// TakePending atomically reads and clears the pending diff.
func (s *Session) TakePending() *PendingDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.Pending
	s.Pending = nil
	return p
}

// HasPending reports whether a pending diff is currently set.
func (s *Session) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Pending != nil
}
