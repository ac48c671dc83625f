package session

import (
	"time"

	"github.com/google/uuid"
)

// Context identifies who is driving the wizard and which session they hold.
// It is passed explicitly into every lifecycle operation.
type Context struct {
	ClientID  uuid.UUID
	MountID   string
	SessionID uuid.UUID
}

// HasSession reports whether a session is bound to the context.
func (c Context) HasSession() bool {
	return c.SessionID != uuid.Nil
}

// WithSession returns a copy bound to id.
func (c Context) WithSession(id uuid.UUID) Context {
	c.SessionID = id
	return c
}

// Reconcile picks the authoritative session state: the remote record when
// there is one, otherwise the local snapshot. The second result reports
// whether the local snapshot was used.
func Reconcile(local *Snapshot, remote *Session, clientID uuid.UUID) (*Session, bool) {
	if remote != nil {
		return remote, false
	}
	if local == nil {
		return nil, false
	}
	return &Session{
		ID:             local.SessionID,
		ClientID:       clientID,
		TaxID:          local.TaxID,
		Status:         local.Status,
		CurrentStep:    local.CurrentStep,
		FormData:       local.FormData,
		LastActivityAt: local.SavedAt,
	}, true
}

// Progress is the filing progress shown while a return is submitted.
// It is derived on demand and never stored.
type Progress struct {
	LoggedIn   bool `json:"loggedIn"`
	Filing     bool `json:"filing"`
	Extracting bool `json:"extracting"`
	Completed  bool `json:"completed"`
}

// DeriveProgress projects the session status onto filing progress flags.
func DeriveProgress(s *Session, filingInFlight bool) Progress {
	switch {
	case s == nil:
		return Progress{}
	case s.Status == StatusCompleted:
		return Progress{LoggedIn: true, Filing: true, Extracting: true, Completed: true}
	case s.Status == StatusActive && filingInFlight:
		return Progress{LoggedIn: true, Filing: true}
	default:
		return Progress{}
	}
}

// IdleFor reports how long the session has gone without activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}
