package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Patch lists the columns to change in an update; nil fields are untouched.
type Patch struct {
	TaxID          *string
	Status         *Status
	CurrentStep    *int
	FormData       *FormData
	LastActivityAt *time.Time
	CompletedAt    *time.Time
	ErrorMessage   *string
}

// PatchFrom builds a patch carrying every mutable column of s.
func PatchFrom(s *Session) Patch {
	taxID := s.TaxID
	status := s.Status
	step := s.CurrentStep
	form := s.FormData
	last := s.LastActivityAt
	return Patch{
		TaxID:          &taxID,
		Status:         &status,
		CurrentStep:    &step,
		FormData:       &form,
		LastActivityAt: &last,
		CompletedAt:    s.CompletedAt,
		ErrorMessage:   s.ErrorMessage,
	}
}

// Apply writes the patch onto s.
func (p Patch) Apply(s *Session) {
	if p.TaxID != nil {
		s.TaxID = *p.TaxID
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.CurrentStep != nil {
		s.CurrentStep = *p.CurrentStep
	}
	if p.FormData != nil {
		s.FormData = *p.FormData
	}
	if p.LastActivityAt != nil {
		s.LastActivityAt = *p.LastActivityAt
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		s.CompletedAt = &t
	}
	if p.ErrorMessage != nil {
		m := *p.ErrorMessage
		s.ErrorMessage = &m
	}
}

// Filter selects sessions; zero-valued fields match everything.
type Filter struct {
	ClientID uuid.UUID
	Status   Status
	TaxID    string
}

// Matches reports whether s satisfies the filter.
func (f Filter) Matches(s *Session) bool {
	if f.ClientID != uuid.Nil && s.ClientID != f.ClientID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.TaxID != "" && s.TaxID != f.TaxID {
		return false
	}
	return true
}

// ChangeOp is the kind of row change delivered to subscribers.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// ChangeEvent is a notification that a session row changed.
type ChangeEvent struct {
	Op        ChangeOp  `json:"op"`
	SessionID uuid.UUID `json:"id"`
	Status    Status    `json:"status"`
}

// Repository is the authoritative record store for sessions.
// Updates to terminal sessions fail with ErrSessionTerminal.
type Repository interface {
	Insert(ctx context.Context, s *Session) error
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	SelectWhere(ctx context.Context, filter Filter) ([]*Session, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)

	// Subscribe calls fn for every change until ctx is done. It blocks.
	Subscribe(ctx context.Context, fn func(ChangeEvent)) error
}

// Snapshot is the client-local shadow of a session.
type Snapshot struct {
	SessionID   uuid.UUID `json:"sessionId"`
	TaxID       string    `json:"taxId,omitempty"`
	Status      Status    `json:"status"`
	CurrentStep int       `json:"currentStep"`
	FormData    FormData  `json:"formData"`
	SavedAt     time.Time `json:"savedAt"`
}

// SnapshotOf captures s for the local cache.
func SnapshotOf(s *Session, now time.Time) *Snapshot {
	return &Snapshot{
		SessionID:   s.ID,
		TaxID:       s.TaxID,
		Status:      s.Status,
		CurrentStep: s.CurrentStep,
		FormData:    s.FormData,
		SavedAt:     now.UTC(),
	}
}

// Cache is the per-client ephemeral store. It is never authoritative.
type Cache interface {
	// Load returns ErrCacheMiss when nothing is cached for the client.
	Load(ctx context.Context, clientID uuid.UUID) (*Snapshot, error)
	Save(ctx context.Context, clientID uuid.UUID, snap *Snapshot) error
	Clear(ctx context.Context, clientID uuid.UUID) error

	// ClaimMount records sessionID as the prospect for a wizard mount. If the
	// mount was already claimed it returns the existing id and false.
	ClaimMount(ctx context.Context, clientID uuid.UUID, mountID string, sessionID uuid.UUID) (uuid.UUID, bool, error)
}
