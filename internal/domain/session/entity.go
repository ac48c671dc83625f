package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

// Status is the lifecycle state of a wizard session.
type Status string

const (
	StatusProspect  Status = "prospect"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusError     Status = "error"
)

// AllStatuses lists every status, in lifecycle order.
var AllStatuses = []Status{StatusProspect, StatusActive, StatusCompleted, StatusAbandoned, StatusError}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned || s == StatusError
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// FirstStep is the tax id entry step.
const FirstStep = 1

// TimerStartStep is the step from which the inactivity timer runs.
const TimerStartStep = 2

// Session is one filing attempt by one client.
type Session struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	TaxID          string
	Status         Status
	CurrentStep    int
	FormData       FormData
	CreatedAt      time.Time
	LastActivityAt time.Time
	CompletedAt    *time.Time
	ErrorMessage   *string
}

// NewProspect creates a session for a freshly mounted wizard.
func NewProspect(clientID uuid.UUID, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:             uuid.New(),
		ClientID:       clientID,
		Status:         StatusProspect,
		CurrentStep:    FirstStep,
		FormData:       FormData{Version: FormDataVersion},
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Clone returns a deep copy so callers can stage changes before persisting.
func (s *Session) Clone() *Session {
	c := *s
	if s.FormData.Identity != nil {
		id := *s.FormData.Identity
		c.FormData.Identity = &id
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.ErrorMessage != nil {
		m := *s.ErrorMessage
		c.ErrorMessage = &m
	}
	return &c
}

// Activate binds the session to a tax id once identity has resolved.
func (s *Session) Activate(taxID taxpayer.TaxID, details *taxpayer.Details, now time.Time) error {
	if s.Status != StatusProspect {
		return s.transitionError()
	}
	if details.IsBlank() {
		return apperrors.ErrTaxpayerNotFound
	}
	s.TaxID = taxID.String()
	s.Status = StatusActive
	s.FormData = s.FormData.Merge(FormData{Identity: details})
	s.LastActivityAt = now.UTC()
	return nil
}

// ResetIdentity sends a prospect back to step 1 with no identity captured.
func (s *Session) ResetIdentity(now time.Time) error {
	if s.Status != StatusProspect {
		return s.transitionError()
	}
	s.TaxID = ""
	s.CurrentStep = FirstStep
	s.FormData = s.FormData.WithoutIdentity()
	s.LastActivityAt = now.UTC()
	return nil
}

// Advance moves an active session one step forward.
func (s *Session) Advance(totalSteps int, now time.Time) error {
	if s.Status != StatusActive {
		return s.transitionError()
	}
	if s.CurrentStep >= totalSteps {
		return apperrors.ErrStepOutOfRange
	}
	s.CurrentStep++
	s.LastActivityAt = now.UTC()
	return nil
}

// Merge applies a user patch to the form data after validating the result.
func (s *Session) Merge(patch FormPatch, now time.Time) error {
	if s.Status.Terminal() {
		return apperrors.ErrSessionTerminal
	}
	merged := s.FormData.Apply(patch)
	if err := merged.Validate(); err != nil {
		return err
	}
	s.FormData = merged
	s.LastActivityAt = now.UTC()
	return nil
}

// Touch records qualifying user activity.
func (s *Session) Touch(now time.Time) error {
	if s.Status.Terminal() {
		return apperrors.ErrSessionTerminal
	}
	s.LastActivityAt = now.UTC()
	return nil
}

// Finalize moves the session to a terminal status. receipt is stored only
// for StatusCompleted, detail only for StatusError.
func (s *Session) Finalize(outcome Status, detail, receipt string, now time.Time) error {
	if s.Status.Terminal() {
		return apperrors.ErrSessionTerminal
	}
	if !outcome.Terminal() {
		return apperrors.ErrInvalidTransition
	}
	if outcome == StatusCompleted && s.Status != StatusActive {
		return s.transitionError()
	}
	if outcome == StatusError && s.Status != StatusActive {
		return s.transitionError()
	}

	now = now.UTC()
	s.Status = outcome
	s.CompletedAt = &now
	s.LastActivityAt = now
	switch outcome {
	case StatusCompleted:
		s.FormData.ReceiptNumber = receipt
	case StatusError:
		if detail == "" {
			detail = "unrecoverable error"
		}
		s.ErrorMessage = &detail
	}
	return nil
}

// IsIdle reports whether an active session has gone without activity for
// longer than timeout.
func (s *Session) IsIdle(now time.Time, timeout time.Duration) bool {
	return s.Status == StatusActive && now.Sub(s.LastActivityAt) > timeout
}

// TimerRunning reports whether the inactivity timer applies to the session.
func (s *Session) TimerRunning() bool {
	return s.Status == StatusActive && s.CurrentStep >= TimerStartStep
}

// Expired reports whether the session's own inactivity timer has run out.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return s.TimerRunning() && s.IsIdle(now, timeout)
}

func (s *Session) transitionError() error {
	if s.Status.Terminal() {
		return apperrors.ErrSessionTerminal
	}
	return apperrors.ErrInvalidTransition
}
