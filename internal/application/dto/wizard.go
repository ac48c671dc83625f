package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
)

// Outcomes reported by tax id submission and conflict resolution.
const (
	OutcomeCreated   = "created"
	OutcomeActivated = "activated"
	OutcomeResumed   = "resumed"
	OutcomeConflict  = "conflict"
	OutcomeResumable = "resumable"
	OutcomeClear     = "clear"
	OutcomeRestored  = "restored"
	OutcomeNotFound  = "taxpayer_not_found"
	OutcomeAdvanced  = "advanced"
	OutcomeSaved     = "saved"
	OutcomeTouched   = "touched"
	OutcomeAbandoned = "abandoned"
)

// WizardView is the client-facing projection of a session.
type WizardView struct {
	SessionID      uuid.UUID        `json:"session_id"`
	Status         session.Status   `json:"status"`
	TaxID          string           `json:"tax_id,omitempty"`
	CurrentStep    int              `json:"current_step"`
	TotalSteps     int              `json:"total_steps"`
	FormData       session.FormData `json:"form_data"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	FilingProgress session.Progress `json:"filing_progress"`
	TimerRunning   bool             `json:"timer_running"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// ConflictView describes the competing session shown to the user.
type ConflictView struct {
	SessionID      uuid.UUID `json:"session_id"`
	TaxID          string    `json:"tax_id"`
	Name           string    `json:"name,omitempty"`
	CurrentStep    int       `json:"current_step"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// WizardResponse is returned by every lifecycle operation. Context is the
// session context the caller should hold from now on.
type WizardResponse struct {
	Outcome   string          `json:"outcome"`
	Message   string          `json:"message,omitempty"`
	Wizard    *WizardView     `json:"wizard,omitempty"`
	Conflict  *ConflictView   `json:"conflict,omitempty"`
	// FromCache is set when the record store was unreachable and the view
	// was rebuilt from the local snapshot.
	FromCache bool            `json:"from_cache,omitempty"`
	Context   session.Context `json:"-"`
}

// SubmitTaxIDRequest carries the raw tax id. It is validated by the service
// so format errors keep their exact messages.
type SubmitTaxIDRequest struct {
	TaxID string `json:"tax_id"`
}

// Conflict decisions.
const (
	DecisionProceed = "proceed"
	DecisionCancel  = "cancel"
)

// ResolveConflictRequest carries the user's decision. TaxID is required to
// proceed; ConflictSessionID optionally pins the session to restore on cancel.
type ResolveConflictRequest struct {
	Decision          string     `json:"decision" binding:"required,oneof=proceed cancel"`
	TaxID             string     `json:"tax_id"`
	ConflictSessionID *uuid.UUID `json:"conflict_session_id,omitempty"`
}

// FormPatchRequest overlays user-entered form fields on the session.
type FormPatchRequest struct {
	FormData session.FormPatch `json:"form_data"`
}

// InitiatePaymentRequest starts a mobile-money charge.
type InitiatePaymentRequest struct {
	MobileNumber string `json:"mobile_number"`
}

// PaymentStatusResponse reports the payment sub-flow state.
type PaymentStatusResponse struct {
	SessionID       uuid.UUID      `json:"session_id"`
	Status          payment.Status `json:"status"`
	RequestID       string         `json:"request_id,omitempty"`
	TransactionCode string         `json:"transaction_code,omitempty"`
	Message         string         `json:"message,omitempty"`
	Tracking        bool           `json:"tracking"`
}

// FileReturnRequest carries the portal credential; it is never stored.
type FileReturnRequest struct {
	CredentialSecret string `json:"credential_secret"`
}

// FilingResponse reports the filing executor result.
type FilingResponse struct {
	Status        string      `json:"status"`
	ReceiptNumber string      `json:"receipt_number,omitempty"`
	Message       string      `json:"message"`
	Wizard        *WizardView `json:"wizard"`
}

// FilingStatusResponse is the filing progress projection.
type FilingStatusResponse struct {
	SessionID uuid.UUID        `json:"session_id"`
	Status    session.Status   `json:"status"`
	Progress  session.Progress `json:"progress"`
}

// StatsResponse holds aggregate session counters.
type StatsResponse struct {
	Counts    map[session.Status]int `json:"counts"`
	Total     int                    `json:"total"`
	UpdatedAt time.Time              `json:"updated_at"`
}
