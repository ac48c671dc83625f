package payment

import (
	"context"
	"fmt"
	"time"
)

// Status is the wizard-facing payment state stored in the session form data.
type Status string

const (
	StatusNotPaid    Status = "Not Paid"
	StatusProcessing Status = "Processing"
	StatusPaid       Status = "Paid"
)

// Valid reports whether s is a known payment status. Empty counts as NotPaid.
func (s Status) Valid() bool {
	switch s {
	case "", StatusNotPaid, StatusProcessing, StatusPaid:
		return true
	}
	return false
}

// Normalize maps the zero value to StatusNotPaid.
func (s Status) Normalize() Status {
	if s == "" {
		return StatusNotPaid
	}
	return s
}

// OracleStatus is a status reported by the payment oracle poll endpoint.
type OracleStatus string

const (
	OraclePending             OracleStatus = "pending"
	OracleCompleted           OracleStatus = "completed"
	OracleInsufficientBalance OracleStatus = "insufficient_balance"
	OracleCancelledByUser     OracleStatus = "cancelled_by_user"
	OracleTimeout             OracleStatus = "timeout"
	OracleFailed              OracleStatus = "failed"
)

// Terminal reports whether polling should stop on this status.
// Unknown statuses are terminal so a misbehaving oracle cannot keep a
// payment in Processing.
func (s OracleStatus) Terminal() bool {
	return s != OraclePending
}

// Succeeded reports whether the oracle confirmed the charge.
func (s OracleStatus) Succeeded() bool {
	return s == OracleCompleted
}

// FailureMessage is the user-facing message for a failed terminal status.
func (s OracleStatus) FailureMessage() string {
	switch s {
	case OracleInsufficientBalance:
		return "Insufficient balance in the mobile money account. Top up and try again."
	case OracleCancelledByUser:
		return "The payment request was cancelled on the phone."
	case OracleTimeout:
		return "The payment prompt expired before it was confirmed on the phone."
	case OracleFailed:
		return "The payment could not be processed. Please try again."
	case OracleCompleted, OraclePending:
		return ""
	default:
		return fmt.Sprintf("The payment ended with an unexpected status %q.", string(s))
	}
}

// BudgetExhaustedMessage is the message used when polling gives up while the
// oracle still reports pending.
func BudgetExhaustedMessage(attempts int, interval time.Duration) string {
	return fmt.Sprintf("Payment confirmation timed out after %d checks over %s. Please try again.",
		attempts, time.Duration(attempts)*interval)
}

// InitiateRequest asks the oracle to charge a mobile-money account.
type InitiateRequest struct {
	MobileNumber string `json:"mobileNumber"`
	Amount       int    `json:"amount"`
	Reference    string `json:"reference,omitempty"`
}

// InitiateResponse identifies the pending charge.
type InitiateResponse struct {
	RequestID string `json:"requestId"`
}

// PollResponse is one status reading from the oracle.
type PollResponse struct {
	Status          OracleStatus `json:"status"`
	TransactionCode string       `json:"transactionCode,omitempty"`
}

// Oracle initiates charges and reports their status.
type Oracle interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	Poll(ctx context.Context, requestID string) (*PollResponse, error)
}

// NormalizeMobileNumber converts a local or international mobile-money
// number to the 254XXXXXXXXX form. It accepts 07XXXXXXXX, 01XXXXXXXX,
// 254XXXXXXXXX and +254XXXXXXXXX; spaces and dashes are ignored.
func NormalizeMobileNumber(raw string) (string, bool) {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-':
		case c == '+' && i == 0:
		default:
			return "", false
		}
	}

	s := string(digits)
	switch {
	case len(s) == 10 && s[0] == '0' && (s[1] == '7' || s[1] == '1'):
		return "254" + s[1:], true
	case len(s) == 12 && s[:3] == "254" && (s[3] == '7' || s[3] == '1'):
		return s, true
	}
	return "", false
}
