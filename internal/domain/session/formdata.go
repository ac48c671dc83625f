package session

import (
	"strings"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

// FormDataVersion is the current shape of FormData as persisted in JSON.
const FormDataVersion = 1

const maxFieldLength = 256

// FormData is everything the wizard has captured so far. Fields are grouped
// by the step that fills them; zero values mean "not captured yet".
type FormData struct {
	Version int `json:"version"`

	// Step 1: identity snapshot from the lookup.
	Identity *taxpayer.Details `json:"identity,omitempty"`

	// Step 2: contacts confirmed by the user.
	ContactEmail  string `json:"contactEmail,omitempty"`
	ContactMobile string `json:"contactMobile,omitempty"`

	// Step 3: mobile-money payment.
	MobileMoneyNumber string         `json:"mobileMoneyNumber,omitempty"`
	PaymentStatus     payment.Status `json:"paymentStatus,omitempty"`
	PaymentRequestID  string         `json:"paymentRequestId,omitempty"`
	TransactionCode   string         `json:"transactionCode,omitempty"`
	PaymentError      string         `json:"paymentError,omitempty"`

	// Step 4: filing.
	ReceiptNumber string `json:"receiptNumber,omitempty"`
	FilingMessage string `json:"filingMessage,omitempty"`
}

// FormPatch holds the fields a user fills in. Identity, payment and filing
// fields are written by the server only.
type FormPatch struct {
	ContactEmail      string `json:"contactEmail,omitempty"`
	ContactMobile     string `json:"contactMobile,omitempty"`
	MobileMoneyNumber string `json:"mobileMoneyNumber,omitempty"`
}

// Apply overlays the non-empty user fields of patch onto a copy of f.
func (f FormData) Apply(patch FormPatch) FormData {
	out := f
	out.Version = FormDataVersion
	overlay(&out.ContactEmail, patch.ContactEmail)
	overlay(&out.ContactMobile, patch.ContactMobile)
	overlay(&out.MobileMoneyNumber, patch.MobileMoneyNumber)
	return out
}

// Merge overlays the non-empty fields of patch onto a copy of f.
// Fields already captured are never truncated by an empty patch value.
// Server-side only; user input goes through Apply.
func (f FormData) Merge(patch FormData) FormData {
	out := f
	out.Version = FormDataVersion

	if patch.Identity != nil {
		id := *patch.Identity
		out.Identity = &id
	}
	overlay(&out.ContactEmail, patch.ContactEmail)
	overlay(&out.ContactMobile, patch.ContactMobile)
	overlay(&out.MobileMoneyNumber, patch.MobileMoneyNumber)
	if patch.PaymentStatus != "" {
		out.PaymentStatus = patch.PaymentStatus
	}
	overlay(&out.PaymentRequestID, patch.PaymentRequestID)
	overlay(&out.TransactionCode, patch.TransactionCode)
	overlay(&out.PaymentError, patch.PaymentError)
	overlay(&out.ReceiptNumber, patch.ReceiptNumber)
	overlay(&out.FilingMessage, patch.FilingMessage)
	return out
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks every captured field.
func (f FormData) Validate() error {
	errs := &apperrors.ValidationErrors{}

	if f.ContactEmail != "" && !looksLikeEmail(f.ContactEmail) {
		errs.Add("contactEmail", "must be a valid email address")
	}
	if f.ContactMobile != "" {
		if _, ok := payment.NormalizeMobileNumber(f.ContactMobile); !ok {
			errs.Add("contactMobile", "must be a valid mobile number")
		}
	}
	if f.MobileMoneyNumber != "" {
		if _, ok := payment.NormalizeMobileNumber(f.MobileMoneyNumber); !ok {
			errs.Add("mobileMoneyNumber", "must be a valid mobile money number")
		}
	}
	if !f.PaymentStatus.Valid() {
		errs.Add("paymentStatus", "unknown payment status")
	}

	for field, v := range map[string]string{
		"contactEmail":      f.ContactEmail,
		"contactMobile":     f.ContactMobile,
		"mobileMoneyNumber": f.MobileMoneyNumber,
		"transactionCode":   f.TransactionCode,
		"receiptNumber":     f.ReceiptNumber,
	} {
		if len(v) > maxFieldLength {
			errs.Add(field, "too long")
		}
	}

	return errs.OrNil()
}

// WithoutIdentity returns a copy with the identity snapshot removed.
func (f FormData) WithoutIdentity() FormData {
	out := f
	out.Identity = nil
	return out
}

// Payment returns the normalized payment status.
func (f FormData) Payment() payment.Status {
	return f.PaymentStatus.Normalize()
}

func looksLikeEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	if at < 1 || at == len(s)-1 {
		return false
	}
	return strings.Contains(s[at+1:], ".") && !strings.ContainsAny(s, " \t")
}
