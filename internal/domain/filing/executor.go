package filing

import "context"

// ResultStatus is the outcome reported by the filing executor.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Request asks the executor to submit a return for the tax id.
// CredentialSecret is passed through once and never persisted.
type Request struct {
	TaxID            string `json:"taxId"`
	CredentialSecret string `json:"credentialSecret"`
}

// Result is the executor response.
type Result struct {
	Status        ResultStatus `json:"status"`
	ReceiptNumber string       `json:"receiptNumber,omitempty"`
	Message       string       `json:"message"`
	// Fatal marks an error the user cannot fix by retrying with different
	// credentials; the session moves to error.
	Fatal bool `json:"fatal,omitempty"`
}

// Succeeded reports whether the return was filed.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == ResultSuccess
}

// Executor performs the regulatory submission.
type Executor interface {
	File(ctx context.Context, req Request) (*Result, error)
}
