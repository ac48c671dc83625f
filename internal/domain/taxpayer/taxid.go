package taxpayer

import (
	"strings"

	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

// TaxIDLength is the fixed length of a tax identifier.
const TaxIDLength = 11

// Category is the taxpayer category encoded in the tax id prefix.
type Category string

const (
	CategoryIndividual Category = "individual"
	CategoryBusiness   Category = "business"
)

var prefixCategories = map[byte]Category{
	'A': CategoryIndividual,
	'P': CategoryBusiness,
}

// FormatError reports why a tax id was rejected.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return apperrors.ErrInvalidTaxID.Error() + ": " + e.Reason
}

func (e *FormatError) Unwrap() error {
	return apperrors.ErrInvalidTaxID
}

var (
	ErrTaxIDRequired = &FormatError{Reason: "required"}
	ErrTaxIDPrefix   = &FormatError{Reason: "bad prefix"}
	ErrTaxIDLength   = &FormatError{Reason: "bad length"}
	ErrTaxIDBody     = &FormatError{Reason: "bad body"}
	ErrTaxIDSuffix   = &FormatError{Reason: "bad suffix"}
)

// TaxID is a validated, upper-cased tax identifier.
type TaxID string

// ParseTaxID validates raw input and returns the normalized id.
// Checks run in a fixed order and stop at the first failure: presence,
// prefix, length, body digits, suffix letter. The prefix is checked before
// the length so a short string with a wrong prefix reports the prefix.
func ParseTaxID(raw string) (TaxID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrTaxIDRequired
	}

	s = strings.ToUpper(s)
	if _, ok := prefixCategories[s[0]]; !ok {
		return "", ErrTaxIDPrefix
	}

	if len(s) != TaxIDLength {
		return "", ErrTaxIDLength
	}

	for i := 1; i < TaxIDLength-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", ErrTaxIDBody
		}
	}

	last := s[TaxIDLength-1]
	if last < 'A' || last > 'Z' {
		return "", ErrTaxIDSuffix
	}

	return TaxID(s), nil
}

// Category returns the taxpayer category for the id prefix.
func (t TaxID) Category() Category {
	if t == "" {
		return ""
	}
	return prefixCategories[t[0]]
}

func (t TaxID) String() string {
	return string(t)
}

// Masked hides the body of the id for logs.
func (t TaxID) Masked() string {
	return Mask(string(t))
}

// Mask keeps the first and last character of an id and hides the rest.
func Mask(id string) string {
	if len(id) <= 2 {
		return strings.Repeat("*", len(id))
	}
	return id[:1] + strings.Repeat("*", len(id)-2) + id[len(id)-1:]
}
