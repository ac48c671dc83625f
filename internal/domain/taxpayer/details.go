package taxpayer

import (
	"context"
	"strings"
)

// Details is the identity snapshot returned by the identity lookup.
// It is embedded into the session form data and never edited by the wizard.
type Details struct {
	Name                       string `json:"name"`
	Email                      string `json:"email"`
	Mobile                     string `json:"mobile"`
	BusinessRegistrationNumber string `json:"businessRegistrationNumber,omitempty"`
	RegistrationDate           string `json:"registrationDate,omitempty"`
	PostalAddress              string `json:"postalAddress"`
	PhysicalAddress            string `json:"physicalAddress"`
}

// IsBlank reports whether the lookup resolved to no named party.
// A blank name means the tax id is unknown, not that the lookup failed.
func (d *Details) IsBlank() bool {
	return d == nil || strings.TrimSpace(d.Name) == ""
}

// Lookup resolves a tax id to the registered party.
type Lookup interface {
	// Lookup returns the details for the tax id. A transport or upstream
	// failure is returned as an error; an unknown id yields blank details.
	Lookup(ctx context.Context, taxID TaxID) (*Details, error)
}
