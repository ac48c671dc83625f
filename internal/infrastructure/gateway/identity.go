package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// IdentityClient resolves taxpayer details from the identity registry.
type IdentityClient struct {
	c *client
}

func NewIdentityClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *IdentityClient {
	return &IdentityClient{c: newClient("identity", baseURL, apiKey, timeout, log)}
}

// Lookup returns blank details when the registry does not know the id.
func (g *IdentityClient) Lookup(ctx context.Context, taxID taxpayer.TaxID) (*taxpayer.Details, error) {
	var details taxpayer.Details
	err := g.c.do(ctx, http.MethodGet, "/taxpayers/"+url.PathEscape(taxID.String()), nil, &details)
	if err == nil {
		return &details, nil
	}

	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return &taxpayer.Details{}, nil
	}
	return nil, apperrors.NewUpstreamError(apperrors.ErrLookupUnavailable, err.Error())
}
