package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/filing"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// FilingClient submits returns through the filing executor.
type FilingClient struct {
	c *client
}

func NewFilingClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *FilingClient {
	return &FilingClient{c: newClient("filing", baseURL, apiKey, timeout, log)}
}

// File returns the executor's result. A 4xx response becomes an error
// result carrying the executor's message; 5xx and transport failures are
// returned as errors.
func (g *FilingClient) File(ctx context.Context, req filing.Request) (*filing.Result, error) {
	var result filing.Result
	err := g.c.do(ctx, http.MethodPost, "/filings", req, &result)
	if err == nil {
		if result.Status == "" {
			return nil, apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, "executor returned no status")
		}
		return &result, nil
	}

	var se *statusError
	if errors.As(err, &se) {
		if se.Code < http.StatusInternalServerError {
			return &filing.Result{Status: filing.ResultError, Message: se.Message}, nil
		}
		return nil, apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, se.Message)
	}
	return nil, err
}
