package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// PaymentClient talks to the mobile-money provider.
type PaymentClient struct {
	c *client
}

func NewPaymentClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *PaymentClient {
	return &PaymentClient{c: newClient("payment", baseURL, apiKey, timeout, log)}
}

func (g *PaymentClient) Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResponse, error) {
	var resp payment.InitiateResponse
	if err := g.c.do(ctx, http.MethodPost, "/payments", req, &resp); err != nil {
		return nil, paymentError(err)
	}
	if resp.RequestID == "" {
		return nil, apperrors.NewUpstreamError(apperrors.ErrPaymentFailed, "provider returned no request id")
	}
	return &resp, nil
}

func (g *PaymentClient) Poll(ctx context.Context, requestID string) (*payment.PollResponse, error) {
	var resp payment.PollResponse
	if err := g.c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(requestID), nil, &resp); err != nil {
		return nil, paymentError(err)
	}
	return &resp, nil
}

// paymentError keeps the provider's message for client errors so it can be
// shown to the user.
func paymentError(err error) error {
	var se *statusError
	if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
		return apperrors.NewUpstreamError(apperrors.ErrPaymentFailed, se.Message)
	}
	if errors.As(err, &se) {
		return apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, se.Message)
	}
	return err
}
