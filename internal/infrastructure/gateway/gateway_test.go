package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/filing"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestIdentityLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		switch r.URL.Path {
		case "/taxpayers/A123456789Z":
			writeJSON(w, http.StatusOK, taxpayer.Details{Name: "Jane Doe", Email: "jane@example.com"})
		case "/taxpayers/A000000000Z":
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "unknown"})
		default:
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "registry down"})
		}
	}))
	defer srv.Close()

	g := NewIdentityClient(srv.URL, "key", time.Second, logger.NewNop())
	ctx := context.Background()

	details, err := g.Lookup(ctx, "A123456789Z")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", details.Name)

	details, err = g.Lookup(ctx, "A000000000Z")
	require.NoError(t, err)
	assert.True(t, details.IsBlank())

	_, err = g.Lookup(ctx, "P111111111Q")
	assert.ErrorIs(t, err, apperrors.ErrLookupUnavailable)
	assert.Contains(t, err.Error(), "registry down")
}

func TestIdentityLookupTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	g := NewIdentityClient(srv.URL, "", time.Second, logger.NewNop())
	_, err := g.Lookup(context.Background(), "A123456789Z")
	assert.ErrorIs(t, err, apperrors.ErrLookupUnavailable)
}

func TestPaymentClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/payments":
			var req payment.InitiateRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.MobileNumber == "254700000000" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "number not registered"})
				return
			}
			assert.Equal(t, 50, req.Amount)
			writeJSON(w, http.StatusOK, payment.InitiateResponse{RequestID: "req-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/payments/req-1":
			writeJSON(w, http.StatusOK, payment.PollResponse{Status: payment.OracleCompleted, TransactionCode: "TX1"})
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "maintenance"})
		}
	}))
	defer srv.Close()

	g := NewPaymentClient(srv.URL, "", time.Second, logger.NewNop())
	ctx := context.Background()

	resp, err := g.Initiate(ctx, payment.InitiateRequest{MobileNumber: "254712345678", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.RequestID)

	_, err = g.Initiate(ctx, payment.InitiateRequest{MobileNumber: "254700000000", Amount: 50})
	assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)
	assert.Contains(t, err.Error(), "number not registered")

	poll, err := g.Poll(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, poll.Status.Succeeded())
	assert.Equal(t, "TX1", poll.TransactionCode)

	_, err = g.Poll(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestFilingClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req filing.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.CredentialSecret {
		case "good":
			writeJSON(w, http.StatusOK, filing.Result{Status: filing.ResultSuccess, ReceiptNumber: "KRA-1", Message: "filed"})
		case "locked":
			writeJSON(w, http.StatusOK, filing.Result{Status: filing.ResultError, Message: "account locked", Fatal: true})
		case "bad":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "invalid password"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "portal down"})
		}
	}))
	defer srv.Close()

	g := NewFilingClient(srv.URL, "", time.Second, logger.NewNop())
	ctx := context.Background()

	res, err := g.File(ctx, filing.Request{TaxID: "A123456789Z", CredentialSecret: "good"})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "KRA-1", res.ReceiptNumber)

	res, err = g.File(ctx, filing.Request{TaxID: "A123456789Z", CredentialSecret: "locked"})
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.True(t, res.Fatal)

	res, err = g.File(ctx, filing.Request{TaxID: "A123456789Z", CredentialSecret: "bad"})
	require.NoError(t, err)
	assert.Equal(t, filing.ResultError, res.Status)
	assert.Equal(t, "invalid password", res.Message)

	_, err = g.File(ctx, filing.Request{TaxID: "A123456789Z", CredentialSecret: "x"})
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}
