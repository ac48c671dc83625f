package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/filing"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// paidSession activates a session and marks it paid.
func paidSession(f *fixture) session.Context {
	sc := f.activate("m1", taxA)
	f.setPayment(sc.SessionID, payment.StatusPaid)
	return sc
}

func TestFileReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("success completes the session", func(t *testing.T) {
		f := newFixture(t)
		exec := &fakeExecutor{result: &filing.Result{Status: filing.ResultSuccess, ReceiptNumber: "KRA202600001", Message: "Return filed"}}
		fs := NewFilingService(f.svc, f.repo, exec, logger.NewNop())
		sc := paidSession(f)

		resp, err := fs.File(ctx, sc, "s3cret")
		require.NoError(t, err)
		assert.Equal(t, string(filing.ResultSuccess), resp.Status)
		assert.Equal(t, "KRA202600001", resp.ReceiptNumber)
		assert.Equal(t, session.StatusCompleted, resp.Wizard.Status)
		assert.Equal(t, session.Progress{LoggedIn: true, Filing: true, Extracting: true, Completed: true}, resp.Wizard.FilingProgress)

		assert.Equal(t, taxA, exec.got.TaxID)
		assert.Equal(t, "s3cret", exec.got.CredentialSecret)

		stored := f.get(sc.SessionID)
		assert.Equal(t, session.StatusCompleted, stored.Status)
		assert.Equal(t, "KRA202600001", stored.FormData.ReceiptNumber)
		assert.NotNil(t, stored.CompletedAt)

		_, err = fs.File(ctx, sc, "s3cret")
		assert.ErrorIs(t, err, apperrors.ErrSessionTerminal)
	})

	t.Run("fatal error finalizes as error", func(t *testing.T) {
		f := newFixture(t)
		exec := &fakeExecutor{result: &filing.Result{Status: filing.ResultError, Message: "Return already filed for this period", Fatal: true}}
		fs := NewFilingService(f.svc, f.repo, exec, logger.NewNop())
		sc := paidSession(f)

		resp, err := fs.File(ctx, sc, "s3cret")
		require.NoError(t, err)
		assert.Equal(t, string(filing.ResultError), resp.Status)
		assert.Equal(t, session.StatusError, resp.Wizard.Status)
		assert.Equal(t, "Return already filed for this period", resp.Wizard.ErrorMessage)

		stored := f.get(sc.SessionID)
		assert.Equal(t, session.StatusError, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "Return already filed for this period", *stored.ErrorMessage)
	})

	t.Run("rejection keeps the session active", func(t *testing.T) {
		f := newFixture(t)
		exec := &fakeExecutor{result: &filing.Result{Status: filing.ResultError, Message: "Invalid iTax password"}}
		fs := NewFilingService(f.svc, f.repo, exec, logger.NewNop())
		sc := paidSession(f)

		_, err := fs.File(ctx, sc, "wrong")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrFilingRejected)

		var ue *apperrors.UpstreamError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "Invalid iTax password", ue.Message)

		stored := f.get(sc.SessionID)
		assert.Equal(t, session.StatusActive, stored.Status)
		assert.Equal(t, "Invalid iTax password", stored.FormData.FilingMessage)
		assert.Equal(t, payment.StatusPaid, stored.FormData.Payment())
	})

	t.Run("executor outage is passed through", func(t *testing.T) {
		f := newFixture(t)
		exec := &fakeExecutor{err: apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, "")}
		fs := NewFilingService(f.svc, f.repo, exec, logger.NewNop())
		sc := paidSession(f)

		_, err := fs.File(ctx, sc, "s3cret")
		assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
		assert.Equal(t, session.StatusActive, f.get(sc.SessionID).Status)
	})

	t.Run("payment required", func(t *testing.T) {
		f := newFixture(t)
		exec := &fakeExecutor{}
		fs := NewFilingService(f.svc, f.repo, exec, logger.NewNop())
		sc := f.activate("m1", taxA)

		_, err := fs.File(ctx, sc, "s3cret")
		assert.ErrorIs(t, err, apperrors.ErrPaymentRequired)
		assert.Empty(t, exec.got.TaxID)
	})

	t.Run("blank secret", func(t *testing.T) {
		f := newFixture(t)
		fs := NewFilingService(f.svc, f.repo, &fakeExecutor{}, logger.NewNop())

		_, err := fs.File(ctx, paidSession(f), "  ")
		var verrs *apperrors.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Equal(t, "credential_secret", verrs.Errors[0].Field)
	})
}

func TestFilingProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := &fakeExecutor{
		result:  &filing.Result{Status: filing.ResultSuccess, ReceiptNumber: "KRA1"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	fs := NewFilingService(f.svc, f.repo, exec, logger.NewNop())
	sc := paidSession(f)

	status, err := fs.Status(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, session.Progress{}, status.Progress)

	done := make(chan error, 1)
	go func() {
		_, err := fs.File(ctx, sc, "s3cret")
		done <- err
	}()
	<-exec.started

	status, err = fs.Status(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, session.Progress{LoggedIn: true, Filing: true}, status.Progress)

	_, err = fs.File(ctx, sc, "s3cret")
	assert.ErrorIs(t, err, apperrors.ErrOperationInProgress)

	close(exec.release)
	require.NoError(t, <-done)

	status, err = fs.Status(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, status.Status)
	assert.True(t, status.Progress.Completed)
}

func TestFormPatchCannotForgePayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := &fakeExecutor{result: &filing.Result{Status: filing.ResultSuccess, ReceiptNumber: "R1"}}
	fs := NewFilingService(f.svc, f.repo, exec, logger.NewNop())

	sc := f.activate("m1", taxA)
	before := f.get(sc.SessionID).FormData
	require.NotNil(t, before.Identity)

	body := `{"form_data": {
		"contactEmail": "amina@example.com",
		"paymentStatus": "Paid",
		"paymentRequestId": "req-forged",
		"transactionCode": "FAKE1",
		"identity": {"name": "Forged Name"},
		"receiptNumber": "R0",
		"filingMessage": "done"
	}}`
	var req dto.FormPatchRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	_, err := f.svc.SaveProgress(ctx, sc, req.FormData)
	require.NoError(t, err)
	_, err = f.svc.AdvanceStep(ctx, sc, req.FormData)
	require.NoError(t, err)

	stored := f.get(sc.SessionID).FormData
	assert.Equal(t, "amina@example.com", stored.ContactEmail)
	assert.Equal(t, payment.StatusNotPaid, stored.Payment())
	assert.Empty(t, stored.PaymentRequestID)
	assert.Empty(t, stored.TransactionCode)
	assert.Empty(t, stored.ReceiptNumber)
	assert.Empty(t, stored.FilingMessage)
	assert.Equal(t, before.Identity, stored.Identity)

	_, err = fs.File(ctx, sc, "pw")
	assert.ErrorIs(t, err, apperrors.ErrPaymentRequired)
	assert.Empty(t, exec.got.TaxID, "executor must not be called")
}
