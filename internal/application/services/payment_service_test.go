package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

const pollAttempts = 5

func newPaymentService(f *fixture, oracle payment.Oracle) *PaymentService {
	cfg := f.cfg.Payment
	cfg.PollAttempts = pollAttempts
	cfg.PollInterval = time.Millisecond
	return NewPaymentService(f.svc, f.repo, oracle, f.locks, cfg, logger.NewNop())
}

func paymentOf(t *testing.T, f *fixture, sc session.Context) session.FormData {
	t.Helper()
	return f.get(sc.SessionID).FormData
}

func TestInitiatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed payment becomes paid", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{
			requestID: "req-1",
			statuses:  []payment.OracleStatus{payment.OraclePending, payment.OracleCompleted},
		}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		resp, err := p.Initiate(ctx, sc, "+254 712 345 678")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusProcessing, resp.Status)
		assert.Equal(t, "req-1", resp.RequestID)

		require.Len(t, oracle.initiated, 1)
		assert.Equal(t, "254712345678", oracle.initiated[0].MobileNumber)
		assert.Equal(t, sc.SessionID.String(), oracle.initiated[0].Reference)
		assert.Equal(t, f.cfg.Payment.Amount, oracle.initiated[0].Amount)

		require.Eventually(t, func() bool {
			return paymentOf(t, f, sc).Payment() == payment.StatusPaid
		}, time.Second, 5*time.Millisecond)

		form := paymentOf(t, f, sc)
		assert.Equal(t, "QK12XYZ", form.TransactionCode)
		assert.Empty(t, form.PaymentError)

		status, err := p.Status(ctx, sc)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, status.Status)

		_, err = p.Initiate(ctx, sc, "0712345678")
		assert.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
	})

	t.Run("failed charge returns to not paid", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{
			requestID: "req-2",
			statuses:  []payment.OracleStatus{payment.OracleInsufficientBalance},
		}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "0712345678")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return paymentOf(t, f, sc).Payment() == payment.StatusNotPaid
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, payment.OracleInsufficientBalance.FailureMessage(), paymentOf(t, f, sc).PaymentError)
	})

	t.Run("budget exhausted while pending", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{requestID: "req-3"}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "0712345678")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return paymentOf(t, f, sc).Payment() == payment.StatusNotPaid
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, payment.BudgetExhaustedMessage(pollAttempts, time.Millisecond), paymentOf(t, f, sc).PaymentError)

		oracle.mu.Lock()
		assert.Equal(t, pollAttempts, oracle.polls)
		oracle.mu.Unlock()
	})

	t.Run("initiation failure reverts to not paid", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{initiateErr: apperrors.NewUpstreamError(apperrors.ErrPaymentFailed, "Subscriber not registered")}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "0712345678")
		assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)

		form := paymentOf(t, f, sc)
		assert.Equal(t, payment.StatusNotPaid, form.Payment())
		assert.Equal(t, "Subscriber not registered", form.PaymentError)
		assert.Empty(t, form.PaymentRequestID)
	})

	t.Run("transport failure reverts to not paid", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{initiateErr: apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, "")}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "0712345678")
		assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)
		assert.Equal(t, payment.StatusNotPaid, paymentOf(t, f, sc).Payment())
	})

	t.Run("invalid number is rejected before anything else", func(t *testing.T) {
		f := newFixture(t)
		oracle := &scriptedOracle{requestID: "req"}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "12345")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Empty(t, oracle.initiated)
	})

	t.Run("processing payment refuses a second charge", func(t *testing.T) {
		f := newFixture(t)
		p := newPaymentService(f, &scriptedOracle{requestID: "req"})
		defer p.Close()

		sc := f.activate("m1", taxA)
		f.setPayment(sc.SessionID, payment.StatusProcessing)

		_, err := p.Initiate(ctx, sc, "0712345678")
		assert.ErrorIs(t, err, apperrors.ErrPaymentInProgress)
	})

	t.Run("prospect cannot pay", func(t *testing.T) {
		f := newFixture(t)
		p := newPaymentService(f, &scriptedOracle{requestID: "req"})
		defer p.Close()

		_, err := p.Initiate(ctx, f.begin("m1"), "0712345678")
		assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)
	})
}

func TestTrackPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("records the outcome", func(t *testing.T) {
		f := newFixture(t)
		oracle := &scriptedOracle{statuses: []payment.OracleStatus{payment.OracleCompleted}}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		form := f.get(sc.SessionID).FormData
		form.PaymentStatus = payment.StatusProcessing
		form.PaymentRequestID = "req-9"
		_, err := f.repo.Update(ctx, sc.SessionID, session.Patch{FormData: &form})
		require.NoError(t, err)

		outcome, err := p.Track(ctx, sc.SessionID, "req-9")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, outcome.Status)
		assert.Equal(t, payment.StatusPaid, paymentOf(t, f, sc).Payment())
	})

	t.Run("stale request is ignored", func(t *testing.T) {
		f := newFixture(t)
		oracle := &scriptedOracle{statuses: []payment.OracleStatus{payment.OracleCompleted}}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		form := f.get(sc.SessionID).FormData
		form.PaymentStatus = payment.StatusProcessing
		form.PaymentRequestID = "req-new"
		_, err := f.repo.Update(ctx, sc.SessionID, session.Patch{FormData: &form})
		require.NoError(t, err)

		_, err = p.Track(ctx, sc.SessionID, "req-old")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusProcessing, paymentOf(t, f, sc).Payment())
	})

	t.Run("status resumes tracking", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{statuses: []payment.OracleStatus{payment.OracleCompleted}}
		p := newPaymentService(f, oracle)
		defer p.Close()

		sc := f.activate("m1", taxA)
		form := f.get(sc.SessionID).FormData
		form.PaymentStatus = payment.StatusProcessing
		form.PaymentRequestID = "req-after-restart"
		_, err := f.repo.Update(ctx, sc.SessionID, session.Patch{FormData: &form})
		require.NoError(t, err)

		status, err := p.Status(ctx, sc)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusProcessing, status.Status)

		require.Eventually(t, func() bool {
			return paymentOf(t, f, sc).Payment() == payment.StatusPaid
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("close stops tracking", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		cfg := f.cfg.Payment
		cfg.PollAttempts = 1000
		cfg.PollInterval = 10 * time.Millisecond
		p := NewPaymentService(f.svc, f.repo, &scriptedOracle{requestID: "req"}, f.locks, cfg, logger.NewNop())

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "0712345678")
		require.NoError(t, err)

		p.Close()
		assert.Equal(t, payment.StatusProcessing, paymentOf(t, f, sc).Payment())
	})
}

// flakyUpdates fails the listed calls to Update, counted from 1.
type flakyUpdates struct {
	session.Repository
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (r *flakyUpdates) Update(ctx context.Context, id uuid.UUID, patch session.Patch) (*session.Session, error) {
	r.mu.Lock()
	r.calls++
	fail := r.failOn[r.calls]
	r.mu.Unlock()
	if fail {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "write dropped")
	}
	return r.Repository.Update(ctx, id, patch)
}

func TestPaymentWriteFailures(t *testing.T) {
	ctx := context.Background()

	newService := func(f *fixture, oracle payment.Oracle, failOn ...int) *PaymentService {
		repo := &flakyUpdates{Repository: f.repo, failOn: map[int]bool{}}
		for _, n := range failOn {
			repo.failOn[n] = true
		}
		cfg := f.cfg.Payment
		cfg.PollAttempts = pollAttempts
		cfg.PollInterval = time.Millisecond
		return NewPaymentService(f.svc, repo, oracle, f.locks, cfg, logger.NewNop())
	}

	t.Run("lost request id still confirms", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{requestID: "req-1", statuses: []payment.OracleStatus{payment.OracleCompleted}}
		p := newService(f, oracle, 2)
		defer p.Close()

		sc := f.activate("m1", taxA)
		resp, err := p.Initiate(ctx, sc, "0712345678")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusProcessing, resp.Status)

		require.Eventually(t, func() bool {
			return paymentOf(t, f, sc).Payment() == payment.StatusPaid
		}, time.Second, 5*time.Millisecond)

		form := paymentOf(t, f, sc)
		assert.Equal(t, "req-1", form.PaymentRequestID)
		assert.Equal(t, "QK12XYZ", form.TransactionCode)
	})

	t.Run("unconfirmable payment is released", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		f := newFixture(t)
		oracle := &scriptedOracle{requestID: "req-1", statuses: []payment.OracleStatus{payment.OracleCompleted}}
		p := newService(f, oracle, 2, 3)
		defer p.Close()

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "0712345678")
		require.NoError(t, err)

		require.Eventually(t, func() bool { return !p.tracking.has(sc.SessionID) }, time.Second, time.Millisecond)
		form := paymentOf(t, f, sc)
		require.Equal(t, payment.StatusProcessing, form.Payment())
		require.Empty(t, form.PaymentRequestID)

		status, err := p.Status(ctx, sc)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusNotPaid, status.Status)
		assert.Equal(t, orphanMessage, status.Message)
		assert.False(t, status.Tracking)
		assert.Equal(t, payment.StatusNotPaid, paymentOf(t, f, sc).Payment())

		_, err = p.Initiate(ctx, sc, "0712345678")
		assert.NoError(t, err, "a new attempt is allowed")
	})

	t.Run("failed revert is released", func(t *testing.T) {
		f := newFixture(t)
		oracle := &scriptedOracle{initiateErr: errors.New("connection refused")}
		p := newService(f, oracle, 2)
		defer p.Close()

		sc := f.activate("m1", taxA)
		_, err := p.Initiate(ctx, sc, "0712345678")
		require.ErrorIs(t, err, apperrors.ErrPaymentFailed)
		require.Equal(t, payment.StatusProcessing, paymentOf(t, f, sc).Payment())

		status, err := p.Status(ctx, sc)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusNotPaid, status.Status)
		assert.Equal(t, orphanMessage, status.Message)
	})

	t.Run("in-flight initiation is left alone", func(t *testing.T) {
		f := newFixture(t)
		p := newService(f, &scriptedOracle{requestID: "req-1"})
		defer p.Close()

		sc := f.activate("m1", taxA)
		f.setPayment(sc.SessionID, payment.StatusProcessing)

		unlock, err := f.locks.TryLock(sc.SessionID)
		require.NoError(t, err)
		status, err := p.Status(ctx, sc)
		unlock()

		require.NoError(t, err)
		assert.Equal(t, payment.StatusProcessing, status.Status)
	})
}
