package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ruziba3vich/tax-filing-service/config"
	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// PaymentService drives the Not Paid → Processing → Paid sub-flow.
type PaymentService struct {
	sessions *SessionService
	repo     session.Repository
	oracle   payment.Oracle
	poller   *payment.Poller
	locks    *SessionLocks
	tracking *inflight
	amount   int
	log      logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPaymentService creates a payment service. Close stops background
// tracking.
func NewPaymentService(
	sessions *SessionService,
	repo session.Repository,
	oracle payment.Oracle,
	locks *SessionLocks,
	cfg config.PaymentConfig,
	log logger.Logger,
) *PaymentService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentService{
		sessions: sessions,
		repo:     repo,
		oracle:   oracle,
		poller:   payment.NewPoller(oracle, cfg.PollAttempts, cfg.PollInterval),
		locks:    locks,
		tracking: newInflight(),
		amount:   cfg.Amount,
		log:      log.With(logger.Component("payment")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Initiate charges the mobile-money number. The session is marked
// Processing before the provider is called and reverts to Not Paid when
// initiation fails. Confirmation is tracked in the background.
func (p *PaymentService) Initiate(ctx context.Context, sc session.Context, mobile string) (*dto.PaymentStatusResponse, error) {
	number, ok := payment.NormalizeMobileNumber(mobile)
	if !ok {
		errs := &apperrors.ValidationErrors{}
		errs.Add("mobile_number", "must be 07XXXXXXXX, 01XXXXXXXX or 254XXXXXXXXX")
		return nil, errs
	}

	unlock, err := p.sessions.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := p.sessions.Active(ctx, sc)
	if err != nil {
		return nil, err
	}
	switch cur.FormData.Payment() {
	case payment.StatusPaid:
		return nil, apperrors.ErrAlreadyPaid
	case payment.StatusProcessing:
		return nil, apperrors.ErrPaymentInProgress
	}

	now := p.sessions.now()
	staged := cur.Clone()
	staged.FormData.MobileMoneyNumber = number
	staged.FormData.PaymentStatus = payment.StatusProcessing
	staged.FormData.PaymentRequestID = ""
	staged.FormData.TransactionCode = ""
	staged.FormData.PaymentError = ""
	if err := staged.Touch(now); err != nil {
		return nil, err
	}
	if _, err := p.repo.Update(ctx, cur.ID, session.Patch{FormData: &staged.FormData, LastActivityAt: &staged.LastActivityAt}); err != nil {
		return nil, err
	}

	resp, err := p.oracle.Initiate(ctx, payment.InitiateRequest{
		MobileNumber: number,
		Amount:       p.amount,
		Reference:    cur.ID.String(),
	})

	// The charge may already exist upstream; later writes must not be lost
	// to a client disconnect.
	wctx := context.WithoutCancel(ctx)

	if err != nil {
		p.log.Warn("payment initiation failed", logger.SessionID(cur.ID), logger.Error(err))
		staged.FormData.PaymentStatus = payment.StatusNotPaid
		staged.FormData.PaymentError = initiationMessage(err)
		if _, uerr := p.repo.Update(wctx, cur.ID, session.Patch{FormData: &staged.FormData}); uerr != nil {
			// Status resolves the untracked Processing row later.
			p.log.Error("failed to revert payment status", logger.SessionID(cur.ID), logger.Error(uerr))
		}
		if errors.Is(err, apperrors.ErrPaymentFailed) {
			return nil, err
		}
		return nil, apperrors.NewUpstreamError(apperrors.ErrPaymentFailed, staged.FormData.PaymentError)
	}

	staged.FormData.PaymentRequestID = resp.RequestID
	updated, err := p.repo.Update(wctx, cur.ID, session.Patch{FormData: &staged.FormData})
	if err != nil {
		// Tracking still runs; record accepts the row without a request id.
		p.log.Error("failed to record payment request id", logger.SessionID(cur.ID), logger.Error(err))
		updated = staged
	}
	p.sessions.saveSnapshot(wctx, updated)

	p.log.Info("payment initiated",
		logger.SessionID(cur.ID),
		logger.String("request_id", resp.RequestID),
	)
	p.startTracking(cur.ID, resp.RequestID)

	return p.statusOf(updated), nil
}

// Status reports the payment state. A Processing payment that is not being
// tracked, for example after a restart, is picked up again. One without a
// request id can never be confirmed and goes back to Not Paid.
func (p *PaymentService) Status(ctx context.Context, sc session.Context) (*dto.PaymentStatusResponse, error) {
	cur, err := p.sessions.load(ctx, sc)
	if err != nil {
		return nil, err
	}

	if cur.Status != session.StatusActive ||
		cur.FormData.Payment() != payment.StatusProcessing ||
		p.tracking.has(cur.ID) {
		return p.statusOf(cur), nil
	}

	if cur.FormData.PaymentRequestID != "" {
		p.startTracking(cur.ID, cur.FormData.PaymentRequestID)
		return p.statusOf(cur), nil
	}

	resolved, err := p.releaseOrphan(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	return p.statusOf(resolved), nil
}

// releaseOrphan moves an untracked Processing payment with no request id
// back to Not Paid. An Initiate in progress holds the lock and is left alone.
func (p *PaymentService) releaseOrphan(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	unlock, err := p.locks.TryLock(sessionID)
	if err != nil {
		return p.repo.GetByID(ctx, sessionID)
	}
	defer unlock()

	cur, err := p.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() ||
		cur.FormData.Payment() != payment.StatusProcessing ||
		cur.FormData.PaymentRequestID != "" ||
		p.tracking.has(sessionID) {
		return cur, nil
	}

	form := cur.FormData
	form.PaymentStatus = payment.StatusNotPaid
	form.PaymentError = orphanMessage
	updated, err := p.repo.Update(ctx, sessionID, session.Patch{FormData: &form})
	if err != nil {
		return nil, err
	}
	p.sessions.saveSnapshot(ctx, updated)

	p.log.Warn("unconfirmable payment released", logger.SessionID(sessionID))
	return updated, nil
}

// Track resolves a payment request synchronously and records the outcome.
func (p *PaymentService) Track(ctx context.Context, sessionID uuid.UUID, requestID string) (*payment.Outcome, error) {
	outcome, err := p.poller.Await(ctx, requestID, func(ev payment.Event) {
		if ev.Err != nil {
			p.log.Warn("payment poll failed",
				logger.SessionID(sessionID),
				logger.Attempt(ev.Attempt),
				logger.Error(ev.Err),
			)
			return
		}
		p.log.Debug("payment polled",
			logger.SessionID(sessionID),
			logger.Attempt(ev.Attempt),
			logger.String("oracle_status", string(ev.Status)),
		)
	})
	if err != nil {
		return nil, err
	}

	if err := p.record(ctx, sessionID, requestID, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (p *PaymentService) record(ctx context.Context, sessionID uuid.UUID, requestID string, outcome *payment.Outcome) error {
	unlock, err := p.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := p.repo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return apperrors.ErrSessionTerminal
	}
	stored := cur.FormData.PaymentRequestID
	if cur.FormData.Payment() != payment.StatusProcessing || (stored != "" && stored != requestID) {
		// A newer attempt replaced this one, or it was already resolved.
		return nil
	}

	form := cur.FormData
	form.PaymentRequestID = requestID
	form.PaymentStatus = outcome.Status
	form.TransactionCode = outcome.TransactionCode
	form.PaymentError = outcome.Message

	updated, err := p.repo.Update(ctx, sessionID, session.Patch{FormData: &form})
	if err != nil {
		return err
	}
	p.sessions.saveSnapshot(ctx, updated)

	if outcome.Status == payment.StatusPaid {
		p.log.Info("payment confirmed",
			logger.SessionID(sessionID),
			logger.String("transaction_code", outcome.TransactionCode),
		)
	} else {
		p.log.Info("payment not completed",
			logger.SessionID(sessionID),
			logger.String("reason", outcome.Message),
		)
	}
	return nil
}

func (p *PaymentService) startTracking(sessionID uuid.UUID, requestID string) {
	if !p.tracking.add(sessionID) {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.tracking.remove(sessionID)

		if _, err := p.Track(p.ctx, sessionID, requestID); err != nil && p.ctx.Err() == nil {
			p.log.Error("payment tracking failed", logger.SessionID(sessionID), logger.Error(err))
		}
	}()
}

// Close stops background tracking and waits for it to finish.
func (p *PaymentService) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *PaymentService) statusOf(s *session.Session) *dto.PaymentStatusResponse {
	return &dto.PaymentStatusResponse{
		SessionID:       s.ID,
		Status:          s.FormData.Payment(),
		RequestID:       s.FormData.PaymentRequestID,
		TransactionCode: s.FormData.TransactionCode,
		Message:         s.FormData.PaymentError,
		Tracking:        p.tracking.has(s.ID),
	}
}

const orphanMessage = "Payment confirmation was lost. Please check your mobile money statement before trying again."

func initiationMessage(err error) string {
	var ue *apperrors.UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return "Payment could not be started. Please try again."
}
