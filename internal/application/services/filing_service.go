package services

import (
	"context"
	"strings"

	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/filing"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// FilingService submits the return once payment is confirmed.
type FilingService struct {
	sessions *SessionService
	repo     session.Repository
	executor filing.Executor
	log      logger.Logger
}

func NewFilingService(sessions *SessionService, repo session.Repository, executor filing.Executor, log logger.Logger) *FilingService {
	return &FilingService{
		sessions: sessions,
		repo:     repo,
		executor: executor,
		log:      log.With(logger.Component("filing")),
	}
}

// File runs the filing executor. Success completes the session; a fatal
// executor error moves it to error; any other rejection keeps it active and
// surfaces the executor's message as is.
func (f *FilingService) File(ctx context.Context, sc session.Context, secret string) (*dto.FilingResponse, error) {
	if strings.TrimSpace(secret) == "" {
		errs := &apperrors.ValidationErrors{}
		errs.Add("credential_secret", "required")
		return nil, errs
	}

	unlock, err := f.sessions.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := f.sessions.Active(ctx, sc)
	if err != nil {
		return nil, err
	}
	if cur.FormData.Payment() != payment.StatusPaid {
		return nil, apperrors.ErrPaymentRequired
	}

	f.sessions.filing.add(cur.ID)
	defer f.sessions.filing.remove(cur.ID)

	f.log.Info("filing started", logger.SessionID(cur.ID), logger.TaxID(taxpayer.Mask(cur.TaxID)))
	result, err := f.executor.File(ctx, filing.Request{TaxID: cur.TaxID, CredentialSecret: secret})
	if err != nil {
		f.log.Warn("filing executor unavailable", logger.SessionID(cur.ID), logger.Error(err))
		return nil, err
	}
	if result == nil {
		return nil, apperrors.NewUpstreamError(apperrors.ErrUpstreamUnavailable, "empty filing result")
	}

	staged := cur.Clone()
	staged.FormData.FilingMessage = result.Message

	switch {
	case result.Succeeded():
		done, err := f.sessions.Finalize(ctx, staged, session.StatusCompleted, "", result.ReceiptNumber)
		if err != nil {
			return nil, err
		}
		return &dto.FilingResponse{
			Status:        string(filing.ResultSuccess),
			ReceiptNumber: done.FormData.ReceiptNumber,
			Message:       result.Message,
			Wizard:        f.sessions.view(done),
		}, nil

	case result.Fatal:
		failed, err := f.sessions.Finalize(ctx, staged, session.StatusError, result.Message, "")
		if err != nil {
			return nil, err
		}
		return &dto.FilingResponse{
			Status:  string(filing.ResultError),
			Message: result.Message,
			Wizard:  f.sessions.view(failed),
		}, nil
	}

	if err := staged.Touch(f.sessions.now()); err != nil {
		return nil, err
	}
	if _, err := f.repo.Update(ctx, cur.ID, session.Patch{FormData: &staged.FormData, LastActivityAt: &staged.LastActivityAt}); err != nil {
		f.log.Warn("failed to record filing message", logger.SessionID(cur.ID), logger.Error(err))
	}
	f.log.Info("filing rejected", logger.SessionID(cur.ID), logger.String("reason", result.Message))
	return nil, apperrors.NewUpstreamError(apperrors.ErrFilingRejected, result.Message)
}

// Status returns the filing progress projection for the session.
func (f *FilingService) Status(ctx context.Context, sc session.Context) (*dto.FilingStatusResponse, error) {
	cur, err := f.sessions.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	return &dto.FilingStatusResponse{
		SessionID: cur.ID,
		Status:    cur.Status,
		Progress:  session.DeriveProgress(cur, f.sessions.filing.has(cur.ID)),
	}, nil
}
