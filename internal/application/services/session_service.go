package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ruziba3vich/tax-filing-service/config"
	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// SessionService owns the wizard session lifecycle.
type SessionService struct {
	repo   session.Repository
	cache  session.Cache
	lookup taxpayer.Lookup
	locks  *SessionLocks
	filing *inflight
	begin  singleflight.Group
	cfg    config.SessionConfig
	log    logger.Logger
	now    func() time.Time
}

// NewSessionService creates a new session lifecycle service.
func NewSessionService(
	repo session.Repository,
	cache session.Cache,
	lookup taxpayer.Lookup,
	locks *SessionLocks,
	cfg config.SessionConfig,
	log logger.Logger,
) *SessionService {
	return &SessionService{
		repo:   repo,
		cache:  cache,
		lookup: lookup,
		locks:  locks,
		filing: newInflight(),
		cfg:    cfg,
		log:    log.With(logger.Component("session")),
		now:    time.Now,
	}
}

// BeginProspect opens the prospect session for a wizard mount. Repeated
// calls for the same mount return the same session.
func (s *SessionService) BeginProspect(ctx context.Context, sc session.Context) (*dto.WizardResponse, error) {
	if sc.ClientID == uuid.Nil || sc.MountID == "" {
		return nil, apperrors.ErrSessionContext
	}

	key := sc.ClientID.String() + "/" + sc.MountID
	v, err, _ := s.begin.Do(key, func() (interface{}, error) {
		return s.beginProspect(ctx, sc)
	})
	if err != nil {
		return nil, err
	}

	sess := v.(*session.Session)
	return &dto.WizardResponse{
		Outcome: dto.OutcomeCreated,
		Wizard:  s.view(sess),
		Context: sc.WithSession(sess.ID),
	}, nil
}

func (s *SessionService) beginProspect(ctx context.Context, sc session.Context) (*session.Session, error) {
	prospect := session.NewProspect(sc.ClientID, s.now())

	claimed, ok, err := s.cache.ClaimMount(ctx, sc.ClientID, sc.MountID, prospect.ID)
	switch {
	case err != nil:
		s.log.Warn("mount claim unavailable", logger.ClientID(sc.ClientID), logger.Error(err))
	case !ok:
		existing, err := s.repo.GetByID(ctx, claimed)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperrors.ErrSessionNotFound) {
			return nil, err
		}
		// The claim outlived a failed insert; reuse its id.
		prospect.ID = claimed
	}

	if err := s.repo.Insert(ctx, prospect); err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, prospect)

	s.log.Info("prospect session created",
		logger.SessionID(prospect.ID),
		logger.ClientID(sc.ClientID),
	)
	return prospect, nil
}

// SubmitTaxID validates the tax id and, once the conflict check clears,
// resolves identity and activates the session.
func (s *SessionService) SubmitTaxID(ctx context.Context, sc session.Context, raw string) (*dto.WizardResponse, error) {
	taxID, err := taxpayer.ParseTaxID(raw)
	if err != nil {
		s.log.Debug("tax id rejected", logger.ClientID(sc.ClientID), logger.Error(err))
		return nil, err
	}

	unlock, err := s.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, apperrors.ErrSessionTerminal
	}

	now := s.now()
	conflicts, same, err := s.checkConflict(ctx, sc.ClientID, taxID, now)
	if err != nil {
		return nil, err
	}

	if same != nil {
		return s.resume(ctx, sc, cur, same, now)
	}
	if len(conflicts) > 0 {
		s.log.Info("conflicting session detected",
			logger.SessionID(cur.ID),
			logger.String("conflict_session_id", conflicts[0].ID.String()),
			logger.TaxID(taxID.Masked()),
		)
		return &dto.WizardResponse{
			Outcome:  dto.OutcomeConflict,
			Message:  apperrors.ErrConflictUnsolved.Error(),
			Wizard:   s.view(cur),
			Conflict: conflictView(conflicts[0]),
			Context:  sc,
		}, nil
	}

	return s.activate(ctx, sc, cur, taxID, nil)
}

// CheckConflict reports whether submitting taxID would conflict with another
// active session of the client. Idle sessions are abandoned on the way.
func (s *SessionService) CheckConflict(ctx context.Context, sc session.Context, raw string) (*dto.WizardResponse, error) {
	taxID, err := taxpayer.ParseTaxID(raw)
	if err != nil {
		return nil, err
	}

	cur, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}

	conflicts, same, err := s.checkConflict(ctx, sc.ClientID, taxID, s.now())
	if err != nil {
		return nil, err
	}

	resp := &dto.WizardResponse{Outcome: dto.OutcomeClear, Wizard: s.view(cur), Context: sc}
	switch {
	case same != nil:
		resp.Outcome = dto.OutcomeResumable
		resp.Conflict = conflictView(same)
	case len(conflicts) > 0:
		resp.Outcome = dto.OutcomeConflict
		resp.Message = apperrors.ErrConflictUnsolved.Error()
		resp.Conflict = conflictView(conflicts[0])
	}
	return resp, nil
}

// ResolveConflict applies the user's decision on a reported conflict.
// Proceed abandons the competing sessions and activates taxID; cancel
// restores the client to the competing session.
func (s *SessionService) ResolveConflict(ctx context.Context, sc session.Context, req *dto.ResolveConflictRequest) (*dto.WizardResponse, error) {
	var taxID taxpayer.TaxID
	switch req.Decision {
	case dto.DecisionProceed:
		var err error
		if taxID, err = taxpayer.ParseTaxID(req.TaxID); err != nil {
			return nil, err
		}
	case dto.DecisionCancel:
	default:
		return nil, apperrors.ErrInvalidDecision
	}

	unlock, err := s.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, apperrors.ErrSessionTerminal
	}

	now := s.now()
	if req.Decision == dto.DecisionCancel {
		return s.cancelConflict(ctx, sc, cur, req.ConflictSessionID, now)
	}

	conflicts, same, err := s.checkConflict(ctx, sc.ClientID, taxID, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("conflict resolved: proceed",
		logger.SessionID(cur.ID),
		logger.TaxID(taxID.Masked()),
		logger.Int("abandoning", len(conflicts)),
	)

	if same != nil {
		for _, other := range conflicts {
			if _, err := s.abandon(ctx, other, now); err != nil {
				return nil, err
			}
		}
		return s.resume(ctx, sc, cur, same, now)
	}
	return s.activate(ctx, sc, cur, taxID, conflicts)
}

func (s *SessionService) cancelConflict(ctx context.Context, sc session.Context, cur *session.Session, pinned *uuid.UUID, now time.Time) (*dto.WizardResponse, error) {
	actives, err := s.activeSessions(ctx, sc.ClientID, now)
	if err != nil {
		return nil, err
	}

	var target *session.Session
	for _, a := range actives {
		if a.ID == cur.ID {
			continue
		}
		if pinned != nil && a.ID != *pinned {
			continue
		}
		target = a
		break
	}
	if target == nil {
		return nil, apperrors.ErrNoConflict
	}

	if cur.Status == session.StatusProspect {
		if _, err := s.abandon(ctx, cur, now); err != nil {
			return nil, err
		}
	}
	s.saveSnapshot(ctx, target)

	s.log.Info("conflict resolved: cancel",
		logger.SessionID(target.ID),
		logger.ClientID(sc.ClientID),
	)
	return &dto.WizardResponse{
		Outcome: dto.OutcomeRestored,
		Wizard:  s.view(target),
		Context: sc.WithSession(target.ID),
	}, nil
}

// checkConflict splits the client's live active sessions into the one
// holding taxID and those holding a different tax id.
func (s *SessionService) checkConflict(ctx context.Context, clientID uuid.UUID, taxID taxpayer.TaxID, now time.Time) ([]*session.Session, *session.Session, error) {
	actives, err := s.activeSessions(ctx, clientID, now)
	if err != nil {
		return nil, nil, err
	}

	var conflicts []*session.Session
	var same *session.Session
	for _, a := range actives {
		if a.TaxID == taxID.String() {
			if same == nil {
				same = a
			}
			continue
		}
		conflicts = append(conflicts, a)
	}
	return conflicts, same, nil
}

// activeSessions returns the client's active sessions, most recent first,
// after abandoning those idle past the inactivity timeout.
func (s *SessionService) activeSessions(ctx context.Context, clientID uuid.UUID, now time.Time) ([]*session.Session, error) {
	list, err := s.repo.SelectWhere(ctx, session.Filter{ClientID: clientID, Status: session.StatusActive})
	if err != nil {
		return nil, err
	}

	live := make([]*session.Session, 0, len(list))
	for _, a := range list {
		if a.IsIdle(now, s.cfg.InactivityTimeout) {
			if _, err := s.abandon(ctx, a, now); err != nil {
				return nil, err
			}
			s.log.Info("idle session abandoned",
				logger.SessionID(a.ID),
				logger.Duration("idle", a.IdleFor(now)),
			)
			continue
		}
		live = append(live, a)
	}
	return live, nil
}

func (s *SessionService) resume(ctx context.Context, sc session.Context, cur, same *session.Session, now time.Time) (*dto.WizardResponse, error) {
	staged := same.Clone()
	if err := staged.Touch(now); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, same.ID, session.Patch{LastActivityAt: &staged.LastActivityAt})
	if err != nil {
		return nil, err
	}

	if cur.ID != same.ID && cur.Status == session.StatusProspect {
		if _, err := s.abandon(ctx, cur, now); err != nil {
			s.log.Warn("failed to abandon replaced prospect", logger.SessionID(cur.ID), logger.Error(err))
		}
	}
	s.saveSnapshot(ctx, updated)

	s.log.Info("session resumed", logger.SessionID(updated.ID), logger.Step(updated.CurrentStep))
	return &dto.WizardResponse{
		Outcome: dto.OutcomeResumed,
		Wizard:  s.view(updated),
		Context: sc.WithSession(updated.ID),
	}, nil
}

// activate resolves identity for taxID and binds it to the client's
// prospect, abandoning the listed sessions first. Nothing is written until
// the lookup has succeeded.
func (s *SessionService) activate(ctx context.Context, sc session.Context, cur *session.Session, taxID taxpayer.TaxID, abandon []*session.Session) (*dto.WizardResponse, error) {
	details, err := s.lookup.Lookup(ctx, taxID)
	if err != nil {
		s.log.Warn("identity lookup failed", logger.TaxID(taxID.Masked()), logger.Error(err))
		if errors.Is(err, apperrors.ErrLookupUnavailable) {
			return nil, err
		}
		return nil, apperrors.NewUpstreamError(apperrors.ErrLookupUnavailable, err.Error())
	}

	now := s.now()
	if details.IsBlank() {
		return s.resetProspect(ctx, sc, cur, taxID, now)
	}

	replaceCurrent := cur.Status != session.StatusProspect
	for _, other := range abandon {
		if _, err := s.abandon(ctx, other, now); err != nil {
			return nil, err
		}
		if other.ID == cur.ID {
			replaceCurrent = true
		}
	}

	target := cur
	if replaceCurrent {
		target = session.NewProspect(sc.ClientID, now)
		if err := s.repo.Insert(ctx, target); err != nil {
			return nil, err
		}
	}

	staged := target.Clone()
	if err := staged.Activate(taxID, details, now); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, staged.ID, session.Patch{
		TaxID:          &staged.TaxID,
		Status:         &staged.Status,
		FormData:       &staged.FormData,
		LastActivityAt: &staged.LastActivityAt,
	})
	if err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, updated)

	s.log.Info("session activated",
		logger.SessionID(updated.ID),
		logger.ClientID(sc.ClientID),
		logger.TaxID(taxID.Masked()),
	)
	return &dto.WizardResponse{
		Outcome: dto.OutcomeActivated,
		Wizard:  s.view(updated),
		Context: sc.WithSession(updated.ID),
	}, nil
}

// resetProspect handles a lookup that returned no taxpayer: the prospect
// goes back to step 1 with its identity cleared.
func (s *SessionService) resetProspect(ctx context.Context, sc session.Context, cur *session.Session, taxID taxpayer.TaxID, now time.Time) (*dto.WizardResponse, error) {
	s.log.Info("taxpayer not found", logger.SessionID(cur.ID), logger.TaxID(taxID.Masked()))

	resp := &dto.WizardResponse{
		Outcome: dto.OutcomeNotFound,
		Message: apperrors.ErrTaxpayerNotFound.Error(),
		Context: sc,
	}

	if cur.Status != session.StatusProspect {
		latest, err := s.repo.GetByID(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		resp.Wizard = s.view(latest)
		return resp, nil
	}

	staged := cur.Clone()
	if err := staged.ResetIdentity(now); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, cur.ID, session.Patch{
		TaxID:          &staged.TaxID,
		CurrentStep:    &staged.CurrentStep,
		FormData:       &staged.FormData,
		LastActivityAt: &staged.LastActivityAt,
	})
	if err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, updated)

	resp.Wizard = s.view(updated)
	return resp, nil
}

// AdvanceStep merges the form patch and moves to the next step. The record
// store write happens first; when it fails the step stays where it was.
func (s *SessionService) AdvanceStep(ctx context.Context, sc session.Context, patch session.FormPatch) (*dto.WizardResponse, error) {
	unlock, err := s.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.loadActive(ctx, sc)
	if err != nil {
		return nil, err
	}

	now := s.now()
	staged := cur.Clone()
	if err := staged.Merge(patch, now); err != nil {
		return nil, err
	}
	if err := staged.Advance(s.cfg.TotalSteps, now); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, cur.ID, session.Patch{
		CurrentStep:    &staged.CurrentStep,
		FormData:       &staged.FormData,
		LastActivityAt: &staged.LastActivityAt,
	})
	if err != nil {
		s.log.Warn("step advance not persisted",
			logger.SessionID(cur.ID),
			logger.Step(cur.CurrentStep),
			logger.Error(err),
		)
		return nil, err
	}
	s.saveSnapshot(ctx, updated)

	s.log.Debug("step advanced", logger.SessionID(updated.ID), logger.Step(updated.CurrentStep))
	return &dto.WizardResponse{
		Outcome: dto.OutcomeAdvanced,
		Wizard:  s.view(updated),
		Context: sc,
	}, nil
}

// SaveProgress merges the form patch without moving the step.
func (s *SessionService) SaveProgress(ctx context.Context, sc session.Context, patch session.FormPatch) (*dto.WizardResponse, error) {
	unlock, err := s.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.loadOpen(ctx, sc)
	if err != nil {
		return nil, err
	}

	staged := cur.Clone()
	if err := staged.Merge(patch, s.now()); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, cur.ID, session.Patch{
		FormData:       &staged.FormData,
		LastActivityAt: &staged.LastActivityAt,
	})
	if err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, updated)

	return &dto.WizardResponse{
		Outcome: dto.OutcomeSaved,
		Wizard:  s.view(updated),
		Context: sc,
	}, nil
}

// Touch records qualifying user activity and resets the inactivity timer.
func (s *SessionService) Touch(ctx context.Context, sc session.Context) (*dto.WizardResponse, error) {
	unlock, err := s.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.loadOpen(ctx, sc)
	if err != nil {
		return nil, err
	}

	staged := cur.Clone()
	if err := staged.Touch(s.now()); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, cur.ID, session.Patch{LastActivityAt: &staged.LastActivityAt})
	if err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, updated)

	return &dto.WizardResponse{
		Outcome: dto.OutcomeTouched,
		Wizard:  s.view(updated),
		Context: sc,
	}, nil
}

// Restore rebuilds the wizard view after a reload. The record store wins
// over the local snapshot; the snapshot is only used while the store is
// unreachable.
func (s *SessionService) Restore(ctx context.Context, sc session.Context) (*dto.WizardResponse, error) {
	if sc.ClientID == uuid.Nil {
		return nil, apperrors.ErrSessionContext
	}

	local, err := s.cache.Load(ctx, sc.ClientID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			s.log.Warn("snapshot load failed", logger.ClientID(sc.ClientID), logger.Error(err))
		}
		local = nil
	}

	id := sc.SessionID
	if id == uuid.Nil && local != nil {
		id = local.SessionID
	}
	if id == uuid.Nil {
		return nil, apperrors.ErrSessionNotFound
	}
	if local != nil && local.SessionID != id {
		local = nil
	}

	remote, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		if remote.ClientID != sc.ClientID {
			return nil, apperrors.ErrSessionNotFound
		}
	case errors.Is(err, apperrors.ErrSessionNotFound):
		s.clearSnapshot(ctx, sc.ClientID)
		return nil, err
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		s.log.Warn("record store unavailable, restoring from snapshot", logger.ClientID(sc.ClientID), logger.Error(err))
		remote = nil
	default:
		return nil, err
	}

	restored, fromCache := session.Reconcile(local, remote, sc.ClientID)
	if restored == nil {
		return nil, err
	}

	if !fromCache {
		now := s.now()
		if restored.Expired(now, s.cfg.InactivityTimeout) {
			abandoned, err := s.abandon(ctx, restored, now)
			if err != nil {
				return nil, err
			}
			restored = abandoned
		}
		if restored.Status.Terminal() {
			s.clearSnapshot(ctx, sc.ClientID)
		} else {
			s.saveSnapshot(ctx, restored)
		}
	}

	return &dto.WizardResponse{
		Outcome:   dto.OutcomeRestored,
		Wizard:    s.view(restored),
		FromCache: fromCache,
		Context:   sc.WithSession(restored.ID),
	}, nil
}

// Exit abandons the session on explicit user exit.
func (s *SessionService) Exit(ctx context.Context, sc session.Context) (*dto.WizardResponse, error) {
	unlock, err := s.lockSession(sc)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, apperrors.ErrSessionTerminal
	}

	abandoned, err := s.abandon(ctx, cur, s.now())
	if err != nil {
		return nil, err
	}
	s.clearSnapshot(ctx, sc.ClientID)

	s.log.Info("session exited", logger.SessionID(cur.ID), logger.Step(cur.CurrentStep))
	return &dto.WizardResponse{
		Outcome: dto.OutcomeAbandoned,
		Wizard:  s.view(abandoned),
		Context: sc,
	}, nil
}

// Finalize moves the session to a terminal status and persists it.
func (s *SessionService) Finalize(ctx context.Context, cur *session.Session, outcome session.Status, detail, receipt string) (*session.Session, error) {
	staged := cur.Clone()
	if err := staged.Finalize(outcome, detail, receipt, s.now()); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, cur.ID, finalizePatch(staged))
	if err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, updated)

	s.log.Info("session finalized",
		logger.SessionID(updated.ID),
		logger.SessionStatus(string(updated.Status)),
		logger.Step(updated.CurrentStep),
	)
	return updated, nil
}

// abandon finalizes sess as abandoned. A session that is already terminal
// is returned as stored.
func (s *SessionService) abandon(ctx context.Context, sess *session.Session, now time.Time) (*session.Session, error) {
	staged := sess.Clone()
	if err := staged.Finalize(session.StatusAbandoned, "", "", now); err != nil {
		if errors.Is(err, apperrors.ErrSessionTerminal) {
			return sess, nil
		}
		return nil, err
	}

	updated, err := s.repo.Update(ctx, sess.ID, finalizePatch(staged))
	if errors.Is(err, apperrors.ErrSessionTerminal) {
		return s.repo.GetByID(ctx, sess.ID)
	}
	return updated, err
}

func finalizePatch(s *session.Session) session.Patch {
	return session.Patch{
		Status:         &s.Status,
		FormData:       &s.FormData,
		LastActivityAt: &s.LastActivityAt,
		CompletedAt:    s.CompletedAt,
		ErrorMessage:   s.ErrorMessage,
	}
}

// Active loads the context's session and requires it to be active and
// within its inactivity window.
func (s *SessionService) Active(ctx context.Context, sc session.Context) (*session.Session, error) {
	return s.loadActive(ctx, sc)
}

func (s *SessionService) load(ctx context.Context, sc session.Context) (*session.Session, error) {
	if !sc.HasSession() {
		return nil, apperrors.ErrSessionContext
	}
	sess, err := s.repo.GetByID(ctx, sc.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.ClientID != sc.ClientID {
		return nil, apperrors.ErrSessionNotFound
	}
	return sess, nil
}

// loadOpen loads a non-terminal session, abandoning it when its own
// inactivity timer has run out.
func (s *SessionService) loadOpen(ctx context.Context, sc session.Context) (*session.Session, error) {
	sess, err := s.load(ctx, sc)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, apperrors.ErrSessionTerminal
	}

	now := s.now()
	if sess.Expired(now, s.cfg.InactivityTimeout) {
		if _, err := s.abandon(ctx, sess, now); err != nil {
			return nil, err
		}
		s.clearSnapshot(ctx, sc.ClientID)
		s.log.Info("session expired", logger.SessionID(sess.ID), logger.Duration("idle", sess.IdleFor(now)))
		return nil, apperrors.ErrSessionExpired
	}
	return sess, nil
}

func (s *SessionService) loadActive(ctx context.Context, sc session.Context) (*session.Session, error) {
	sess, err := s.loadOpen(ctx, sc)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, apperrors.ErrSessionNotActive
	}
	return sess, nil
}

func (s *SessionService) lockSession(sc session.Context) (func(), error) {
	if !sc.HasSession() {
		return nil, apperrors.ErrSessionContext
	}
	return s.locks.TryLock(sc.SessionID)
}

func (s *SessionService) saveSnapshot(ctx context.Context, sess *session.Session) {
	if err := s.cache.Save(ctx, sess.ClientID, session.SnapshotOf(sess, s.now())); err != nil {
		s.log.Warn("snapshot save failed", logger.SessionID(sess.ID), logger.Error(err))
	}
}

func (s *SessionService) clearSnapshot(ctx context.Context, clientID uuid.UUID) {
	if err := s.cache.Clear(ctx, clientID); err != nil {
		s.log.Warn("snapshot clear failed", logger.ClientID(clientID), logger.Error(err))
	}
}

// View projects sess for the client.
func (s *SessionService) View(sess *session.Session) *dto.WizardView {
	return s.view(sess)
}

func (s *SessionService) view(sess *session.Session) *dto.WizardView {
	v := &dto.WizardView{
		SessionID:      sess.ID,
		Status:         sess.Status,
		TaxID:          sess.TaxID,
		CurrentStep:    sess.CurrentStep,
		TotalSteps:     s.cfg.TotalSteps,
		FormData:       sess.FormData,
		FilingProgress: session.DeriveProgress(sess, s.filing.has(sess.ID)),
		TimerRunning:   sess.TimerRunning(),
		LastActivityAt: sess.LastActivityAt,
		CompletedAt:    sess.CompletedAt,
	}
	if sess.ErrorMessage != nil {
		v.ErrorMessage = *sess.ErrorMessage
	}
	if v.TimerRunning {
		expires := sess.LastActivityAt.Add(s.cfg.InactivityTimeout)
		v.ExpiresAt = &expires
	}
	return v
}

func conflictView(sess *session.Session) *dto.ConflictView {
	v := &dto.ConflictView{
		SessionID:      sess.ID,
		TaxID:          taxpayer.Mask(sess.TaxID),
		CurrentStep:    sess.CurrentStep,
		LastActivityAt: sess.LastActivityAt,
	}
	if sess.FormData.Identity != nil {
		v.Name = sess.FormData.Identity.Name
	}
	return v
}
