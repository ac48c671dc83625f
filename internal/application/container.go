package application

import (
	"github.com/ruziba3vich/tax-filing-service/config"
	"github.com/ruziba3vich/tax-filing-service/internal/application/services"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/filing"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/gateway"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/persistence"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
	"github.com/ruziba3vich/tax-filing-service/pkg/wizardtoken"
)

// Services holds all application services.
type Services struct {
	Session *services.SessionService
	Payment *services.PaymentService
	Filing  *services.FilingService
	Stats   *services.StatsService
}

// Dependencies holds the external collaborators and shared helpers.
type Dependencies struct {
	Lookup   taxpayer.Lookup
	Oracle   payment.Oracle
	Executor filing.Executor
	Tokens   *wizardtoken.Manager
}

// NewDependencies creates the upstream gateway clients from config.
func NewDependencies(cfg *config.Config, log logger.Logger) *Dependencies {
	up := cfg.Upstream
	return &Dependencies{
		Lookup:   gateway.NewIdentityClient(up.IdentityURL, up.APIKey, up.Timeout, log),
		Oracle:   gateway.NewPaymentClient(up.PaymentURL, up.APIKey, up.Timeout, log),
		Executor: gateway.NewFilingClient(up.FilingURL, up.APIKey, up.FilingTimeout, log),
		Tokens:   wizardtoken.NewManager(cfg.Security.TokenSecret, cfg.Security.TokenTTL),
	}
}

// NewServices creates all application services.
func NewServices(repos *persistence.Repositories, deps *Dependencies, cfg *config.Config, log logger.Logger) *Services {
	locks := services.NewSessionLocks()

	sessionService := services.NewSessionService(
		repos.Session,
		repos.Cache,
		deps.Lookup,
		locks,
		cfg.Session,
		log,
	)

	return &Services{
		Session: sessionService,
		Payment: services.NewPaymentService(sessionService, repos.Session, deps.Oracle, locks, cfg.Payment, log),
		Filing:  services.NewFilingService(sessionService, repos.Session, deps.Executor, log),
		Stats:   services.NewStatsService(repos.Session, log),
	}
}

// Close stops background work owned by the services.
func (s *Services) Close() {
	s.Payment.Close()
}
