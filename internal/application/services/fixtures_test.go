package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ruziba3vich/tax-filing-service/config"
	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/filing"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/payment"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/taxpayer"
	cachememory "github.com/ruziba3vich/tax-filing-service/internal/infrastructure/cache/memory"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/persistence/memory"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

const (
	taxA = "A111111111A"
	taxP = "P222222222B"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeLookup struct {
	mu      sync.Mutex
	details map[taxpayer.TaxID]*taxpayer.Details
	err     error
	calls   int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{details: map[taxpayer.TaxID]*taxpayer.Details{
		taxA: {Name: "Amina Otieno", Email: "amina@example.com", Mobile: "0712345678"},
		taxP: {Name: "Pwani Traders Ltd", Email: "ops@pwani.example", BusinessRegistrationNumber: "PVT-9"},
	}}
}

func (l *fakeLookup) Lookup(_ context.Context, taxID taxpayer.TaxID) (*taxpayer.Details, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if d, ok := l.details[taxID]; ok {
		c := *d
		return &c, nil
	}
	return &taxpayer.Details{}, nil
}

func (l *fakeLookup) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fixture struct {
	t      *testing.T
	cfg    *config.Config
	repo   *memory.SessionRepository
	cache  *cachememory.SnapshotCache
	lookup *fakeLookup
	clock  *fakeClock
	locks  *SessionLocks
	svc    *SessionService
	client uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Defaults()
	f := &fixture{
		t:      t,
		cfg:    cfg,
		repo:   memory.NewSessionRepository(),
		cache:  cachememory.NewSnapshotCache(),
		lookup: newFakeLookup(),
		clock:  newFakeClock(),
		locks:  NewSessionLocks(),
		client: uuid.New(),
	}
	f.svc = NewSessionService(f.repo, f.cache, f.lookup, f.locks, cfg.Session, logger.NewNop())
	f.svc.now = f.clock.Now
	return f
}

func (f *fixture) mount(name string) session.Context {
	return session.Context{ClientID: f.client, MountID: name}
}

// begin opens a prospect for the mount and returns the bound context.
func (f *fixture) begin(mount string) session.Context {
	f.t.Helper()
	resp, err := f.svc.BeginProspect(context.Background(), f.mount(mount))
	require.NoError(f.t, err)
	return resp.Context
}

// activate opens a mount and activates taxID on it.
func (f *fixture) activate(mount, taxID string) session.Context {
	f.t.Helper()
	resp, err := f.svc.SubmitTaxID(context.Background(), f.begin(mount), taxID)
	require.NoError(f.t, err)
	require.Equal(f.t, dto.OutcomeActivated, resp.Outcome)
	return resp.Context
}

func (f *fixture) get(id uuid.UUID) *session.Session {
	f.t.Helper()
	s, err := f.repo.GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return s
}

// setPayment writes the payment status straight into the store.
func (f *fixture) setPayment(id uuid.UUID, status payment.Status) {
	f.t.Helper()
	s := f.get(id)
	form := s.FormData
	form.PaymentStatus = status
	_, err := f.repo.Update(context.Background(), id, session.Patch{FormData: &form})
	require.NoError(f.t, err)
}

type scriptedOracle struct {
	mu          sync.Mutex
	initiateErr error
	requestID   string
	statuses    []payment.OracleStatus
	polls       int
	initiated   []payment.InitiateRequest
}

func (o *scriptedOracle) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.InitiateResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.initiated = append(o.initiated, req)
	if o.initiateErr != nil {
		return nil, o.initiateErr
	}
	return &payment.InitiateResponse{RequestID: o.requestID}, nil
}

func (o *scriptedOracle) Poll(_ context.Context, _ string) (*payment.PollResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := payment.OraclePending
	if o.polls < len(o.statuses) {
		st = o.statuses[o.polls]
	}
	o.polls++
	resp := &payment.PollResponse{Status: st}
	if st == payment.OracleCompleted {
		resp.TransactionCode = "QK12XYZ"
	}
	return resp, nil
}

type fakeExecutor struct {
	result  *filing.Result
	err     error
	release chan struct{}
	started chan struct{}
	got     filing.Request
}

func (e *fakeExecutor) File(ctx context.Context, req filing.Request) (*filing.Result, error) {
	e.got = req
	if e.started != nil {
		close(e.started)
	}
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.result, e.err
}
