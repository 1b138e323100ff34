package service

import (
	"context"
	"log"
	"time"

	"bingopos/backend/internal/alert"
	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/metrics"
	"bingopos/backend/internal/presence"
	"bingopos/backend/internal/refcode"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

// FraudChecker screens an order or sale. A negative verdict is not an error.
type FraudChecker interface {
	CheckOrder(ctx context.Context, in domain.FraudCheckInput) (domain.FraudVerdict, error)
}

type Assistant interface {
	Chat(ctx context.Context, in domain.ChatContext) (string, error)
	AnalyzeDashboard(ctx context.Context, in domain.AnalysisInput) (string, error)
}

type Service struct {
	repo      store.Repository
	codes     *refcode.Generator
	fraud     FraudChecker
	assistant Assistant
	alerts    *alert.Engine
	presence  presence.Tracker
	tasks     TaskRunner
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithFraudChecker(checker FraudChecker) Option {
	return func(s *Service) { s.fraud = checker }
}

func WithAssistant(a Assistant) Option {
	return func(s *Service) { s.assistant = a }
}

func WithAlertEngine(engine *alert.Engine) Option {
	return func(s *Service) { s.alerts = engine }
}

func WithPresence(tracker presence.Tracker) Option {
	return func(s *Service) { s.presence = tracker }
}

func WithTaskRunner(runner TaskRunner) Option {
	return func(s *Service) { s.tasks = runner }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeSource swaps the random source of the reference code generator.
func WithCodeSource(intn func(n int64) (int64, error)) Option {
	return func(s *Service) { s.codes.WithSource(intn) }
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		codes:    refcode.NewGenerator(repo.RemoteOrderCodeExists),
		alerts:   alert.NewEngine(nil, 0, nil),
		presence: presence.NewMemoryTracker(presence.DefaultTimeout),
		tasks:    NewAsyncRunner(15 * time.Second),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// logAudit is best effort: a failed write is logged and never changes the
// outcome of the operation being audited.
func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:          xid.New("audit"),
		CashierID:   actor.ID,
		CashierName: actor.Name,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Detail:      detail,
		CreatedAt:   s.clock(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, actor domain.Actor) ([]domain.AuditLog, error) {
	if err := require(actor, domain.PermLogs); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListAuditLogs(ctx, 500)
	if err != nil {
		return nil, storageFailure("list audit logs", err)
	}
	return logs, nil
}
