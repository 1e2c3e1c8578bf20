package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/metrics"
	"filmtrack/backend/internal/report"
	"filmtrack/backend/internal/store"
	"filmtrack/backend/internal/xid"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// Ratios overrides the additive shares; nil selects the defaults. Zero
	// ratios are honored.
	Ratios          *calc.Ratios
	GasMaterialCode string
	StrictStock     bool
	Metrics         *metrics.Metrics
}

type Service struct {
	repo    store.Repository
	reports *report.Engine
	ratios  calc.Ratios
	gasCode string
	strict  bool
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(repo store.Repository, reports *report.Engine, opts Options) *Service {
	if reports == nil {
		reports = report.NewEngine(nil, 0)
	}
	ratios := calc.DefaultRatios()
	if opts.Ratios != nil {
		ratios = *opts.Ratios
	}
	if opts.GasMaterialCode == "" {
		opts.GasMaterialCode = "GAZ001"
	}

	return &Service{
		repo:    repo,
		reports: reports,
		ratios:  ratios,
		gasCode: opts.GasMaterialCode,
		strict:  opts.StrictStock,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("filmtrack/service"),
	}
}

// authorize resolves the actor and checks the role policy. Every exported
// operation calls it first, so the HTTP layer is never the only gate.
func (s *Service) authorize(ctx context.Context, capability Capability) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	if !Can(actor.Role, capability) {
		return domain.Actor{}, fmt.Errorf("%w: role %s lacks %s", ErrForbidden, actor.Role, capability)
	}
	return actor, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// written runs after every successful mutation.
func (s *Service) written(ctx context.Context, action string, entityType string, entityID string, detail string) {
	s.logAudit(ctx, action, entityType, entityID, detail)
	s.reports.Invalidate(ctx)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     string(actor.Role),
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := s.authorize(ctx, CapAudit); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, invalid("from must be before to")
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func dayOrToday(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
