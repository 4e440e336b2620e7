// Package service runs the fleet-wide health recompute: a time-gated,
// idempotent batch that rebuilds every entity's composite score from audit
// history and adjacent pressure signals.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"aegis/internal/audit"
	"aegis/internal/health"
	"aegis/internal/health/gate"
	"aegis/internal/health/metrics"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// Registry lists the entities the batch covers.
type Registry interface {
	ListEntities(ctx context.Context) ([]id.EntityRef, error)
}

// AuditHistory is the slice of the audit store the aggregator reads. Health
// records are derived state; the history here stays the source of truth.
type AuditHistory interface {
	ListCompletedByEntity(ctx context.Context, ref id.EntityRef) ([]*audit.Audit, error)
	CountOpenCAPAsByEntity(ctx context.Context, ref id.EntityRef) (int, error)
}

// Signals supplies the pressure inputs owned by other domains. When no
// source is wired, those components drop out and the remaining weights are
// renormalized rather than scoring the entity on data nobody has.
type Signals interface {
	OpenIncidents(ctx context.Context, ref id.EntityRef) (int, error)
	CertificationExpiry(ctx context.Context, ref id.EntityRef) (*time.Time, error)
}

// Store persists one current record per entity, replaced whole.
type Store interface {
	Upsert(ctx context.Context, score health.Score) error
	Get(ctx context.Context, ref id.EntityRef) (*health.Score, error)
}

const (
	defaultConcurrency   = 8
	capaPointsPerItem    = 10
	incidentPointsPer    = 15
	certificationHorizon = 90 * 24 * time.Hour
)

// Service computes and serves entity health records.
type Service struct {
	registry    Registry
	history     AuditHistory
	store       Store
	gate        gate.Store
	signals     Signals
	weights     map[id.EntityType]health.Weights
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// Option configures optional service dependencies.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the batch metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSignals wires the incident and certification sources.
func WithSignals(signals Signals) Option {
	return func(s *Service) { s.signals = signals }
}

// WithWeights overrides the per-entity-type component weighting.
func WithWeights(weights map[id.EntityType]health.Weights) Option {
	return func(s *Service) { s.weights = weights }
}

// WithConcurrency bounds the per-entity fan-out of a batch pass.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New constructs the health service. Interval is the minimum spacing between
// effective batch passes, enforced by the gate.
func New(registry Registry, history AuditHistory, store Store, g gate.Store, interval time.Duration, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if history == nil {
		return nil, errors.New("audit history is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if g == nil {
		return nil, errors.New("gate is required")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	s := &Service{
		registry:    registry,
		history:     history,
		store:       store,
		gate:        g,
		interval:    interval,
		weights:     health.DefaultWeights(),
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		tracer:      otel.Tracer("aegis/health"),
	}
	for _, opt := range opts {
		opt(s)
	}
	for entityType, weights := range s.weights {
		if err := weights.Validate(); err != nil {
			return nil, fmt.Errorf("weights for %s: %w", entityType, err)
		}
	}
	return s, nil
}

// Result reports one batch trigger's outcome. A Skipped result is the normal
// answer when the gate is already held for the interval, not a failure.
type Result struct {
	Skipped  bool
	LastRun  time.Time
	Entities int
	Computed int
	Duration time.Duration
}

// RunIfDue recomputes the whole fleet if at least the configured interval has
// elapsed since the last effective run. The gate acquisition is atomic, so
// concurrent triggers yield at most one effective pass; every loser gets
// Skipped. The batch timestamp is pinned once, so reruns over unchanged
// history write bit-identical records.
func (s *Service) RunIfDue(ctx context.Context) (Result, error) {
	now := requestcontext.Now(ctx)

	acquired, lastRun, err := s.gate.TryAcquire(ctx, now, s.interval)
	if err != nil {
		return Result{}, derrors.Wrap(err, derrors.CodeUnavailable, "acquire batch gate")
	}
	if !acquired {
		if s.metrics != nil {
			s.metrics.IncrementSkipped()
		}
		return Result{Skipped: true, LastRun: lastRun}, nil
	}

	ctx, span := s.tracer.Start(ctx, "health.RunIfDue")
	defer span.End()

	// Pin the batch timestamp so every entity in this pass decays history
	// against the same instant.
	ctx = requestcontext.WithTime(ctx, now)

	result, err := s.runBatch(ctx, now)
	if err != nil {
		if rbErr := s.gate.Rollback(context.WithoutCancel(ctx), lastRun); rbErr != nil {
			s.logger.ErrorContext(ctx, "health batch gate rollback failed",
				slog.String("error", rbErr.Error()))
		}
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("health.entities", result.Entities),
		attribute.Int("health.computed", result.Computed),
	)
	if s.metrics != nil {
		s.metrics.IncrementRuns()
		s.metrics.AddEntities(result.Computed)
		s.metrics.ObserveDuration(result.Duration.Seconds())
	}
	s.logger.InfoContext(ctx, "health batch completed",
		slog.Int("entities", result.Entities),
		slog.Int("computed", result.Computed),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (s *Service) runBatch(ctx context.Context, now time.Time) (Result, error) {
	started := time.Now()

	entities, err := s.registry.ListEntities(ctx)
	if err != nil {
		return Result{}, derrors.Wrap(err, derrors.CodeInternal, "list entities")
	}

	var computed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ref := range entities {
		g.Go(func() error {
			score, err := s.computeEntity(gctx, ref, now)
			if err != nil {
				return fmt.Errorf("entity %s/%s: %w", ref.Type, ref.ID, err)
			}
			if err := s.store.Upsert(gctx, score); err != nil {
				return fmt.Errorf("entity %s/%s: upsert: %w", ref.Type, ref.ID, err)
			}
			computed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, derrors.Wrap(err, derrors.CodeInternal, "health batch")
	}

	return Result{
		Entities: len(entities),
		Computed: int(computed.Load()),
		LastRun:  now,
		Duration: time.Since(started),
	}, nil
}

// Compute rebuilds one entity's record outside the batch, for on-demand
// refreshes. It does not touch the gate.
func (s *Service) Compute(ctx context.Context, ref id.EntityRef) (*health.Score, error) {
	if !ref.Type.IsValid() {
		return nil, derrors.Newf(derrors.CodeInvalidInput, "unknown entity type %q", ref.Type)
	}
	score, err := s.computeEntity(ctx, ref, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, score); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "upsert health score")
	}
	return &score, nil
}

// Get returns the entity's current health record.
func (s *Service) Get(ctx context.Context, ref id.EntityRef) (*health.Score, error) {
	score, err := s.store.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.Newf(derrors.CodeNotFound, "no health record for %s/%s", ref.Type, ref.ID)
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "get health score")
	}
	return score, nil
}

func (s *Service) computeEntity(ctx context.Context, ref id.EntityRef, now time.Time) (health.Score, error) {
	audits, err := s.history.ListCompletedByEntity(ctx, ref)
	if err != nil {
		return health.Score{}, fmt.Errorf("list completed audits: %w", err)
	}
	if len(audits) == 0 {
		band := health.NoDataBand()
		return health.Score{
			EntityType:   ref.Type,
			EntityID:     ref.ID,
			Overall:      0,
			Components:   map[health.ComponentKey]float64{},
			Label:        band.Label,
			ColorBand:    band.Color,
			CalculatedAt: now,
		}, nil
	}

	weights, ok := s.weights[ref.Type]
	if !ok {
		return health.Score{}, fmt.Errorf("no component weights for entity type %q", ref.Type)
	}

	components := make(map[health.ComponentKey]float64, len(weights))
	for key := range weights {
		value, present, err := s.component(ctx, key, ref, audits, now)
		if err != nil {
			return health.Score{}, err
		}
		if present {
			components[key] = value
		}
	}

	// Absent components (no wired signal source) drop out; the remaining
	// weights are renormalized over what was actually measured.
	var weightedSum, weightSum float64
	for key, value := range components {
		weightedSum += value * weights[key]
		weightSum += weights[key]
	}
	overall := 0.0
	if weightSum > 0 {
		overall = weightedSum / weightSum
	}

	score := health.Score{
		EntityType:   ref.Type,
		EntityID:     ref.ID,
		Overall:      overall,
		Components:   components,
		CalculatedAt: now,
	}
	// Band after rounding: the label must agree with the overall the record
	// publishes, and a raw 84.96 is stored as 85.0.
	score.Round()
	band := health.BandFor(score.Overall)
	score.Label = band.Label
	score.ColorBand = band.Color
	return score, nil
}

func (s *Service) component(ctx context.Context, key health.ComponentKey, ref id.EntityRef, audits []*audit.Audit, now time.Time) (float64, bool, error) {
	switch key {
	case health.ComponentLatestAudit:
		return audits[0].Overall, true, nil

	case health.ComponentAuditHistory:
		scores := make([]float64, len(audits))
		completed := make([]time.Time, len(audits))
		for i, a := range audits {
			scores[i] = a.Overall
			completed[i] = *a.CompletedAt
		}
		return health.DecayedHistory(scores, completed, now), true, nil

	case health.ComponentCAPAPressure:
		open, err := s.history.CountOpenCAPAsByEntity(ctx, ref)
		if err != nil {
			return 0, false, fmt.Errorf("count open CAPAs: %w", err)
		}
		return health.PressureScore(open, capaPointsPerItem), true, nil

	case health.ComponentIncidentPressure:
		if s.signals == nil {
			return 0, false, nil
		}
		open, err := s.signals.OpenIncidents(ctx, ref)
		if err != nil {
			return 0, false, fmt.Errorf("open incidents: %w", err)
		}
		return health.PressureScore(open, incidentPointsPer), true, nil

	case health.ComponentCertification:
		if s.signals == nil {
			return 0, false, nil
		}
		expiry, err := s.signals.CertificationExpiry(ctx, ref)
		if err != nil {
			return 0, false, fmt.Errorf("certification expiry: %w", err)
		}
		return health.CertificationScore(expiry, now, certificationHorizon), true, nil

	default:
		return 0, false, fmt.Errorf("unknown component %q", key)
	}
}
