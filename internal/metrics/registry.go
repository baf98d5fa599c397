package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain-specific metrics for the application
type Registry struct {
	meter metric.Meter

	// Assessment metrics
	AssessmentDuration metric.Float64Histogram
	AssessmentCounter  metric.Int64Counter
	AssessmentReuses   metric.Int64Counter
	RiskScoreHistogram metric.Float64Histogram

	// Session metrics
	SessionsClosed     metric.Int64Counter
	SessionDuration    metric.Float64Histogram
	RiskFlagCounter    metric.Int64Counter
	OpenSessionsGauge  metric.Int64ObservableGauge

	// Intervention metrics
	InterventionsCreated  metric.Int64Counter
	InterventionsExecuted metric.Int64Counter
	SweepDuration         metric.Float64Histogram
	SweepBacklogGauge     metric.Int64ObservableGauge

	// State for observable metrics
	mu           sync.RWMutex
	openSessions int64
	sweepBacklog int64
}

// NewRegistry creates a new metrics registry with all domain metrics
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{meter: otel.Meter(meterName)}

	if err := r.initAssessmentMetrics(); err != nil {
		return nil, err
	}
	if err := r.initSessionMetrics(); err != nil {
		return nil, err
	}
	if err := r.initInterventionMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initAssessmentMetrics() error {
	var err error

	r.AssessmentDuration, err = r.meter.Float64Histogram(
		"ppb.assessment.duration",
		metric.WithDescription("Duration of a risk analysis in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.AssessmentCounter, err = r.meter.Int64Counter(
		"ppb.assessment.total",
		metric.WithDescription("Total number of risk assessments produced"),
	)
	if err != nil {
		return err
	}

	r.AssessmentReuses, err = r.meter.Int64Counter(
		"ppb.assessment.reuse_total",
		metric.WithDescription("Analyses answered by a still-valid assessment"),
	)
	if err != nil {
		return err
	}

	r.RiskScoreHistogram, err = r.meter.Float64Histogram(
		"ppb.assessment.risk_score",
		metric.WithDescription("Distribution of computed risk scores"),
		metric.WithExplicitBucketBoundaries(0, 20, 40, 60, 80, 100),
	)
	return err
}

func (r *Registry) initSessionMetrics() error {
	var err error

	r.SessionsClosed, err = r.meter.Int64Counter(
		"ppb.session.closed_total",
		metric.WithDescription("Total number of closed gambling sessions"),
	)
	if err != nil {
		return err
	}

	r.SessionDuration, err = r.meter.Float64Histogram(
		"ppb.session.duration_minutes",
		metric.WithDescription("Closed session duration in minutes"),
		metric.WithUnit("min"),
		metric.WithExplicitBucketBoundaries(5, 15, 30, 60, 120, 240, 480),
	)
	if err != nil {
		return err
	}

	r.RiskFlagCounter, err = r.meter.Int64Counter(
		"ppb.session.risk_flag_total",
		metric.WithDescription("Behavioral risk flags raised at session close"),
	)
	if err != nil {
		return err
	}

	r.OpenSessionsGauge, err = r.meter.Int64ObservableGauge(
		"ppb.session.open",
		metric.WithDescription("Currently open gambling sessions"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.openSessions)
			return nil
		}),
	)
	return err
}

func (r *Registry) initInterventionMetrics() error {
	var err error

	r.InterventionsCreated, err = r.meter.Int64Counter(
		"ppb.intervention.created_total",
		metric.WithDescription("Total number of interventions created"),
	)
	if err != nil {
		return err
	}

	r.InterventionsExecuted, err = r.meter.Int64Counter(
		"ppb.intervention.executed_total",
		metric.WithDescription("Total number of interventions executed"),
	)
	if err != nil {
		return err
	}

	r.SweepDuration, err = r.meter.Float64Histogram(
		"ppb.intervention.sweep_duration",
		metric.WithDescription("Duration of one scheduler sweep in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000),
	)
	if err != nil {
		return err
	}

	r.SweepBacklogGauge, err = r.meter.Int64ObservableGauge(
		"ppb.intervention.sweep_backlog",
		metric.WithDescription("Due interventions found by the last sweep"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.sweepBacklog)
			return nil
		}),
	)
	return err
}

// UpdateOpenSessions adjusts the open-session gauge
func (r *Registry) UpdateOpenSessions(delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openSessions += delta
}

// SetSweepBacklog records the due count of the last sweep
func (r *Registry) SetSweepBacklog(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepBacklog = n
}

// RecordAssessment records one completed risk analysis
func (r *Registry) RecordAssessment(ctx context.Context, durationMS float64, level string, reused bool) {
	attrs := metric.WithAttributes(
		attribute.String("risk_level", level),
	)
	if reused {
		r.AssessmentReuses.Add(ctx, 1, attrs)
		return
	}
	r.AssessmentDuration.Record(ctx, durationMS, attrs)
	r.AssessmentCounter.Add(ctx, 1, attrs)
}

// RecordRiskScore records a computed score
func (r *Registry) RecordRiskScore(ctx context.Context, score float64, level string) {
	r.RiskScoreHistogram.Record(ctx, score, metric.WithAttributes(
		attribute.String("risk_level", level),
	))
}

// RecordSessionClose records a closed session and its raised flags
func (r *Registry) RecordSessionClose(ctx context.Context, durationMinutes float64, flags []string) {
	r.SessionsClosed.Add(ctx, 1)
	r.SessionDuration.Record(ctx, durationMinutes)
	for _, flag := range flags {
		r.RiskFlagCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("flag", flag),
		))
	}
}

// RecordInterventionCreated records one created intervention
func (r *Registry) RecordInterventionCreated(ctx context.Context, kind string, automatic bool) {
	r.InterventionsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", kind),
		attribute.Bool("automatic", automatic),
	))
}

// RecordInterventionExecuted records one executed intervention
func (r *Registry) RecordInterventionExecuted(ctx context.Context, kind string, executedBy string) {
	r.InterventionsExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", kind),
		attribute.String("executed_by", executedBy),
	))
}

// RecordSweep records one scheduler pass
func (r *Registry) RecordSweep(ctx context.Context, durationMS float64, due, executed int64) {
	r.SweepDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.Int64("executed", executed),
	))
	r.SetSweepBacklog(due)
}
