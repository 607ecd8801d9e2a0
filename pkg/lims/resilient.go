package lims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cg-order-portal/internal/domain"
)

// ErrCircuitOpen is returned while the LIMS circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("LIMS circuit breaker open")

// Metrics are the Prometheus collectors of LIMS calls.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the LIMS collectors. A nil registerer skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgadmin",
			Subsystem: "lims",
			Name:      "requests_total",
			Help:      "LIMS API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cgadmin",
			Subsystem: "lims",
			Name:      "request_duration_seconds",
			Help:      "LIMS API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}
	return m
}

// ResilientClient guards a LIMS client with a rate limiter and a circuit
// breaker. Calls are never retried.
type ResilientClient struct {
	next    domain.LimsClient
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *Metrics
	logger  *logrus.Logger
}

// NewResilientClient wraps next. A zero rate limit disables throttling.
func NewResilientClient(next domain.LimsClient, config domain.LimsConfig, metrics *Metrics, logger *logrus.Logger) *ResilientClient {
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	bc := config.Breaker
	minRequests := bc.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	failureRatio := bc.FailureRatio
	if failureRatio == 0 {
		failureRatio = 0.6
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LIMS",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		IsSuccessful: func(err error) bool {
			// client errors say nothing about LIMS health
			var serr *StatusError
			if errors.As(err, &serr) {
				return !serr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})

	return &ResilientClient{
		next:    next,
		breaker: breaker,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// State returns the current circuit breaker state.
func (r *ResilientClient) State() gobreaker.State {
	return r.breaker.State()
}

func (r *ResilientClient) call(ctx context.Context, operation string, fn func() (interface{}, error)) (interface{}, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		r.metrics.Requests.WithLabelValues(operation, "throttled").Inc()
		return nil, fmt.Errorf("waiting for LIMS rate limit: %w", err)
	}

	start := time.Now()
	result, err := r.breaker.Execute(fn)
	r.metrics.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.metrics.Requests.WithLabelValues(operation, "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case err != nil:
		r.metrics.Requests.WithLabelValues(operation, "error").Inc()
		return nil, err
	}
	r.metrics.Requests.WithLabelValues(operation, "ok").Inc()
	return result, nil
}

// GetSamples implements domain.LimsClient.
func (r *ResilientClient) GetSamples(ctx context.Context, query domain.LimsSampleQuery) ([]domain.LimsSample, error) {
	result, err := r.call(ctx, "get_samples", func() (interface{}, error) {
		return r.next.GetSamples(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LimsSample), nil
}

// CreateProject implements domain.LimsClient.
func (r *ResilientClient) CreateProject(ctx context.Context, researcherID, name string) (*domain.LimsProject, error) {
	result, err := r.call(ctx, "create_project", func() (interface{}, error) {
		return r.next.CreateProject(ctx, researcherID, name)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.LimsProject), nil
}

// PutProject implements domain.LimsClient.
func (r *ResilientClient) PutProject(ctx context.Context, project *domain.LimsProject) error {
	_, err := r.call(ctx, "put_project", func() (interface{}, error) {
		return nil, r.next.PutProject(ctx, project)
	})
	return err
}

// CreateContainer implements domain.LimsClient.
func (r *ResilientClient) CreateContainer(ctx context.Context, name, containerTypeID string) (*domain.LimsContainer, error) {
	result, err := r.call(ctx, "create_container", func() (interface{}, error) {
		return r.next.CreateContainer(ctx, name, containerTypeID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.LimsContainer), nil
}

// CreateSample implements domain.LimsClient.
func (r *ResilientClient) CreateSample(ctx context.Context, sample *domain.LimsSample) (*domain.LimsSample, error) {
	result, err := r.call(ctx, "create_sample", func() (interface{}, error) {
		return r.next.CreateSample(ctx, sample)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.LimsSample), nil
}

var _ domain.LimsClient = (*ResilientClient)(nil)
