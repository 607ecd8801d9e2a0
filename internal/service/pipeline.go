package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cg-order-portal/internal/domain"
	"github.com/cg-order-portal/internal/telemetry"
)

// Pipeline runs order submissions: validation, container grouping and
// LIMS creation, in that order.
type Pipeline struct {
	validator *Validator
	submitter *Submitter
	store     domain.ProjectStore
	locker    domain.Locker
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	logger    *logrus.Logger
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithStore enables processing of stored projects.
func WithStore(store domain.ProjectStore) PipelineOption {
	return func(p *Pipeline) { p.store = store }
}

// WithLocker guards submissions against running twice at once.
func WithLocker(locker domain.Locker) PipelineOption {
	return func(p *Pipeline) { p.locker = locker }
}

// WithMetrics records pipeline outcomes.
func WithMetrics(metrics *telemetry.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = metrics }
}

// WithTracer overrides the tracer of the global provider.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = tracer }
}

// NewPipeline creates a pipeline.
func NewPipeline(validator *Validator, submitter *Submitter, logger *logrus.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	p := &Pipeline{
		validator: validator,
		submitter: submitter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = telemetry.Tracer()
	}
	if p.metrics == nil {
		p.metrics = telemetry.NewMetrics()
	}
	return p
}

// Metrics returns the collectors the pipeline reports to.
func (p *Pipeline) Metrics() *telemetry.Metrics {
	return p.metrics
}

// ValidateAndPrepare validates a project without writing to the LIMS.
func (p *Pipeline) ValidateAndPrepare(ctx context.Context, project *domain.ProjectRecord) (*domain.PreparedProject, error) {
	prepared, err := p.validate(ctx, project)
	p.metrics.Validations.WithLabelValues(telemetry.Outcome(err)).Inc()
	return prepared, err
}

func (p *Pipeline) validate(ctx context.Context, project *domain.ProjectRecord) (*domain.PreparedProject, error) {
	var prepared *domain.PreparedProject
	err := p.stage(ctx, "validate", func(ctx context.Context) error {
		var err error
		prepared, err = p.validator.ValidateAndPrepare(ctx, project)
		return err
	})
	return prepared, err
}

// Submit validates the project and creates it in the LIMS. Nothing is
// created unless every validation stage passes.
func (p *Pipeline) Submit(ctx context.Context, project *domain.ProjectRecord) (*Submission, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.submit")
	defer span.End()

	submission, err := p.submit(ctx, project)
	p.metrics.Submissions.WithLabelValues(telemetry.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.WithFields(logrus.Fields{
			"project": projectName(project),
			"code":    domain.CodeOf(err),
		}).WithError(err).Error("Submission failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("lims.project_id", submission.Project.ID))
	p.metrics.SamplesSent.Add(float64(len(submission.Samples)))
	p.logger.WithFields(logrus.Fields{
		"project":    projectName(project),
		"lims_id":    submission.Project.ID,
		"containers": len(submission.Containers),
		"samples":    len(submission.Samples),
	}).Info("Project submitted")
	return submission, nil
}

func (p *Pipeline) submit(ctx context.Context, project *domain.ProjectRecord) (*Submission, error) {
	// The LIMS project and the submission lock are both keyed by name.
	if project != nil && strings.TrimSpace(project.Name) == "" {
		return nil, domain.NewPipelineError(domain.ErrSchema, domain.EntityProject, "",
			"project name is required to submit").WithField("name")
	}
	if project != nil && p.locker != nil {
		release, err := p.locker.Acquire(ctx, submissionLockKey(project))
		if err != nil {
			return nil, fmt.Errorf("locking project %s: %w", project.Name, err)
		}
		defer release()
	}

	prepared, err := p.validate(ctx, project)
	if err != nil {
		return nil, err
	}

	var groups []*domain.ContainerGroup
	err = p.stage(ctx, "group_containers", func(context.Context) error {
		groups, err = GroupContainers(prepared)
		return err
	})
	if err != nil {
		return nil, err
	}

	var submission *Submission
	err = p.stage(ctx, "create", func(ctx context.Context) error {
		submission, err = p.submitter.Submit(ctx, prepared, groups)
		return err
	})
	return submission, err
}

// ProcessStored submits a stored project. Only locked (submitted) projects
// that have not yet reached the LIMS are processed.
func (p *Pipeline) ProcessStored(ctx context.Context, id int64) (*Submission, error) {
	if p.store == nil {
		return nil, errors.New("processing stored project: no project store configured")
	}

	stored, err := p.store.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading project %d: %w", id, err)
	}
	name := stored.Record.Name
	if !stored.IsLocked {
		return nil, domain.NewPipelineError(domain.ErrValidation, domain.EntityProject, name,
			"project has not been submitted").WithField("is_locked")
	}
	if stored.LimsID != "" {
		return nil, domain.NewPipelineError(domain.ErrDuplicate, domain.EntityProject, name,
			fmt.Sprintf("project already in LIMS as %s", stored.LimsID)).WithField("lims_id")
	}

	submission, err := p.Submit(ctx, stored.Record)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetLimsID(ctx, id, submission.Project.ID); err != nil {
		return submission, fmt.Errorf("recording LIMS id of project %d: %w", id, err)
	}
	return submission, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := domain.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("error.code", code))
		}
	}
	return err
}

func submissionLockKey(project *domain.ProjectRecord) string {
	return fmt.Sprintf("submission:%s:%s", project.Customer, project.Name)
}

func projectName(project *domain.ProjectRecord) string {
	if project == nil {
		return ""
	}
	return project.Name
}
