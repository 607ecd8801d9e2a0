package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cg-order-portal/internal/domain"
	"github.com/cg-order-portal/internal/limstest"
	"github.com/cg-order-portal/internal/lock"
	"github.com/cg-order-portal/internal/telemetry"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetApplicationTag(ctx context.Context, name string) (*domain.ApplicationTag, error) {
	args := m.Called(ctx, name)
	tag, _ := args.Get(0).(*domain.ApplicationTag)
	return tag, args.Error(1)
}

func (m *mockStore) SaveCustomer(ctx context.Context, customer *domain.Customer) error {
	return m.Called(ctx, customer).Error(0)
}

func (m *mockStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	args := m.Called(ctx, customerID)
	customer, _ := args.Get(0).(*domain.Customer)
	return customer, args.Error(1)
}

func (m *mockStore) SaveApplicationTag(ctx context.Context, tag *domain.ApplicationTag) error {
	return m.Called(ctx, tag).Error(0)
}

func (m *mockStore) SaveProject(ctx context.Context, project *domain.ProjectRecord) (int64, error) {
	args := m.Called(ctx, project)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetProject(ctx context.Context, id int64) (*domain.StoredProject, error) {
	args := m.Called(ctx, id)
	project, _ := args.Get(0).(*domain.StoredProject)
	return project, args.Error(1)
}

func (m *mockStore) ListProjects(ctx context.Context, submittedOnly bool) ([]*domain.ProjectSummary, error) {
	args := m.Called(ctx, submittedOnly)
	projects, _ := args.Get(0).([]*domain.ProjectSummary)
	return projects, args.Error(1)
}

func (m *mockStore) LockProject(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) SetLimsID(ctx context.Context, id int64, limsID string) error {
	return m.Called(ctx, id, limsID).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type pipelineFixture struct {
	pipeline *Pipeline
	fake     *limstest.Fake
	spans    *tracetest.SpanRecorder
	metrics  *telemetry.Metrics
	locker   *lock.MemoryLocker
}

func newPipelineFixture(fake *limstest.Fake, opts ...PipelineOption) *pipelineFixture {
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	metrics := telemetry.NewMetrics()
	locker := lock.NewMemoryLocker()
	logger := quietLogger()

	opts = append([]PipelineOption{
		WithTracer(provider.Tracer("test")),
		WithMetrics(metrics),
		WithLocker(locker),
	}, opts...)

	pipeline := NewPipeline(
		NewValidator(testTags(), fake, logger),
		NewSubmitter(fake, DefaultResearcherID, logger),
		logger,
		opts...,
	)
	return &pipelineFixture{pipeline: pipeline, fake: fake, spans: spans, metrics: metrics, locker: locker}
}

func (f *pipelineFixture) spanNames() []string {
	var names []string
	for _, span := range f.spans.Ended() {
		names = append(names, span.Name())
	}
	return names
}

func TestPipeline_SubmitMinimalProject(t *testing.T) {
	fx := newPipelineFixture(limstest.NewFake())

	submission, err := fx.pipeline.Submit(context.Background(), minimalProject())
	require.NoError(t, err)

	assert.Len(t, fx.fake.Projects, 1)
	require.Len(t, fx.fake.Containers, 1)
	assert.Equal(t, "http://lims.test/api/v2/containertypes/2", fx.fake.Containers[0].TypeURI)

	samples := fx.fake.CreatedSamples()
	require.Len(t, samples, 1)
	for name, value := range map[string]string{
		domain.UDFGender:   "M",
		domain.UDFFamilyID: "fam1",
		domain.UDFCustomer: "cust001",
		domain.UDFGeneList: "PANEL1",
	} {
		got, _ := samples[0].UDFs.Get(name)
		assert.Equal(t, value, got, name)
	}
	assert.Equal(t, fx.fake.Projects[0].ID, submission.Project.ID)

	assert.Equal(t, []string{"pipeline.validate", "pipeline.group_containers", "pipeline.create", "pipeline.submit"}, fx.spanNames())
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Submissions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.SamplesSent))

	// the lock is released afterwards
	release, err := fx.locker.Acquire(context.Background(), "submission:cust001:order-1")
	require.NoError(t, err)
	release()
}

func TestPipeline_DuplicateRejectedBeforeAnyCreate(t *testing.T) {
	fx := newPipelineFixture(limstest.NewFake(existingSample("s1", "cust001", "old-family")))

	submission, err := fx.pipeline.Submit(context.Background(), minimalProject())
	assert.Nil(t, submission)
	requireCode(t, err, domain.ErrDuplicate)

	assert.Zero(t, fx.fake.CreateCalls())
	for _, call := range fx.fake.Calls() {
		assert.Equal(t, limstest.OpGetSamples, call.Operation)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Submissions.WithLabelValues("duplicate")))

	ended := fx.spans.Ended()
	require.NotEmpty(t, ended)
	assert.Equal(t, "pipeline.validate", ended[0].Name())
	assert.Equal(t, "Error", ended[0].Status().Code.String())
}

func TestPipeline_ValidationFailuresCreateNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ProjectRecord)
		code   string
	}{
		{"Schema", func(p *domain.ProjectRecord) { p.Customer = "" }, domain.ErrSchema},
		{"Reference", func(p *domain.ProjectRecord) { p.Families[0].Samples[0].ApplicationTag = "NOPE" }, domain.ErrReference},
		{"Family", func(p *domain.ProjectRecord) { p.Families[0].Panels = nil }, domain.ErrValidation},
		{"Sample", func(p *domain.ProjectRecord) { p.Families[0].Samples[0].Source = "" }, domain.ErrValidation},
		{"Container", func(p *domain.ProjectRecord) { p.Families[0].Samples[0].Container = "Bucket" }, domain.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPipelineFixture(limstest.NewFake())
			project := minimalProject()
			tt.mutate(project)

			_, err := fx.pipeline.Submit(context.Background(), project)
			requireCode(t, err, tt.code)
			assert.Zero(t, fx.fake.CreateCalls())
		})
	}
}

func TestPipeline_ConcurrentSubmissionIsRejected(t *testing.T) {
	fx := newPipelineFixture(limstest.NewFake())
	release, err := fx.locker.Acquire(context.Background(), "submission:cust001:order-1")
	require.NoError(t, err)
	defer release()

	_, err = fx.pipeline.Submit(context.Background(), minimalProject())
	assert.ErrorIs(t, err, domain.ErrLocked)
	assert.Empty(t, fx.fake.Calls())
}

func TestPipeline_SubmitRequiresProjectName(t *testing.T) {
	for _, name := range []string{"", "   "} {
		fx := newPipelineFixture(limstest.NewFake())
		project := minimalProject()
		project.Name = name

		submission, err := fx.pipeline.Submit(context.Background(), project)
		assert.Nil(t, submission)
		perr := requireCode(t, err, domain.ErrSchema)
		assert.Equal(t, "name", perr.Field)
		assert.Empty(t, fx.fake.Calls())
		assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Submissions.WithLabelValues("schema")))

		// a nameless submission never takes the shared lock
		release, err := fx.locker.Acquire(context.Background(), "submission:cust001:")
		require.NoError(t, err)
		release()
	}

	// validation alone does not need a name
	fx := newPipelineFixture(limstest.NewFake())
	project := minimalProject()
	project.Name = ""
	_, err := fx.pipeline.ValidateAndPrepare(context.Background(), project)
	assert.NoError(t, err)
}

func TestPipeline_ValidateAndPrepare(t *testing.T) {
	fx := newPipelineFixture(limstest.NewFake())

	prepared, err := fx.pipeline.ValidateAndPrepare(context.Background(), trioProject())
	require.NoError(t, err)
	assert.Len(t, prepared.Samples(), 3)
	assert.Zero(t, fx.fake.CreateCalls())
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Validations.WithLabelValues("success")))
}

func TestPipeline_ProcessStored(t *testing.T) {
	ctx := context.Background()

	t.Run("Submits locked project", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetProject", ctx, int64(7)).Return(&domain.StoredProject{ID: 7, IsLocked: true, Record: minimalProject()}, nil)
		store.On("SetLimsID", ctx, int64(7), "ACC1").Return(nil)
		fx := newPipelineFixture(limstest.NewFake(), WithStore(store))

		submission, err := fx.pipeline.ProcessStored(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "ACC1", submission.Project.ID)
		store.AssertExpectations(t)
	})

	t.Run("Rejects unsubmitted project", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetProject", ctx, int64(7)).Return(&domain.StoredProject{ID: 7, Record: minimalProject()}, nil)
		fx := newPipelineFixture(limstest.NewFake(), WithStore(store))

		_, err := fx.pipeline.ProcessStored(ctx, 7)
		requireCode(t, err, domain.ErrValidation)
		assert.Empty(t, fx.fake.Calls())
	})

	t.Run("Rejects processed project", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetProject", ctx, int64(7)).Return(&domain.StoredProject{ID: 7, IsLocked: true, LimsID: "ACC9", Record: minimalProject()}, nil)
		fx := newPipelineFixture(limstest.NewFake(), WithStore(store))

		_, err := fx.pipeline.ProcessStored(ctx, 7)
		requireCode(t, err, domain.ErrDuplicate)
		assert.Empty(t, fx.fake.Calls())
	})

	t.Run("Unknown project", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetProject", ctx, int64(8)).Return(nil, domain.ErrNotFound)
		fx := newPipelineFixture(limstest.NewFake(), WithStore(store))

		_, err := fx.pipeline.ProcessStored(ctx, 8)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("No store", func(t *testing.T) {
		fx := newPipelineFixture(limstest.NewFake())
		_, err := fx.pipeline.ProcessStored(ctx, 1)
		assert.Error(t, err)
	})
}
