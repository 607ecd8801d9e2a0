// Package limstest provides an in-memory LIMS for tests.
package limstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cg-order-portal/internal/domain"
)

// Call is one recorded LIMS call.
type Call struct {
	Operation string
	Name      string
}

// Operations recorded by Fake.
const (
	OpGetSamples      = "get_samples"
	OpCreateProject   = "create_project"
	OpPutProject      = "put_project"
	OpCreateContainer = "create_container"
	OpCreateSample    = "create_sample"
)

// Fake is an in-memory LIMS recording every call. Existing samples are
// matched by name and user-defined field values.
type Fake struct {
	mu         sync.Mutex
	calls      []Call
	nextID     int
	Samples    []domain.LimsSample
	Projects   []*domain.LimsProject
	Containers []*domain.LimsContainer

	// FailOn makes the named operation fail once it has been called
	// FailAfter times successfully.
	FailOn    string
	FailAfter int
	failCount int
}

// NewFake creates a fake LIMS holding the given existing samples.
func NewFake(existing ...domain.LimsSample) *Fake {
	return &Fake{Samples: existing}
}

// Calls returns the recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CreateCalls returns the number of calls that created or changed resources.
func (f *Fake) CreateCalls() int {
	n := 0
	for _, call := range f.Calls() {
		if call.Operation != OpGetSamples {
			n++
		}
	}
	return n
}

// CreatedSamples returns the samples created through the fake.
func (f *Fake) CreatedSamples() []domain.LimsSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	var created []domain.LimsSample
	for _, sample := range f.Samples {
		if sample.ProjectURI != "" {
			created = append(created, sample)
		}
	}
	return created
}

func (f *Fake) record(op, name string) error {
	f.calls = append(f.calls, Call{Operation: op, Name: name})
	if f.FailOn == op {
		if f.failCount >= f.FailAfter {
			return fmt.Errorf("lims unavailable during %s %q", op, name)
		}
		f.failCount++
	}
	return nil
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

// GetSamples implements domain.LimsClient.
func (f *Fake) GetSamples(_ context.Context, query domain.LimsSampleQuery) ([]domain.LimsSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpGetSamples, query.Name); err != nil {
		return nil, err
	}

	var matches []domain.LimsSample
	for _, sample := range f.Samples {
		if query.Name != "" && sample.Name != query.Name {
			continue
		}
		if matchUDFs(sample.UDFs, query.UDFs) {
			matches = append(matches, sample)
		}
	}
	return matches, nil
}

func matchUDFs(udfs domain.UDFList, want map[string]string) bool {
	for name, value := range want {
		if got, ok := udfs.Get(name); !ok || got != value {
			return false
		}
	}
	return true
}

// CreateProject implements domain.LimsClient.
func (f *Fake) CreateProject(_ context.Context, researcherID, name string) (*domain.LimsProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateProject, name); err != nil {
		return nil, err
	}
	id := f.id("ACC")
	project := &domain.LimsProject{
		ID:            id,
		URI:           "http://lims.test/api/v2/projects/" + id,
		Name:          name,
		ResearcherURI: "http://lims.test/api/v2/researchers/" + researcherID,
	}
	f.Projects = append(f.Projects, project)
	copied := *project
	return &copied, nil
}

// PutProject implements domain.LimsClient.
func (f *Fake) PutProject(_ context.Context, project *domain.LimsProject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpPutProject, project.Name); err != nil {
		return err
	}
	for i, stored := range f.Projects {
		if stored.URI == project.URI {
			copied := *project
			copied.UDFs = append(domain.UDFList(nil), project.UDFs...)
			f.Projects[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("project %q: %w", project.URI, domain.ErrNotFound)
}

// CreateContainer implements domain.LimsClient.
func (f *Fake) CreateContainer(_ context.Context, name, containerTypeID string) (*domain.LimsContainer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateContainer, name); err != nil {
		return nil, err
	}
	id := f.id("27-")
	container := &domain.LimsContainer{
		ID:      id,
		URI:     "http://lims.test/api/v2/containers/" + id,
		Name:    name,
		TypeURI: "http://lims.test/api/v2/containertypes/" + containerTypeID,
	}
	f.Containers = append(f.Containers, container)
	copied := *container
	return &copied, nil
}

// CreateSample implements domain.LimsClient.
func (f *Fake) CreateSample(_ context.Context, sample *domain.LimsSample) (*domain.LimsSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateSample, sample.Name); err != nil {
		return nil, err
	}
	created := *sample
	created.ID = f.id("ACC1A")
	created.URI = "http://lims.test/api/v2/samples/" + created.ID
	created.UDFs = append(domain.UDFList(nil), sample.UDFs...)
	if created.Position == "" {
		created.Position = domain.DefaultWellPosition
	}
	f.Samples = append(f.Samples, created)
	return &created, nil
}

var _ domain.LimsClient = (*Fake)(nil)
