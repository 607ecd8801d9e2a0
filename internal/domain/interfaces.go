package domain

import (
	"context"
)

// ApplicationTagStore resolves application tags by name. Unknown names return ErrNotFound.
type ApplicationTagStore interface {
	GetApplicationTag(ctx context.Context, name string) (*ApplicationTag, error)
}

// LimsClient is the subset of the LIMS API consumed by the submission pipeline.
// Every call is a blocking network round trip.
type LimsClient interface {
	GetSamples(ctx context.Context, query LimsSampleQuery) ([]LimsSample, error)
	CreateProject(ctx context.Context, researcherID, name string) (*LimsProject, error)
	PutProject(ctx context.Context, project *LimsProject) error
	CreateContainer(ctx context.Context, name, containerTypeID string) (*LimsContainer, error)
	CreateSample(ctx context.Context, sample *LimsSample) (*LimsSample, error)
}

// ProjectStore persists order portal projects.
type ProjectStore interface {
	ApplicationTagStore
	SaveCustomer(ctx context.Context, customer *Customer) error
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	SaveApplicationTag(ctx context.Context, tag *ApplicationTag) error
	SaveProject(ctx context.Context, project *ProjectRecord) (int64, error)
	GetProject(ctx context.Context, id int64) (*StoredProject, error)
	ListProjects(ctx context.Context, submittedOnly bool) ([]*ProjectSummary, error)
	LockProject(ctx context.Context, id int64) error
	SetLimsID(ctx context.Context, id int64, limsID string) error
	Close() error
}

// Locker guards a project against concurrent submissions.
type Locker interface {
	// Acquire takes the named lock or fails with ErrLocked. The returned func releases it.
	Acquire(ctx context.Context, key string) (func(), error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetLimsConfig() *LimsConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
