package domain

import "time"

// ProjectRecord is the submission payload: one customer and its families.
type ProjectRecord struct {
	Name     string          `json:"name,omitempty"`
	Customer string          `json:"customer" validate:"required"`
	Families []*FamilyRecord `json:"families" validate:"required,min=1,dive,required"`
}

// FamilyRecord is a family (case) of related samples.
type FamilyRecord struct {
	Name         string          `json:"name" validate:"required"`
	DeliveryType string          `json:"delivery_type" validate:"required"`
	Priority     string          `json:"priority" validate:"required"`
	RequireQCOK  bool            `json:"require_qcok"`
	Panels       []string        `json:"panels"`
	Samples      []*SampleRecord `json:"samples" validate:"required,min=1,dive,required"`

	// Customer is only set while assembling from an order form.
	Customer string `json:"-"`
}

// SampleRecord is a single sample. Empty optional strings mean the field is absent.
type SampleRecord struct {
	Name           string `json:"name" validate:"required"`
	Sex            Sex    `json:"sex,omitempty" validate:"omitempty,oneof=male female unknown"`
	Status         string `json:"status,omitempty"`
	Source         string `json:"source,omitempty"`
	Container      string `json:"container,omitempty"`
	ContainerName  string `json:"container_name,omitempty"`
	WellPosition   string `json:"well_position,omitempty"`
	ApplicationTag string `json:"application_tag" validate:"required"`
	CaptureKit     string `json:"capture_kit,omitempty"`
	Quantity       *int   `json:"quantity,omitempty" validate:"omitempty,min=0"`
	Mother         string `json:"mother,omitempty"`
	Father         string `json:"father,omitempty"`
}

// Samples returns every sample of the project in family order.
func (p *ProjectRecord) Samples() []*SampleRecord {
	var samples []*SampleRecord
	for _, family := range p.Families {
		samples = append(samples, family.Samples...)
	}
	return samples
}

// Sample returns the family member with the given name.
func (f *FamilyRecord) Sample(name string) (*SampleRecord, bool) {
	for _, sample := range f.Samples {
		if sample.Name == name {
			return sample, true
		}
	}
	return nil, false
}

// Parents returns the declared parent names of the sample, mother first.
func (s *SampleRecord) Parents() []string {
	var parents []string
	if s.Mother != "" {
		parents = append(parents, s.Mother)
	}
	if s.Father != "" {
		parents = append(parents, s.Father)
	}
	return parents
}

// PreparedProject is a validated project enriched with reference data.
type PreparedProject struct {
	Name     string
	Customer string
	Families []*PreparedFamily
}

// PreparedFamily links a family record to its prepared samples and project.
type PreparedFamily struct {
	*FamilyRecord
	Project *PreparedProject
	Members []*PreparedSample
}

// PreparedSample carries the resolved application tag and back-references.
type PreparedSample struct {
	*SampleRecord
	Family     *PreparedFamily
	Tag        *ApplicationTag
	TagVersion *ApplicationTagVersion
	IsExternal bool
}

// Customer returns the customer id of the project the sample belongs to.
func (s *PreparedSample) Customer() string {
	return s.Family.Project.Customer
}

// Samples returns all prepared samples in family order.
func (p *PreparedProject) Samples() []*PreparedSample {
	var samples []*PreparedSample
	for _, family := range p.Families {
		samples = append(samples, family.Members...)
	}
	return samples
}

// ContainerGroup is a physical container and the samples placed in it.
type ContainerGroup struct {
	Key     string
	Name    string
	TypeID  string
	Tube    bool
	Samples []*PreparedSample
}

// Customer is a paying customer of the lab.
type Customer struct {
	ID          int64  `json:"-" yaml:"-"`
	CustomerID  string `json:"customer_id" yaml:"customer_id"`
	Name        string `json:"name" yaml:"name"`
	ScoutAccess bool   `json:"scout_access" yaml:"scout_access"`
}

// StoredProject is a project persisted by the order portal.
type StoredProject struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	IsLocked  bool           `json:"is_locked"`
	LimsID    string         `json:"lims_id,omitempty"`
	Record    *ProjectRecord `json:"project"`
}

// ProjectSummary is a listing entry of stored projects.
type ProjectSummary struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	CustomerID string    `json:"customer"`
	IsLocked   bool      `json:"is_locked"`
	LimsID     string    `json:"lims_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
