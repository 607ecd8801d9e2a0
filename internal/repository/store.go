// Package repository persists customers, application tags and order portal
// projects. PostgresStore is the production store; SQLStore runs the same
// schema on SQLite for single-operator installs.
package repository

import (
	"fmt"
	"strings"

	"github.com/cg-order-portal/internal/domain"
)

const panelSeparator = ";"

func joinPanels(panels []string) string {
	return strings.Join(panels, panelSeparator)
}

func splitPanels(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, panelSeparator)
}

// checkStorable rejects projects that cannot be addressed once stored.
func checkStorable(project *domain.ProjectRecord) error {
	if project == nil {
		return domain.NewPipelineError(domain.ErrSchema, domain.EntityProject, "", "project is empty")
	}
	if project.Name == "" {
		return domain.NewPipelineError(domain.ErrSchema, domain.EntityProject, "",
			"project name is required").WithField("name")
	}
	seen := make(map[string]bool, len(project.Families))
	for _, family := range project.Families {
		if seen[family.Name] {
			return domain.NewPipelineError(domain.ErrDuplicate, domain.EntityFamily, family.Name,
				"family name already used in project").WithField("name")
		}
		seen[family.Name] = true
	}
	return nil
}

func unknownCustomer(customerID string) error {
	return domain.NewPipelineError(domain.ErrReference, domain.EntityCustomer, customerID,
		"unknown customer").WithField("customer")
}

func duplicateProject(project *domain.ProjectRecord) error {
	return domain.NewPipelineError(domain.ErrDuplicate, domain.EntityProject, project.Name,
		fmt.Sprintf("project already exists for customer %s", project.Customer)).WithField("name")
}

func projectNotFound(id int64) error {
	return fmt.Errorf("project %d: %w", id, domain.ErrNotFound)
}

func tagNotFound(name string) error {
	return fmt.Errorf("application tag %s: %w", name, domain.ErrNotFound)
}

func customerNotFound(customerID string) error {
	return fmt.Errorf("customer %s: %w", customerID, domain.ErrNotFound)
}

// projectBuilder reassembles a stored project from its family and sample rows.
type projectBuilder struct {
	record   *domain.ProjectRecord
	families map[int64]*domain.FamilyRecord
}

func newProjectBuilder(name, customer string) *projectBuilder {
	return &projectBuilder{
		record:   &domain.ProjectRecord{Name: name, Customer: customer},
		families: make(map[int64]*domain.FamilyRecord),
	}
}

func (b *projectBuilder) addFamily(id int64, family *domain.FamilyRecord, panels string) {
	family.Panels = splitPanels(panels)
	b.families[id] = family
	b.record.Families = append(b.record.Families, family)
}

func (b *projectBuilder) addSample(familyID int64, sample *domain.SampleRecord) error {
	family, ok := b.families[familyID]
	if !ok {
		return fmt.Errorf("sample %s references unknown family %d", sample.Name, familyID)
	}
	family.Samples = append(family.Samples, sample)
	return nil
}
