package orderform

import (
	"fmt"
	"sort"

	"github.com/cg-order-portal/internal/domain"
)

// SampleGroup is the samples of one family in row order.
type SampleGroup struct {
	Family  string
	Samples []*ParsedSample
}

// GroupFamilies groups samples by family id. Families keep the order in
// which they were first seen.
func GroupFamilies(samples []*ParsedSample) []*SampleGroup {
	var groups []*SampleGroup
	index := make(map[string]*SampleGroup)
	for _, sample := range samples {
		group, ok := index[sample.Family]
		if !ok {
			group = &SampleGroup{Family: sample.Family}
			index[sample.Family] = group
			groups = append(groups, group)
		}
		group.Samples = append(group.Samples, sample)
	}
	return groups
}

// ExpandFamily derives the family level fields from its samples.
func ExpandFamily(group *SampleGroup) (*domain.FamilyRecord, error) {
	deliveryTypes := distinct(group.Samples, func(s *ParsedSample) string { return s.DeliveryType })
	if len(deliveryTypes) != 1 {
		return nil, familyError(group.Family, "incorrect delivery types", deliveryTypes)
	}

	priority, err := familyPriority(group)
	if err != nil {
		return nil, err
	}

	customers := distinct(group.Samples, func(s *ParsedSample) string { return s.Customer })
	if len(customers) != 1 {
		return nil, familyError(group.Family, "invalid customer information", customers)
	}

	family := &domain.FamilyRecord{
		Name:         group.Family,
		DeliveryType: deliveryTypes[0],
		Priority:     priority,
		Customer:     customers[0],
	}

	panels := make(map[string]bool)
	for _, sample := range group.Samples {
		if sample.RequireQCOK {
			family.RequireQCOK = true
		}
		for _, panel := range sample.Panels {
			panels[panel] = true
		}
		record := sample.SampleRecord
		family.Samples = append(family.Samples, &record)
	}
	for panel := range panels {
		family.Panels = append(family.Panels, panel)
	}
	sort.Strings(family.Panels)

	return family, nil
}

// familyPriority picks the single priority of a family. Differing
// priorities are only allowed when one of them is the override.
func familyPriority(group *SampleGroup) (string, error) {
	priorities := distinct(group.Samples, func(s *ParsedSample) string { return s.Priority })
	if len(priorities) == 1 {
		return priorities[0], nil
	}
	for _, priority := range priorities {
		if priority == domain.PriorityOverride {
			return domain.PriorityOverride, nil
		}
	}
	return "", familyError(group.Family, "conflicting priorities", priorities)
}

// AssembleProject combines families into a project owned by exactly one customer.
func AssembleProject(name string, families []*domain.FamilyRecord) (*domain.ProjectRecord, error) {
	customers := make(map[string]bool)
	var ordered []string
	for _, family := range families {
		if !customers[family.Customer] {
			customers[family.Customer] = true
			ordered = append(ordered, family.Customer)
		}
	}
	if len(ordered) != 1 {
		sort.Strings(ordered)
		return nil, domain.NewPipelineError(domain.ErrValidation, domain.EntityProject, name,
			fmt.Sprintf("invalid customer information: %v", ordered)).WithField("customer")
	}

	return &domain.ProjectRecord{
		Name:     name,
		Customer: ordered[0],
		Families: families,
	}, nil
}

// distinct returns the sorted set of values picked from samples.
func distinct(samples []*ParsedSample, pick func(*ParsedSample) string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, sample := range samples {
		value := pick(sample)
		if !seen[value] {
			seen[value] = true
			values = append(values, value)
		}
	}
	sort.Strings(values)
	return values
}

func familyError(family, message string, values []string) *domain.PipelineError {
	return domain.NewPipelineError(domain.ErrValidation, domain.EntityFamily, family,
		fmt.Sprintf("%s: %v", message, values))
}
