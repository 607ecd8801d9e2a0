package service

import (
	"github.com/cg-order-portal/internal/domain"
)

// UpgradeTrioTags switches families of exactly three whole genome samples
// to the trio application tag. It returns the names of the upgraded families.
func UpgradeTrioTags(project *domain.ProjectRecord) []string {
	var upgraded []string
	for _, family := range project.Families {
		if len(family.Samples) != 3 || !allTrioCompatible(family.Samples) {
			continue
		}
		changed := false
		for _, sample := range family.Samples {
			if sample.ApplicationTag != domain.WGSTrioApplicationTag {
				sample.ApplicationTag = domain.WGSTrioApplicationTag
				changed = true
			}
		}
		if changed {
			upgraded = append(upgraded, family.Name)
		}
	}
	return upgraded
}

func allTrioCompatible(samples []*domain.SampleRecord) bool {
	for _, sample := range samples {
		switch sample.ApplicationTag {
		case domain.WGSApplicationTag, domain.WGSTrioApplicationTag:
		default:
			return false
		}
	}
	return true
}
