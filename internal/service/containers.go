package service

import (
	"fmt"

	"github.com/cg-order-portal/internal/domain"
)

// GroupContainers places every sample of the project in a physical
// container. Tubes and external samples get a container of their own;
// plate samples are grouped by container name in encounter order. Groups
// are returned in order of first use.
func GroupContainers(project *domain.PreparedProject) ([]*domain.ContainerGroup, error) {
	var groups []*domain.ContainerGroup
	// byName holds every group under its LIMS container name.
	byName := make(map[string]*domain.ContainerGroup)

	for _, sample := range project.Samples() {
		switch {
		case sample.IsExternal || sample.Container == domain.ContainerTube:
			name := sample.ContainerName
			if name == "" {
				name = sample.Name
			}
			if existing, exists := byName[name]; exists {
				return nil, containerCollision(name, sample, !existing.Tube)
			}
			group := &domain.ContainerGroup{
				Key:     domain.TubeGroupPrefix + name,
				Name:    name,
				TypeID:  domain.ContainerTypeTube,
				Tube:    true,
				Samples: []*domain.PreparedSample{sample},
			}
			byName[name] = group
			groups = append(groups, group)

		case sample.Container == domain.ContainerPlate:
			if sample.ContainerName == "" {
				return nil, domain.NewPipelineError(domain.ErrValidation, domain.EntitySample, sample.Name,
					"plate samples require a container name").WithField("container_name")
			}
			group, ok := byName[sample.ContainerName]
			if !ok {
				group = &domain.ContainerGroup{
					Key:    sample.ContainerName,
					Name:   sample.ContainerName,
					TypeID: domain.ContainerTypePlate,
				}
				byName[sample.ContainerName] = group
				groups = append(groups, group)
			} else if group.Tube {
				return nil, containerCollision(sample.ContainerName, sample, true)
			}
			group.Samples = append(group.Samples, sample)

		default:
			return nil, domain.NewPipelineError(domain.ErrUnsupported, domain.EntitySample, sample.Name,
				fmt.Sprintf("unsupported container: %q", sample.Container)).WithField("container")
		}
	}
	return groups, nil
}

// containerCollision reports a container name claimed twice. mixed is set
// when one claimant is a tube and the other a plate.
func containerCollision(name string, sample *domain.PreparedSample, mixed bool) error {
	message := fmt.Sprintf("tube name is used by more than one sample (%s)", sample.Name)
	if mixed {
		message = fmt.Sprintf("container name is used by both a tube and a plate (%s)", sample.Name)
	}
	return domain.NewPipelineError(domain.ErrValidation, domain.EntityContainer, name, message).WithField("container_name")
}
