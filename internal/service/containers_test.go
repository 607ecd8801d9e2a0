package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg-order-portal/internal/domain"
)

func groupNames(groups []*domain.ContainerGroup) map[string][]string {
	names := make(map[string][]string)
	for _, group := range groups {
		for _, sample := range group.Samples {
			names[group.Key] = append(names[group.Key], sample.Name)
		}
	}
	return names
}

func TestGroupContainers(t *testing.T) {
	project := trioProject()
	project.Families = append(project.Families, &domain.FamilyRecord{
		Name: "fam3", DeliveryType: "fastq", Priority: "standard",
		Samples: []*domain.SampleRecord{
			{Name: "ext", ApplicationTag: "EXXCUSR000", CaptureKit: "kit", Container: domain.ContainerPlate},
			{Name: "late", Source: "blood", Container: domain.ContainerPlate, ContainerName: "plate1", ApplicationTag: "WGSPCFC030"},
			{Name: "named", Source: "blood", Container: domain.ContainerTube, ContainerName: "tube-7", ApplicationTag: "WGSPCFC030"},
		},
	})

	groups, err := GroupContainers(prepare(project))
	require.NoError(t, err)

	keys := make([]string, 0, len(groups))
	for _, group := range groups {
		keys = append(keys, group.Key)
	}
	assert.Equal(t, []string{"plate1", "tube_dad", "tube_ext", "tube_tube-7"}, keys)

	names := groupNames(groups)
	assert.Equal(t, []string{"child", "mom", "late"}, names["plate1"])
	assert.Equal(t, []string{"ext"}, names["tube_ext"])

	plate := groups[0]
	assert.Equal(t, "plate1", plate.Name)
	assert.Equal(t, domain.ContainerTypePlate, plate.TypeID)
	assert.False(t, plate.Tube)

	tube := groups[1]
	assert.Equal(t, "dad", tube.Name)
	assert.Equal(t, domain.ContainerTypeTube, tube.TypeID)
	assert.True(t, tube.Tube)
	assert.Equal(t, "tube-7", groups[3].Name)

	seen := 0
	for _, group := range groups {
		seen += len(group.Samples)
	}
	assert.Equal(t, 6, seen)
}

func TestGroupContainersErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ProjectRecord)
		code    string
		field   string
		message string
	}{
		{
			name:   "Unsupported container",
			mutate: func(p *domain.ProjectRecord) { p.Families[0].Samples[2].Container = "Bucket" },
			code:   domain.ErrUnsupported,
			field:  "container",
		},
		{
			name:   "Plate without name",
			mutate: func(p *domain.ProjectRecord) { p.Families[0].Samples[1].ContainerName = "" },
			code:   domain.ErrValidation,
			field:  "container_name",
		},
		{
			name: "Tube name collision",
			mutate: func(p *domain.ProjectRecord) {
				p.Families[0].Samples[1].Container = domain.ContainerTube
				p.Families[0].Samples[1].ContainerName = "dad"
			},
			code:  domain.ErrValidation,
			field: "container_name",
		},
		{
			name: "Tube named after an earlier plate",
			mutate: func(p *domain.ProjectRecord) {
				p.Families[0].Samples[2].ContainerName = "plate1"
			},
			code:    domain.ErrValidation,
			field:   "container_name",
			message: "both a tube and a plate",
		},
		{
			name: "Plate named after an earlier tube",
			mutate: func(p *domain.ProjectRecord) {
				samples := p.Families[0].Samples
				samples[0], samples[2] = samples[2], samples[0]
				samples[0].ContainerName = "plate1"
			},
			code:    domain.ErrValidation,
			field:   "container_name",
			message: "both a tube and a plate",
		},
		{
			name: "External sample named after a plate",
			mutate: func(p *domain.ProjectRecord) {
				p.Families = append(p.Families, &domain.FamilyRecord{
					Name: "fam3", DeliveryType: "fastq", Priority: "standard",
					Samples: []*domain.SampleRecord{
						{Name: "ext", ApplicationTag: "EXXCUSR000", CaptureKit: "kit", ContainerName: "plate1"},
					},
				})
			},
			code:    domain.ErrValidation,
			field:   "container_name",
			message: "both a tube and a plate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := trioProject()
			tt.mutate(project)
			groups, err := GroupContainers(prepare(project))
			assert.Nil(t, groups)
			perr := requireCode(t, err, tt.code)
			assert.Equal(t, tt.field, perr.Field)
			if tt.message != "" {
				assert.Contains(t, perr.Error(), tt.message)
			}
		})
	}
}
