package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
	"github.com/cg-order-portal/internal/limstest"
)

type tagStore map[string]*domain.ApplicationTag

func (s tagStore) GetApplicationTag(_ context.Context, name string) (*domain.ApplicationTag, error) {
	tag, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("application tag %s: %w", name, domain.ErrNotFound)
	}
	return tag, nil
}

func testTags() tagStore {
	return tagStore{
		"WGSPCFC030": {Name: "WGSPCFC030", Category: "wgs", Versions: []domain.ApplicationTagVersion{{Version: 2, Reads: 30}, {Version: 1, Reads: 25}}},
		"WGTPCFC030": {Name: "WGTPCFC030", Category: "wgs", Versions: []domain.ApplicationTagVersion{{Version: 1, Reads: 30}}},
		"EXOSXTR100": {Name: "EXOSXTR100", Category: "wes", IsPanel: true, Versions: []domain.ApplicationTagVersion{{Version: 1, Reads: 10}}},
		"EXXCUSR000": {Name: "EXXCUSR000", Category: "wes", IsPanel: true, Versions: []domain.ApplicationTagVersion{{Version: 1}}},
		"EXXWGSR000": {Name: "EXXWGSR000", Category: "wgs", Versions: []domain.ApplicationTagVersion{{Version: 1}}},
		"RMLS05R150": {Name: "RMLS05R150", Category: "rml"},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// minimalProject is the single sample scout project used across tests.
func minimalProject() *domain.ProjectRecord {
	return &domain.ProjectRecord{
		Name:     "order-1",
		Customer: "cust001",
		Families: []*domain.FamilyRecord{{
			Name:         "fam1",
			DeliveryType: "scout",
			Priority:     "standard",
			Panels:       []string{"PANEL1"},
			Samples: []*domain.SampleRecord{{
				Name:           "s1",
				Sex:            domain.SexMale,
				Status:         "received",
				Source:         "blood",
				Container:      domain.ContainerTube,
				ApplicationTag: "WGSPCFC030",
			}},
		}},
	}
}

func trioProject() *domain.ProjectRecord {
	return &domain.ProjectRecord{
		Name:     "order-2",
		Customer: "cust001",
		Families: []*domain.FamilyRecord{{
			Name:         "fam2",
			DeliveryType: "scout",
			Priority:     "priority",
			RequireQCOK:  true,
			Panels:       []string{"OMIM", "PANEL1"},
			Samples: []*domain.SampleRecord{
				{Name: "child", Sex: domain.SexFemale, Status: "affected", Source: "blood", Container: domain.ContainerPlate, ContainerName: "plate1", WellPosition: "A:1", ApplicationTag: "WGSPCFC030", Mother: "mom", Father: "dad"},
				{Name: "mom", Sex: domain.SexFemale, Status: "unaffected", Source: "blood", Container: domain.ContainerPlate, ContainerName: "plate1", WellPosition: "B:1", ApplicationTag: "WGSPCFC030"},
				{Name: "dad", Sex: domain.SexMale, Status: "unaffected", Source: "blood", Container: domain.ContainerTube, ApplicationTag: "WGSPCFC030"},
			},
		}},
	}
}

func newTestValidator(fake *limstest.Fake) *Validator {
	return NewValidator(testTags(), fake, quietLogger())
}

func prepare(project *domain.ProjectRecord) *domain.PreparedProject {
	prepared, err := newTestValidator(limstest.NewFake()).Prepare(context.Background(), project)
	if err != nil {
		panic(err)
	}
	return prepared
}

func existingSample(name, customer, family string) domain.LimsSample {
	sample := domain.LimsSample{ID: "OLD" + name, Name: name}
	sample.UDFs.Set(domain.UDFCustomer, customer)
	sample.UDFs.Set(domain.UDFFamilyID, family)
	return sample
}
