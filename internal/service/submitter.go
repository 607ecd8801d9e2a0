package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

// DefaultResearcherID is the LIMS researcher owning submitted projects.
const DefaultResearcherID = "3"

// Submission is the set of LIMS resources created for a project.
type Submission struct {
	Project    *domain.LimsProject    `json:"project"`
	Containers []*domain.LimsContainer `json:"containers"`
	Samples    []*domain.LimsSample    `json:"samples"`
}

// Submitter creates projects, containers and samples in the LIMS.
type Submitter struct {
	lims         domain.LimsClient
	researcherID string
	logger       *logrus.Logger
}

// NewSubmitter creates a submitter. An empty researcher id selects DefaultResearcherID.
func NewSubmitter(lims domain.LimsClient, researcherID string, logger *logrus.Logger) *Submitter {
	if researcherID == "" {
		researcherID = DefaultResearcherID
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Submitter{lims: lims, researcherID: researcherID, logger: logger}
}

// Submit creates the project, then each container followed by its samples.
// Calls are strictly sequential. A failure stops the submission without
// removing what was already created; the error names the failing entity
// and the log lists everything created before it.
func (s *Submitter) Submit(ctx context.Context, project *domain.PreparedProject, groups []*domain.ContainerGroup) (*Submission, error) {
	submission := &Submission{}
	log := s.logger.WithField("project", project.Name)

	limsProject, err := s.lims.CreateProject(ctx, s.researcherID, project.Name)
	if err != nil {
		return nil, domain.RemoteError(domain.EntityProject, project.Name, "creating project", err)
	}
	submission.Project = limsProject
	log = log.WithField("lims_id", limsProject.ID)

	limsProject.UDFs.Set(domain.UDFCustomerReference, project.Customer)
	if err := s.lims.PutProject(ctx, limsProject); err != nil {
		s.logPartial(log, submission)
		return nil, domain.RemoteError(domain.EntityProject, project.Name, "setting customer reference", err)
	}
	log.Info("Added LIMS project")

	for _, group := range groups {
		container, err := s.lims.CreateContainer(ctx, group.Name, group.TypeID)
		if err != nil {
			s.logPartial(log, submission)
			return nil, domain.RemoteError(domain.EntityContainer, group.Name, "creating container", err)
		}
		submission.Containers = append(submission.Containers, container)
		log.WithFields(logrus.Fields{"container": container.Name, "container_id": container.ID}).Info("Added LIMS container")

		for _, sample := range group.Samples {
			request := &domain.LimsSample{
				Name:         sample.Name,
				ProjectURI:   limsProject.URI,
				ContainerURI: container.URI,
				Position:     wellPosition(sample),
				UDFs:         SampleUDFs(sample),
			}
			created, err := s.lims.CreateSample(ctx, request)
			if err != nil {
				s.logPartial(log, submission)
				return nil, domain.RemoteError(domain.EntitySample, sample.Name, "creating sample", err)
			}
			submission.Samples = append(submission.Samples, created)
			log.WithFields(logrus.Fields{"sample": created.Name, "sample_id": created.ID}).Info("Added LIMS sample")
		}
	}

	return submission, nil
}

func (s *Submitter) logPartial(log *logrus.Entry, submission *Submission) {
	var containers, samples []string
	for _, container := range submission.Containers {
		containers = append(containers, container.ID)
	}
	for _, sample := range submission.Samples {
		samples = append(samples, sample.ID)
	}
	log.WithFields(logrus.Fields{
		"created_containers": containers,
		"created_samples":    samples,
	}).Error("Submission aborted, LIMS left partially populated")
}

func wellPosition(sample *domain.PreparedSample) string {
	if sample.WellPosition == "" {
		return domain.DefaultWellPosition
	}
	return sample.WellPosition
}

// SampleUDFs builds the user-defined fields of a new LIMS sample.
func SampleUDFs(sample *domain.PreparedSample) domain.UDFList {
	family := sample.Family
	var udfs domain.UDFList

	udfs.Set(domain.UDFPriority, family.Priority)
	udfs.Set(domain.UDFDataAnalysis, family.DeliveryType)
	udfs.Set(domain.UDFGeneList, orNA(strings.Join(family.Panels, ";")))
	udfs.Set(domain.UDFGender, sample.Sex.Code())
	udfs.Set(domain.UDFStatus, orNA(sample.Status))
	udfs.Set(domain.UDFSequencing, sample.Tag.Name)
	udfs.Set(domain.UDFTagVersion, strconv.Itoa(sample.TagVersion.Version))
	udfs.Set(domain.UDFSource, orNA(sample.Source))
	udfs.Set(domain.UDFFamilyID, family.Name)
	udfs.Set(domain.UDFCustomer, sample.Customer())
	if sample.Mother != "" {
		udfs.Set(domain.UDFMotherID, sample.Mother)
	}
	if sample.Father != "" {
		udfs.Set(domain.UDFFatherID, sample.Father)
	}
	udfs.Set(domain.UDFReadsMissing, strconv.Itoa(sample.TagVersion.Reads))
	udfs.Set(domain.UDFCaptureKit, orNA(sample.CaptureKit))
	if family.RequireQCOK {
		udfs.Set(domain.UDFRequireQCOK, "yes")
	} else {
		udfs.Set(domain.UDFRequireQCOK, domain.NotApplicable)
	}
	if sample.Quantity != nil {
		udfs.Set(domain.UDFQuantity, strconv.Itoa(*sample.Quantity))
	} else {
		udfs.Set(domain.UDFQuantity, domain.NotApplicable)
	}
	for _, name := range domain.PlaceholderUDFs {
		udfs.Set(name, domain.NotApplicable)
	}
	return udfs
}

func orNA(value string) string {
	if value == "" {
		return domain.NotApplicable
	}
	return value
}
