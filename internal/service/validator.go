package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

// Validator checks a project record before anything is written to the LIMS.
type Validator struct {
	tags     domain.ApplicationTagStore
	lims     domain.LimsClient
	validate *validator.Validate
	logger   *logrus.Logger
}

// NewValidator creates a validator resolving tags in tags and checking duplicates in lims.
func NewValidator(tags domain.ApplicationTagStore, lims domain.LimsClient, logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Validator{
		tags:     tags,
		lims:     lims,
		validate: newSchemaValidator(),
		logger:   logger,
	}
}

func newSchemaValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// DecodeProject decodes a single JSON submission payload. Malformed payloads
// and anything after the payload are schema errors.
func DecodeProject(data []byte) (*domain.ProjectRecord, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var project domain.ProjectRecord
	if err := decoder.Decode(&project); err != nil {
		return nil, domain.NewPipelineError(domain.ErrSchema, "", "", "malformed project payload").Wrap(err)
	}
	var trailing json.RawMessage
	if err := decoder.Decode(&trailing); err != io.EOF {
		return nil, domain.NewPipelineError(domain.ErrSchema, "", "", "trailing data after project payload")
	}
	return &project, nil
}

// ValidateAndPrepare runs every validation stage in order: schema,
// reference enrichment, family checks and per-sample LIMS checks. The
// first failure aborts the remaining stages.
func (v *Validator) ValidateAndPrepare(ctx context.Context, project *domain.ProjectRecord) (*domain.PreparedProject, error) {
	if err := v.CheckSchema(project); err != nil {
		return nil, err
	}

	prepared, err := v.Prepare(ctx, project)
	if err != nil {
		return nil, err
	}

	for _, family := range prepared.Families {
		if err := v.CheckFamily(family); err != nil {
			return nil, err
		}
	}
	if err := CheckUniqueNames(prepared); err != nil {
		return nil, err
	}

	for _, sample := range prepared.Samples() {
		if err := v.CheckSample(ctx, sample); err != nil {
			return nil, err
		}
	}

	v.logger.WithFields(logrus.Fields{
		"project":  prepared.Name,
		"customer": prepared.Customer,
		"families": len(prepared.Families),
	}).Info("Project validated")

	return prepared, nil
}

// CheckSchema validates the structure of the record.
func (v *Validator) CheckSchema(project *domain.ProjectRecord) error {
	if project == nil {
		return domain.NewPipelineError(domain.ErrSchema, "", "", "project payload is missing")
	}

	err := v.validate.Struct(project)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return domain.NewPipelineError(domain.ErrSchema, domain.EntityProject, project.Name, "invalid payload").Wrap(err)
	}

	first := fieldErrors[0]
	field := fieldPath(first.Namespace())
	message := fmt.Sprintf("%s failed %q", field, first.Tag())
	if first.Param() != "" {
		message = fmt.Sprintf("%s failed %q (%s)", field, first.Tag(), first.Param())
	}

	details := make([]error, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		details = append(details, domain.NewValidationError(fieldPath(fe.Namespace()), fe.Tag(), fe.Value()))
	}

	return domain.NewPipelineError(domain.ErrSchema, domain.EntityProject, project.Name, message).
		WithField(field).
		Wrap(errors.Join(details...))
}

// fieldPath drops the root type from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// Prepare resolves application tags and links samples to their family and project.
func (v *Validator) Prepare(ctx context.Context, project *domain.ProjectRecord) (*domain.PreparedProject, error) {
	prepared := &domain.PreparedProject{Name: project.Name, Customer: project.Customer}
	tags := make(map[string]*domain.ApplicationTag)

	for _, family := range project.Families {
		pf := &domain.PreparedFamily{FamilyRecord: family, Project: prepared}
		for _, sample := range family.Samples {
			tag, err := v.resolveTag(ctx, tags, sample)
			if err != nil {
				return nil, err
			}
			version, ok := tag.Latest()
			if !ok {
				return nil, domain.NewPipelineError(domain.ErrReference, domain.EntityTag, tag.Name,
					"application tag has no versions")
			}
			pf.Members = append(pf.Members, &domain.PreparedSample{
				SampleRecord: sample,
				Family:       pf,
				Tag:          tag,
				TagVersion:   version,
				IsExternal:   tag.IsExternal(),
			})
		}
		prepared.Families = append(prepared.Families, pf)
	}
	return prepared, nil
}

func (v *Validator) resolveTag(ctx context.Context, cache map[string]*domain.ApplicationTag, sample *domain.SampleRecord) (*domain.ApplicationTag, error) {
	if tag, ok := cache[sample.ApplicationTag]; ok {
		return tag, nil
	}
	tag, err := v.tags.GetApplicationTag(ctx, sample.ApplicationTag)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.NewPipelineError(domain.ErrReference, domain.EntitySample, sample.Name,
			fmt.Sprintf("unknown application tag: %s", sample.ApplicationTag)).WithField("application_tag")
	case err != nil:
		return nil, fmt.Errorf("looking up application tag %s: %w", sample.ApplicationTag, err)
	}
	cache[sample.ApplicationTag] = tag
	return tag, nil
}

// CheckFamily validates relationships and scout requirements of a family.
func (v *Validator) CheckFamily(family *domain.PreparedFamily) error {
	members := make(map[string]bool, len(family.Members))
	declared := 0
	for _, member := range family.Members {
		members[member.Name] = true
		declared += len(member.Parents())
	}

	if len(family.Members) > 1 && declared == 0 {
		return familyRuleError(family, "parents", "no relationships declared between family members")
	}

	for _, member := range family.Members {
		for _, parent := range member.Parents() {
			if parent == member.Name {
				return familyRuleError(family, "parents", fmt.Sprintf("sample %s is declared its own parent", member.Name))
			}
			if !members[parent] {
				return familyRuleError(family, "parents",
					fmt.Sprintf("unresolved parent %s of sample %s", parent, member.Name))
			}
		}
	}

	if family.DeliveryType == domain.DeliveryScout && len(family.Panels) == 0 {
		return familyRuleError(family, "panels", "scout delivery requires at least one gene panel")
	}
	return nil
}

func familyRuleError(family *domain.PreparedFamily, field, message string) error {
	return domain.NewPipelineError(domain.ErrValidation, domain.EntityFamily, family.Name, message).WithField(field)
}

// CheckUniqueNames rejects repeated family or sample names within a project.
func CheckUniqueNames(project *domain.PreparedProject) error {
	families := make(map[string]bool)
	samples := make(map[string]bool)
	for _, family := range project.Families {
		if families[family.Name] {
			return familyRuleError(family, "name", "family name is used more than once")
		}
		families[family.Name] = true
		for _, sample := range family.Members {
			if samples[sample.Name] {
				return domain.NewPipelineError(domain.ErrValidation, domain.EntitySample, sample.Name,
					"sample name is used more than once").WithField("name")
			}
			samples[sample.Name] = true
		}
	}
	return nil
}

// CheckSample checks a sample against the LIMS and the rules of its family.
// Every duplicate check is a fresh LIMS query.
func (v *Validator) CheckSample(ctx context.Context, sample *domain.PreparedSample) error {
	customer := sample.Customer()
	family := sample.Family

	existing, err := v.lims.GetSamples(ctx, domain.LimsSampleQuery{
		Name: sample.Name,
		UDFs: map[string]string{domain.UDFCustomer: customer},
	})
	if err != nil {
		return domain.RemoteError(domain.EntitySample, sample.Name, "checking sample name", err)
	}
	if len(existing) > 0 {
		return domain.NewPipelineError(domain.ErrDuplicate, domain.EntitySample, sample.Name,
			fmt.Sprintf("sample name already exists for customer %s", customer)).WithField("name")
	}

	existing, err = v.lims.GetSamples(ctx, domain.LimsSampleQuery{
		UDFs: map[string]string{domain.UDFCustomer: customer, domain.UDFFamilyID: family.Name},
	})
	if err != nil {
		return domain.RemoteError(domain.EntityFamily, family.Name, "checking family name", err)
	}
	if len(existing) > 0 {
		return domain.NewPipelineError(domain.ErrDuplicate, domain.EntityFamily, family.Name,
			fmt.Sprintf("family name already exists for customer %s", customer)).WithField("name")
	}

	if sample.IsExternal {
		if sample.Tag.IsPanel && sample.CaptureKit == "" {
			return sampleRuleError(sample, "capture_kit", "capture kit is required for external panel samples")
		}
	} else {
		if sample.Container == "" {
			return sampleRuleError(sample, "container", "container is required")
		}
		if sample.Source == "" {
			return sampleRuleError(sample, "source", "source is required")
		}
	}

	if family.DeliveryType == domain.DeliveryScout && sample.Status == "" {
		return sampleRuleError(sample, "status", "status is required for scout delivery")
	}

	v.logger.WithFields(logrus.Fields{
		"sample":   sample.Name,
		"family":   family.Name,
		"customer": customer,
	}).Debug("Sample checked")
	return nil
}

func sampleRuleError(sample *domain.PreparedSample, field, message string) error {
	return domain.NewPipelineError(domain.ErrValidation, domain.EntitySample, sample.Name, message).WithField(field)
}
