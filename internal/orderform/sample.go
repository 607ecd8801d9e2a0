package orderform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cg-order-portal/internal/domain"
)

// ParsedSample is a normalized sample row together with the family level
// fields it contributes to.
type ParsedSample struct {
	domain.SampleRecord

	Row          int
	Family       string
	Customer     string
	DeliveryType string
	Priority     string
	Panels       []string
	RequireQCOK  bool
}

// ParseSample normalizes one raw sample row.
func ParseSample(raw RawSample) (*ParsedSample, error) {
	name := raw.Get(ColSampleName)
	if name == "" {
		return nil, rowError(raw.Row, "", ColSampleName, "sample name is missing")
	}

	sex, err := parseSex(raw.Get(ColGender))
	if err != nil {
		return nil, rowError(raw.Row, name, ColGender, err.Error())
	}

	quantity, err := parseQuantity(raw.Get(ColQuantity))
	if err != nil {
		return nil, rowError(raw.Row, name, ColQuantity, err.Error())
	}

	family := raw.Get(ColFamilyID)
	if family == "" {
		return nil, rowError(raw.Row, name, ColFamilyID, "family id is missing")
	}

	sample := &ParsedSample{
		SampleRecord: domain.SampleRecord{
			Name:           name,
			Sex:            sex,
			Status:         strings.ToLower(raw.Get(ColStatus)),
			Source:         strings.ToLower(raw.Get(ColSource)),
			Container:      raw.Get(ColContainerType),
			ContainerName:  raw.Get(ColContainerName),
			WellPosition:   raw.Get(ColWellLocation),
			ApplicationTag: raw.Get(ColApplicationTag),
			CaptureKit:     raw.Get(ColCaptureKit),
			Quantity:       quantity,
			Mother:         raw.Get(ColMotherID),
			Father:         raw.Get(ColFatherID),
		},
		Row:          raw.Row,
		Family:       family,
		Customer:     raw.Get(ColCustomer),
		DeliveryType: raw.Get(ColDataAnalysis),
		Priority:     normalizePriority(raw.Get(ColPriority)),
		Panels:       SplitPanels(raw.Get(ColGeneList)),
		RequireQCOK:  parseFlag(raw.Get(ColRequireQCOK)),
	}
	return sample, nil
}

// SplitPanels splits a gene list separated by ';' or ':' into panel names.
func SplitPanels(value string) []string {
	value = strings.ReplaceAll(value, ":", ";")
	var panels []string
	for _, panel := range strings.Split(value, ";") {
		if panel = strings.TrimSpace(panel); panel != "" {
			panels = append(panels, panel)
		}
	}
	return panels
}

func normalizePriority(value string) string {
	value = strings.ToLower(value)
	if value == domain.PriorityLocalizedLabel {
		return domain.PriorityOverride
	}
	return value
}

func parseSex(code string) (domain.Sex, error) {
	if code == "" {
		return "", nil
	}
	return domain.SexFromCode(code)
}

// parseQuantity accepts integral cell text such as "250" or "250.0".
func parseQuantity(value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, fmt.Errorf("quantity %q is not a whole number", value)
	}
	n := int(f)
	return &n, nil
}

func parseFlag(value string) bool {
	switch strings.ToLower(value) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

func rowError(row int, sample, field, message string) *domain.PipelineError {
	perr := domain.NewPipelineError(domain.ErrParse, domain.EntitySample, sample,
		fmt.Sprintf("row %d: %s", row, message)).WithField(field)
	if sample == "" {
		perr.Entity = ""
	}
	return perr
}
