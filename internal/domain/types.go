// Package domain contains the core entities of the clinical order portal: the
// project/family/sample records built from order forms, the application tag
// reference data they point at, and the handles of resources created in the
// laboratory information management system (LIMS).
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sex is the biological sex recorded for a sample.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// sexCodes maps a sex onto the code used by the LIMS and the order form.
var sexCodes = map[Sex]string{
	SexMale:    "M",
	SexFemale:  "F",
	SexUnknown: "unknown",
}

// Code returns the LIMS gender code for the sex. An absent sex is reported as unknown.
func (s Sex) Code() string {
	if code, ok := sexCodes[s]; ok {
		return code
	}
	return sexCodes[SexUnknown]
}

// IsValid reports whether s is one of the known sexes.
func (s Sex) IsValid() bool {
	_, ok := sexCodes[s]
	return ok
}

// SexFromCode resolves an order form gender code (M, F, unknown) to a Sex.
func SexFromCode(code string) (Sex, error) {
	code = strings.TrimSpace(code)
	for sex, c := range sexCodes {
		if c == code {
			return sex, nil
		}
	}
	return "", fmt.Errorf("%w: gender code %q", ErrUnknownValue, code)
}

// Container types accepted on samples.
const (
	ContainerTube  = "Tube"
	ContainerPlate = "96 well plate"
)

// LIMS container type identifiers.
const (
	ContainerTypeTube  = "2"
	ContainerTypePlate = "1"
)

// ContainerTypeID returns the LIMS container type for a sample container label.
func ContainerTypeID(container string) (string, bool) {
	switch container {
	case ContainerTube:
		return ContainerTypeTube, true
	case ContainerPlate:
		return ContainerTypePlate, true
	}
	return "", false
}

const (
	// PriorityOverride is the elevated priority that wins over any other priority in a family.
	PriorityOverride = "priority"
	// PriorityLocalizedLabel is the order form spelling of PriorityOverride.
	PriorityLocalizedLabel = "förtur"

	// DeliveryScout is the delivery type of the downstream scout pipeline.
	DeliveryScout = "scout"

	// ExternalTagPrefix marks application tags of externally sequenced samples.
	ExternalTagPrefix = "EXX"

	// DefaultWellPosition is used when a sample declares no well position.
	DefaultWellPosition = "1:1"

	// TubeGroupPrefix prefixes the grouping key of single-sample tube containers.
	TubeGroupPrefix = "tube_"

	// NotApplicable is the LIMS value of fields without a meaningful value.
	NotApplicable = "NA"
)

// Known vocabularies of the order portal.
var (
	Priorities    = []string{"research", "standard", PriorityOverride, "express"}
	DeliveryTypes = []string{"analysis", "fastq", "scout", "analysis-bam", "fastq-bam", "external"}
	Statuses      = []string{"affected", "unaffected", "unknown"}
	Sources       = []string{"blood", "buccal swab", "cell-free dna", "cell line", "fibroblast",
		"muscle", "skin", "tissue (ffpe)", "tissue (fresh frozen)", "other"}
	Containers = []string{ContainerTube, ContainerPlate}
)

// Trio application tags: a family of three whole genome samples is sequenced as a trio.
const (
	WGSApplicationTag     = "WGSPCFC030"
	WGSTrioApplicationTag = "WGTPCFC030"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownValue = errors.New("unknown value")
	ErrLocked       = errors.New("resource locked")
)
