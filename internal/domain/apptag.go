package domain

import (
	"strings"
	"time"
)

// ApplicationTag is a versioned service catalogue code deciding sequencing method and price.
type ApplicationTag struct {
	Name     string                  `json:"name" yaml:"name"`
	Category string                  `json:"category" yaml:"category"`
	IsPanel  bool                    `json:"is_panel" yaml:"is_panel"`
	Versions []ApplicationTagVersion `json:"versions" yaml:"versions"`
}

// ApplicationTagVersion is one priced version of an application tag.
type ApplicationTagVersion struct {
	Version      int       `json:"version" yaml:"version"`
	Reads        int       `json:"reads" yaml:"reads"`
	IsAccredited bool      `json:"is_accredited" yaml:"is_accredited"`
	ValidFrom    time.Time `json:"valid_from" yaml:"valid_from"`
}

// IsExternal reports whether the tag is used for externally sequenced samples.
func (t *ApplicationTag) IsExternal() bool {
	return strings.HasPrefix(t.Name, ExternalTagPrefix)
}

// Latest returns the most recent version. Versions are kept latest first.
func (t *ApplicationTag) Latest() (*ApplicationTagVersion, bool) {
	if len(t.Versions) == 0 {
		return nil, false
	}
	return &t.Versions[0], true
}
