// Package orgs knows which practices exist, which CCG each belongs to, and
// how to group practice rows of the matrix store by organisation type.
package orgs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/giygas/ppu-savings/matrix"
)

// OrgType names a way of grouping practices
type OrgType string

const (
	OrgTypePractice OrgType = "practice"
	// OrgTypeStandardPractice is every ordinary GP practice (setting 4)
	OrgTypeStandardPractice OrgType = "standard_practice"
	OrgTypeCCG              OrgType = "ccg"
	// OrgTypeAllStandardPractices is a single group, with id "", holding
	// every standard practice
	OrgTypeAllStandardPractices OrgType = "all_standard_practices"
)

// StandardPracticeSetting is the epraccur prescribing setting of a GP practice
const StandardPracticeSetting = 4

var ErrUnknownOrgType = errors.New("unknown org type")

// OrgTypes lists every supported org type
var OrgTypes = []OrgType{OrgTypePractice, OrgTypeStandardPractice, OrgTypeCCG, OrgTypeAllStandardPractices}

// ParseOrgType validates an org type name
func ParseOrgType(name string) (OrgType, error) {
	for _, orgType := range OrgTypes {
		if string(orgType) == name {
			return orgType, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOrgType, name)
}

// Practice is one row of the practice register
type Practice struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Setting    int    `json:"setting"`
	CCG        string `json:"ccg,omitempty"`
	StatusCode string `json:"status_code,omitempty"`
	Postcode   string `json:"postcode,omitempty"`
	OpenDate   string `json:"open_date,omitempty"`
	CloseDate  string `json:"close_date,omitempty"`
}

// IsStandard reports whether this is an ordinary GP practice
func (p Practice) IsStandard() bool {
	return p.Setting == StandardPracticeSetting
}

// Registry maps practices onto matrix rows. Row groupers are built on first
// use and kept for the registry's lifetime.
type Registry struct {
	practices map[string]Practice
	offsets   map[string]int

	mu       sync.Mutex
	groupers map[OrgType]*matrix.RowGrouper
}

// NewRegistry combines the practice register with the matrix store's
// practice row offsets. Practices without prescribing rows are kept for
// lookups but never appear in a grouper.
func NewRegistry(practices []Practice, practiceOffsets map[string]int) *Registry {
	r := &Registry{
		practices: make(map[string]Practice, len(practices)),
		offsets:   practiceOffsets,
		groupers:  make(map[OrgType]*matrix.RowGrouper),
	}
	for _, p := range practices {
		r.practices[p.Code] = p
	}
	return r
}

// Practice looks up a practice by code
func (r *Registry) Practice(code string) (Practice, bool) {
	p, ok := r.practices[code]
	return p, ok
}

// Len returns the number of registered practices
func (r *Registry) Len() int {
	return len(r.practices)
}

// RowGrouper returns the grouper for an org type
func (r *Registry) RowGrouper(orgType OrgType) (*matrix.RowGrouper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if grouper, ok := r.groupers[orgType]; ok {
		return grouper, nil
	}

	definition, err := r.definition(orgType)
	if err != nil {
		return nil, err
	}
	grouper := matrix.NewRowGrouper(definition)
	r.groupers[orgType] = grouper
	return grouper, nil
}

// HasOrg reports whether id is a group of the given org type
func (r *Registry) HasOrg(orgType OrgType, id string) bool {
	grouper, err := r.RowGrouper(orgType)
	if err != nil {
		return false
	}
	_, ok := grouper.Offset(id)
	return ok
}

func (r *Registry) definition(orgType OrgType) ([]matrix.GroupMember, error) {
	var definition []matrix.GroupMember

	switch orgType {
	case OrgTypePractice:
		for code, row := range r.offsets {
			definition = append(definition, matrix.GroupMember{Row: row, GroupID: code})
		}
	case OrgTypeStandardPractice, OrgTypeAllStandardPractices:
		for code, row := range r.offsets {
			if p, ok := r.practices[code]; ok && p.IsStandard() {
				groupID := code
				if orgType == OrgTypeAllStandardPractices {
					groupID = ""
				}
				definition = append(definition, matrix.GroupMember{Row: row, GroupID: groupID})
			}
		}
	case OrgTypeCCG:
		for code, row := range r.offsets {
			if p, ok := r.practices[code]; ok && p.CCG != "" {
				definition = append(definition, matrix.GroupMember{Row: row, GroupID: p.CCG})
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrgType, orgType)
	}

	return definition, nil
}
