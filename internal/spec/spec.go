// Package spec loads externally authored spec documents and DRI
// assignments. Crew only reads these documents; it never writes them.
package spec

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/crew/internal/errors"
)

// Section names a structural part of a spec that needs an accountable owner.
type Section string

const (
	SectionGoals             Section = "goals"
	SectionNonGoals          Section = "non_goals"
	SectionRequirements      Section = "requirements"
	SectionRisks             Section = "risks"
	SectionMitigations       Section = "mitigations"
	SectionRolloutPlan       Section = "rollout_plan"
	SectionRollbackPlan      Section = "rollback_plan"
	SectionTestPlan          Section = "test_plan"
	SectionObservabilityPlan Section = "observability_plan"
)

// StructuralSections lists every section that must have a DRI, in
// document order.
var StructuralSections = []Section{
	SectionGoals,
	SectionNonGoals,
	SectionRequirements,
	SectionRisks,
	SectionMitigations,
	SectionRolloutPlan,
	SectionRollbackPlan,
	SectionTestPlan,
	SectionObservabilityPlan,
}

// Requirement is a single traceable requirement.
type Requirement struct {
	ID                 string   `yaml:"id" json:"id"`
	Title              string   `yaml:"title" json:"title"`
	Description        string   `yaml:"description,omitempty" json:"description,omitempty"`
	Priority           string   `yaml:"priority,omitempty" json:"priority,omitempty"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria,omitempty" json:"acceptanceCriteria,omitempty"`
	AssignedDRI        string   `yaml:"assigned_dri,omitempty" json:"assignedDri,omitempty"`
}

// DRIAssignment names the owner of a structural section or, when Section
// holds a requirement ID, of that requirement.
type DRIAssignment struct {
	Section string `yaml:"section" json:"section"`
	Owner   string `yaml:"owner" json:"owner"`
}

// Spec is a spec-driven-development document.
type Spec struct {
	ID                string          `yaml:"id" json:"id"`
	Title             string          `yaml:"title" json:"title"`
	Goals             []string        `yaml:"goals,omitempty" json:"goals,omitempty"`
	NonGoals          []string        `yaml:"non_goals,omitempty" json:"nonGoals,omitempty"`
	Requirements      []Requirement   `yaml:"requirements" json:"requirements"`
	Risks             []string        `yaml:"risks,omitempty" json:"risks,omitempty"`
	Mitigations       []string        `yaml:"mitigations,omitempty" json:"mitigations,omitempty"`
	RolloutPlan       string          `yaml:"rollout_plan,omitempty" json:"rolloutPlan,omitempty"`
	RollbackPlan      string          `yaml:"rollback_plan,omitempty" json:"rollbackPlan,omitempty"`
	TestPlan          string          `yaml:"test_plan,omitempty" json:"testPlan,omitempty"`
	ObservabilityPlan string          `yaml:"observability_plan,omitempty" json:"observabilityPlan,omitempty"`
	DRI               []DRIAssignment `yaml:"dri,omitempty" json:"dri,omitempty"`
}

// RequirementIDs returns the requirement IDs in document order.
func (s *Spec) RequirementIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Requirements))
	for _, r := range s.Requirements {
		ids = append(ids, r.ID)
	}
	return ids
}

// HasRequirements reports whether the spec declares at least one requirement.
func (s *Spec) HasRequirements() bool {
	return s != nil && len(s.Requirements) > 0
}

// Validate checks that requirement IDs are present and unique.
func (s *Spec) Validate() error {
	seen := make(map[string]bool, len(s.Requirements))
	for i, r := range s.Requirements {
		if strings.TrimSpace(r.ID) == "" {
			return errors.NewValidationError(fmt.Sprintf("requirements[%d].id", i), "requirement id is required")
		}
		if seen[r.ID] {
			return errors.NewValidationError(fmt.Sprintf("requirements[%d].id", i), fmt.Sprintf("duplicate requirement id %q", r.ID))
		}
		seen[r.ID] = true
	}
	return nil
}

// Parse reads a spec from YAML. A Markdown document with YAML frontmatter
// is also accepted; only the frontmatter is read.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(frontmatter(data), &s); err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a spec file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	return Parse(data)
}

// LoadDRIAssignments reads DRI assignments from a YAML file holding either
// a list or a mapping with an "assignments" list.
func LoadDRIAssignments(path string) ([]DRIAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dri assignments: %w", err)
	}

	var list []DRIAssignment
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Assignments []DRIAssignment `yaml:"assignments"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse dri assignments: %w", err)
	}
	return doc.Assignments, nil
}

func frontmatter(data []byte) []byte {
	trimmed := bytes.TrimLeft(data, "\uFEFF \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return data
	}
	rest := trimmed[3:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	}
	if end := bytes.Index(rest, []byte("\n---")); end >= 0 {
		return rest[:end]
	}
	return rest
}
