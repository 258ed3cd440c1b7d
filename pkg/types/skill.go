package types

import (
	"strings"
)

// SkillCategory groups skills in the relationship graph
type SkillCategory string

const (
	CategoryLanguage    SkillCategory = "language"
	CategoryFramework   SkillCategory = "framework"
	CategoryDatabase    SkillCategory = "database"
	CategoryTool        SkillCategory = "tool"
	CategoryMethodology SkillCategory = "methodology"
	CategoryDomain      SkillCategory = "domain"
)

// EdgeType is the relationship carried by a SkillEdge
type EdgeType string

const (
	EdgePrerequisite  EdgeType = "prerequisite"
	EdgeComplementary EdgeType = "complementary"
	EdgeAlternative   EdgeType = "alternative"
	EdgeBuildsOn      EdgeType = "builds_on"
	EdgeUsedWith      EdgeType = "used_with"
	EdgeRelatedTo     EdgeType = "related_to"
)

// SkillNode is a skill or technology in the graph, identified by its normalized name
type SkillNode struct {
	Name       string        `json:"name" mapstructure:"name"`
	Category   SkillCategory `json:"category" mapstructure:"category"`
	Popularity float64       `json:"popularity" mapstructure:"popularity"`
}

// SkillEdge is a directed, typed relationship between two skills
type SkillEdge struct {
	Source   string   `json:"source" mapstructure:"source"`
	Target   string   `json:"target" mapstructure:"target"`
	Type     EdgeType `json:"type" mapstructure:"type"`
	Strength float64  `json:"strength" mapstructure:"strength"` // [0,1]
}

// DeveloperSkill is a developer->skill edge
type DeveloperSkill struct {
	Skill           string  `json:"skill" mapstructure:"skill"`
	Proficiency     float64 `json:"proficiency" mapstructure:"proficiency"`           // [0,1]
	ExperienceYears float64 `json:"experience_years" mapstructure:"experience_years"` // >= 0
}

// NormalizeSkill returns the canonical form of a skill name
func NormalizeSkill(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// NormalizeSkills normalizes and deduplicates a skill list, preserving first-seen order
func NormalizeSkills(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = NormalizeSkill(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ValidateType checks if the edge type is known
func (e *SkillEdge) ValidateType() error {
	switch e.Type {
	case EdgePrerequisite, EdgeComplementary, EdgeAlternative, EdgeBuildsOn, EdgeUsedWith, EdgeRelatedTo:
		return nil
	default:
		return ErrInvalidEdgeType
	}
}

// Validate performs validation of the edge
func (e *SkillEdge) Validate() error {
	if NormalizeSkill(e.Source) == "" || NormalizeSkill(e.Target) == "" {
		return ErrEmptySkillName
	}
	if err := e.ValidateType(); err != nil {
		return err
	}
	if e.Strength < 0 || e.Strength > 1 {
		return ErrInvalidStrength
	}
	return nil
}

// Validate checks the developer skill ranges
func (s *DeveloperSkill) Validate() error {
	if NormalizeSkill(s.Skill) == "" {
		return ErrEmptySkillName
	}
	if s.Proficiency < 0 || s.Proficiency > 1 {
		return ErrInvalidProficiency
	}
	if s.ExperienceYears < 0 {
		return ErrInvalidExperience
	}
	return nil
}
