package types

import (
	"fmt"
	"sort"
)

// Importance is the ordinal priority of a project skill requirement
type Importance string

const (
	ImportanceNiceToHave Importance = "nice_to_have"
	ImportancePreferred  Importance = "preferred"
	ImportanceRequired   Importance = "required"
	ImportanceCritical   Importance = "critical"
)

// Rank returns the ordinal position of the importance (nice_to_have=1 .. critical=4), 0 if unknown
func (i Importance) Rank() int {
	switch i {
	case ImportanceNiceToHave:
		return 1
	case ImportancePreferred:
		return 2
	case ImportanceRequired:
		return 3
	case ImportanceCritical:
		return 4
	default:
		return 0
	}
}

// ProjectSkill is a project->skill requirement edge
type ProjectSkill struct {
	Skill         string     `json:"skill" mapstructure:"skill"`
	RequiredLevel float64    `json:"required_level" mapstructure:"required_level"`
	Importance    Importance `json:"importance" mapstructure:"importance"`
	Weight        float64    `json:"weight" mapstructure:"weight"`
}

// Project is a project record as resolved from the profile directory
type Project struct {
	ID          string         `json:"id" mapstructure:"id"`
	Title       string         `json:"title" mapstructure:"title"`
	Description string         `json:"description" mapstructure:"description"`
	Domain      string         `json:"domain" mapstructure:"domain"`
	Industry    string         `json:"industry" mapstructure:"industry"`
	Status      string         `json:"status" mapstructure:"status"`
	Skills      []ProjectSkill `json:"skills" mapstructure:"skills"`
}

// RequiredSkillNames returns the normalized skill names of the project, in requirement order
func (p *Project) RequiredSkillNames() []string {
	names := make([]string, len(p.Skills))
	for i, s := range p.Skills {
		names[i] = s.Skill
	}
	return NormalizeSkills(names)
}

// Normalize canonicalizes skill names, fills defaults and orders requirements by
// importance (highest first) then name
func (p *Project) Normalize() {
	for i := range p.Skills {
		p.Skills[i].Skill = NormalizeSkill(p.Skills[i].Skill)
		if p.Skills[i].Importance == "" {
			p.Skills[i].Importance = ImportanceRequired
		}
		if p.Skills[i].Weight == 0 {
			p.Skills[i].Weight = 1
		}
	}
	sort.SliceStable(p.Skills, func(i, j int) bool {
		ri, rj := p.Skills[i].Importance.Rank(), p.Skills[j].Importance.Rank()
		if ri != rj {
			return ri > rj
		}
		return p.Skills[i].Skill < p.Skills[j].Skill
	})
}

// Validate checks the project record at the engine boundary
func (p *Project) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}
	for i, s := range p.Skills {
		if NormalizeSkill(s.Skill) == "" {
			return fmt.Errorf("skill %d: %w", i, ErrEmptySkillName)
		}
		if s.Importance != "" && s.Importance.Rank() == 0 {
			return fmt.Errorf("skill %d: %w: %q", i, ErrInvalidImportance, s.Importance)
		}
		if s.Weight < 0 {
			return fmt.Errorf("skill %d: weight must be >= 0", i)
		}
	}
	return nil
}
