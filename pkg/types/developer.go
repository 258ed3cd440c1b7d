package types

import (
	"fmt"
	"sort"
)

// Availability is a developer's current capacity for new work
type Availability string

const (
	AvailabilityAvailable          Availability = "available"
	AvailabilityPartiallyAvailable Availability = "partially_available"
	AvailabilityBusy               Availability = "busy"
	AvailabilityUnavailable        Availability = "unavailable"
)

// Score maps availability onto [0,1] for score fusion; unknown values score 0.5
func (a Availability) Score() float64 {
	switch a {
	case AvailabilityAvailable:
		return 1.0
	case AvailabilityPartiallyAvailable:
		return 0.7
	case AvailabilityBusy:
		return 0.3
	case AvailabilityUnavailable:
		return 0.0
	default:
		return 0.5
	}
}

// Developer is a candidate profile as resolved from the profile directory
type Developer struct {
	ID                string           `json:"id" mapstructure:"id"`
	Name              string           `json:"name" mapstructure:"name"`
	Title             string           `json:"title" mapstructure:"title"`
	Bio               string           `json:"bio" mapstructure:"bio"`
	ExperienceSummary string           `json:"experience_summary" mapstructure:"experience_summary"`
	GitHubSummary     string           `json:"github_summary" mapstructure:"github_summary"`
	Languages         []string         `json:"languages" mapstructure:"languages"`
	Skills            []DeveloperSkill `json:"skills" mapstructure:"skills"`
	Availability      Availability     `json:"availability" mapstructure:"availability"`
	Reputation        float64          `json:"reputation" mapstructure:"reputation"` // 0-100
	HourlyRate        float64          `json:"hourly_rate" mapstructure:"hourly_rate"`
}

// ReputationScore returns reputation scaled to [0,1]
func (d *Developer) ReputationScore() float64 {
	return clamp01(d.Reputation / 100)
}

// SkillMap returns the developer's skills keyed by normalized name
func (d *Developer) SkillMap() map[string]DeveloperSkill {
	m := make(map[string]DeveloperSkill, len(d.Skills))
	for _, s := range d.Skills {
		s.Skill = NormalizeSkill(s.Skill)
		m[s.Skill] = s
	}
	return m
}

// Normalize canonicalizes skill names and orders skills by name
func (d *Developer) Normalize() {
	merged := make(map[string]DeveloperSkill, len(d.Skills))
	for _, s := range d.Skills {
		s.Skill = NormalizeSkill(s.Skill)
		if prev, ok := merged[s.Skill]; ok && prev.Proficiency >= s.Proficiency {
			continue
		}
		merged[s.Skill] = s
	}
	skills := make([]DeveloperSkill, 0, len(merged))
	for _, s := range merged {
		skills = append(skills, s)
	}
	d.Skills = skills
	sort.Slice(d.Skills, func(i, j int) bool { return d.Skills[i].Skill < d.Skills[j].Skill })
	d.Languages = NormalizeSkills(d.Languages)
	if d.Availability == "" {
		d.Availability = AvailabilityAvailable
	}
}

// Validate checks the developer record at the engine boundary
func (d *Developer) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	switch d.Availability {
	case "", AvailabilityAvailable, AvailabilityPartiallyAvailable, AvailabilityBusy, AvailabilityUnavailable:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAvailability, d.Availability)
	}
	if d.Reputation < 0 || d.Reputation > 100 {
		return ErrInvalidReputation
	}
	for i := range d.Skills {
		if err := d.Skills[i].Validate(); err != nil {
			return fmt.Errorf("skill %d: %w", i, err)
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
