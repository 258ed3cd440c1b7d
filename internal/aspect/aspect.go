// Package aspect builds the per-aspect source texts that are embedded for
// developers and projects.
package aspect

import (
	"fmt"
	"strings"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

// Text is one aspect text ready for embedding
type Text struct {
	Aspect types.Aspect
	Text   string
}

// DeveloperAspects lists developer aspects in combination order
var DeveloperAspects = []types.Aspect{types.AspectSkills, types.AspectExperience, types.AspectGitHub}

// ProjectAspects lists project aspects in combination order
var ProjectAspects = []types.Aspect{types.AspectDescription, types.AspectRequirements, types.AspectDomain}

// ForDeveloper returns the skills, experience and github texts of d.
// Aspects with no source data produce an empty text.
func ForDeveloper(d *types.Developer) []Text {
	return []Text{
		{Aspect: types.AspectSkills, Text: developerSkills(d)},
		{Aspect: types.AspectExperience, Text: join(d.Title, d.ExperienceSummary, d.Bio)},
		{Aspect: types.AspectGitHub, Text: d.GitHubSummary},
	}
}

// ForProject returns the description, requirements and domain texts of p.
func ForProject(p *types.Project) []Text {
	return []Text{
		{Aspect: types.AspectDescription, Text: join(p.Title, p.Description)},
		{Aspect: types.AspectRequirements, Text: projectRequirements(p)},
		{Aspect: types.AspectDomain, Text: join(p.Domain, p.Industry)},
	}
}

func developerSkills(d *types.Developer) string {
	parts := make([]string, 0, len(d.Skills)+1)
	for _, s := range d.Skills {
		name := types.NormalizeSkill(s.Skill)
		if name == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(name+" "+level(s.Proficiency)))
	}
	if len(d.Languages) > 0 {
		parts = append(parts, "languages "+strings.Join(d.Languages, " "))
	}
	return strings.Join(parts, ", ")
}

func projectRequirements(p *types.Project) string {
	parts := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		name := types.NormalizeSkill(s.Skill)
		if name == "" {
			continue
		}
		importance := s.Importance
		if importance == "" {
			importance = types.ImportanceRequired
		}
		parts = append(parts, fmt.Sprintf("%s %s", name, strings.ReplaceAll(string(importance), "_", " ")))
	}
	return strings.Join(parts, ", ")
}

// level turns a proficiency into a coarse word so that the text, and therefore
// the cache key, does not churn on small proficiency edits.
func level(proficiency float64) string {
	switch {
	case proficiency >= 0.8:
		return "expert"
	case proficiency >= 0.5:
		return "proficient"
	case proficiency > 0:
		return "familiar"
	default:
		return ""
	}
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ". ")
}
