package types

// Candidate is one entry of the team-selection pool
type Candidate struct {
	DeveloperID  string
	Skills       map[string]float64 // normalized skill -> proficiency
	HourlyRate   float64
	Availability Availability
	Reputation   float64
}

// CandidateFromDeveloper builds a pool entry from a resolved developer
func CandidateFromDeveloper(d *Developer) Candidate {
	skills := make(map[string]float64, len(d.Skills))
	for _, s := range d.Skills {
		skills[NormalizeSkill(s.Skill)] = s.Proficiency
	}
	return Candidate{
		DeveloperID:  d.ID,
		Skills:       skills,
		HourlyRate:   d.HourlyRate,
		Availability: d.Availability,
		Reputation:   d.Reputation,
	}
}

// TeamMember is a selected candidate and the skills it contributed
type TeamMember struct {
	DeveloperID       string   `json:"developer_id"`
	ContributedSkills []string `json:"contributed_skills"`
	SelectionScore    float64  `json:"selection_score"`
	HourlyRate        float64  `json:"hourly_rate"`
}

// TeamComposition is the output of a team-selection run
type TeamComposition struct {
	Team                   []TeamMember `json:"team"`
	CoveredSkills          []string     `json:"covered_skills"`
	MissingSkills          []string     `json:"missing_skills"`
	SkillCoverage          float64      `json:"skill_coverage"`
	SynergyScore           float64      `json:"synergy_score"`
	CollaborationPotential float64      `json:"collaboration_potential"`
	CostEstimate           float64      `json:"cost_estimate"`
	Reason                 string       `json:"reason,omitempty"`
}

// MemberIDs returns the developer ids of the team in selection order
func (t *TeamComposition) MemberIDs() []string {
	ids := make([]string, len(t.Team))
	for i, m := range t.Team {
		ids[i] = m.DeveloperID
	}
	return ids
}
