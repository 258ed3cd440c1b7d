package types

// CompatibilityBreakdown is the graph-based score of one developer against a skill set
type CompatibilityBreakdown struct {
	DeveloperID   string             `json:"developer_id"`
	Total         float64            `json:"total"`
	Direct        float64            `json:"direct"`
	Related       float64            `json:"related"`
	Depth         float64            `json:"depth"`
	Learning      float64            `json:"learning"`
	SkillScores   map[string]float64 `json:"skill_scores,omitempty"` // raw direct match per required skill
	MissingSkills []string           `json:"missing_skills"`
	Error         string             `json:"error,omitempty"` // set when the graph signal degraded
}

// Degraded reports whether the breakdown was produced without a graph signal
func (b *CompatibilityBreakdown) Degraded() bool {
	return b != nil && b.Error != ""
}

// DetailedAnalysis is the optional explanation attached to a match
type DetailedAnalysis struct {
	MissingSkills       []string `json:"missing_skills"`
	LearningTime        string   `json:"learning_time"`
	MatchConfidence     float64  `json:"match_confidence"`
	AvailabilityScore   float64  `json:"availability_score"`
	ReputationScore     float64  `json:"reputation_score"`
	GraphSignalDegraded bool     `json:"graph_signal_degraded,omitempty"`
}

// MatchResult is a single ranked candidate; transient and cache-only
type MatchResult struct {
	SubjectID   string                  `json:"subject_id"`
	CandidateID string                  `json:"candidate_id"`
	Rank        int                     `json:"rank"` // 1-based position in the result set
	VectorScore float64                 `json:"vector_score"`
	GraphScore  float64                 `json:"graph_score"`
	FinalScore  float64                 `json:"final_score"`
	Breakdown   *CompatibilityBreakdown `json:"breakdown,omitempty"`
	Analysis    *DetailedAnalysis       `json:"analysis,omitempty"`
}

// Clone returns a deep copy of the match result
func (m MatchResult) Clone() MatchResult {
	c := m
	if m.Breakdown != nil {
		b := *m.Breakdown
		b.MissingSkills = append([]string(nil), m.Breakdown.MissingSkills...)
		if m.Breakdown.SkillScores != nil {
			b.SkillScores = make(map[string]float64, len(m.Breakdown.SkillScores))
			for k, v := range m.Breakdown.SkillScores {
				b.SkillScores[k] = v
			}
		}
		c.Breakdown = &b
	}
	if m.Analysis != nil {
		a := *m.Analysis
		a.MissingSkills = append([]string(nil), m.Analysis.MissingSkills...)
		c.Analysis = &a
	}
	return c
}

// Validate checks if the match result is well formed
func (m *MatchResult) Validate() error {
	if m.CandidateID == "" {
		return ErrMissingID
	}
	if m.Rank < 1 {
		return ErrInvalidRank
	}
	if m.FinalScore < 0 || m.FinalScore > 1 {
		return ErrInvalidScore
	}
	return nil
}
