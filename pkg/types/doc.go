// Package types provides shared type definitions for the devmatch engine.
//
// This package defines the domain records that flow through the matching pipeline:
// developers, projects, skills and skill edges, embeddings, match results, and
// team compositions.
//
// # Core Types
//
// Developer and Project are explicit records validated at the engine boundary:
//
//	dev := &types.Developer{
//	    ID:           "dev-42",
//	    Skills:       []types.DeveloperSkill{{Skill: "Go", Proficiency: 0.9, ExperienceYears: 6}},
//	    Availability: types.AvailabilityAvailable,
//	    Reputation:   82,
//	}
//	if err := dev.Validate(); err != nil {
//	    return err
//	}
//	dev.Normalize()
//
// Skill names are compared in normalized form (trimmed, whitespace collapsed,
// lower-cased), see NormalizeSkill.
//
// # Embeddings
//
// An Embedding is one aspect vector. A MultiAspectEmbedding groups the aspect
// vectors of an entity together with their weighted, re-normalized combination.
// Embeddings are only comparable when produced by the same model and dimension.
//
// # Scores
//
// All scores exposed by MatchResult and CompatibilityBreakdown are in [0, 1].
// Reputation is stored on a 0-100 scale and rescaled by ReputationScore.
//
// # Errors
//
// errors.go holds the engine error taxonomy (ErrModelUnavailable,
// ErrGraphUnavailable, ErrInvalidWeights, ...). Degraded signals are absorbed by
// the components; only configuration errors reach callers as hard failures.
package types
