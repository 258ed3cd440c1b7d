package types

import "errors"

// Engine error taxonomy
var (
	// ErrModelUnavailable is returned when the embedding backend cannot be reached
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrGraphUnavailable is returned when the skill graph store cannot be queried
	ErrGraphUnavailable = errors.New("skill graph unavailable")
	// ErrInvalidWeights is returned for weight sets that are negative or do not sum to 1.0
	ErrInvalidWeights = errors.New("invalid weights")
	// ErrNoCandidates marks an empty matching or team-selection result
	ErrNoCandidates = errors.New("no suitable candidates")
	// ErrEntityResolution is returned when a candidate id cannot be resolved to a profile
	ErrEntityResolution = errors.New("entity resolution failed")
	// ErrDimensionMismatch is returned when a vector does not have the configured dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// Validation errors
var (
	ErrMissingID           = errors.New("id is required")
	ErrInvalidProficiency  = errors.New("proficiency must be between 0 and 1")
	ErrInvalidExperience   = errors.New("experience years must be >= 0")
	ErrInvalidStrength     = errors.New("edge strength must be between 0 and 1")
	ErrInvalidEdgeType     = errors.New("invalid edge type")
	ErrInvalidImportance   = errors.New("invalid importance")
	ErrInvalidReputation   = errors.New("reputation must be between 0 and 100")
	ErrInvalidAvailability = errors.New("invalid availability")
	ErrEmptySkillName      = errors.New("skill name cannot be empty")
)

// Result errors
var (
	ErrInvalidRank  = errors.New("rank must be >= 1")
	ErrInvalidScore = errors.New("score must be between 0 and 1")
)
