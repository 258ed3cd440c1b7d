package types

// Aspect names one facet of an entity's text
type Aspect string

const (
	AspectSkills       Aspect = "skills"
	AspectExperience   Aspect = "experience"
	AspectGitHub       Aspect = "github"
	AspectDescription  Aspect = "description"
	AspectRequirements Aspect = "requirements"
	AspectDomain       Aspect = "domain"
	AspectCombined     Aspect = "combined"
)

// Valid reports whether a is a known aspect
func (a Aspect) Valid() bool {
	switch a {
	case AspectSkills, AspectExperience, AspectGitHub,
		AspectDescription, AspectRequirements, AspectDomain, AspectCombined:
		return true
	default:
		return false
	}
}

// EntityKind identifies which side of the marketplace an embedding describes
type EntityKind string

const (
	EntityDeveloper EntityKind = "developer"
	EntityProject   EntityKind = "project"
)

// NormVersion is bumped whenever text normalization changes, invalidating stored vectors
const NormVersion = 1

// Embedding is a fixed-length vector for one aspect of one entity
type Embedding struct {
	Vector      []float32
	Dimension   int
	ContentType Aspect
	ContentID   string
	Provider    string
	Model       string
	NormVersion int
	Hash        string // hash of the normalized text
}

// IsZero reports whether every component of the vector is zero
func (e *Embedding) IsZero() bool {
	if e == nil {
		return true
	}
	for _, v := range e.Vector {
		if v != 0 {
			return false
		}
	}
	return true
}

// Comparable reports whether two embeddings were produced by the same model and dimension
func (e *Embedding) Comparable(other *Embedding) bool {
	return e != nil && other != nil && e.Model == other.Model && e.Dimension == other.Dimension
}

// Clone returns a deep copy of the embedding
func (e *Embedding) Clone() *Embedding {
	if e == nil {
		return nil
	}
	c := *e
	c.Vector = make([]float32, len(e.Vector))
	copy(c.Vector, e.Vector)
	return &c
}

// MultiAspectEmbedding is the set of aspect vectors for one developer or project
type MultiAspectEmbedding struct {
	EntityKind EntityKind
	EntityID   string
	Aspects    map[Aspect]*Embedding
	Combined   []float32 // unit vector, or zero when no aspect carries signal
	Degraded   []Aspect  // aspects dropped because the model call failed
}

// DeveloperAspectWeights returns the fixed weights used to combine developer aspects
func DeveloperAspectWeights() map[Aspect]float64 {
	return map[Aspect]float64{
		AspectSkills:     0.5,
		AspectExperience: 0.3,
		AspectGitHub:     0.2,
	}
}

// ProjectAspectWeights returns the fixed weights used to combine project aspects
func ProjectAspectWeights() map[Aspect]float64 {
	return map[Aspect]float64{
		AspectDescription:  0.4,
		AspectRequirements: 0.4,
		AspectDomain:       0.2,
	}
}
