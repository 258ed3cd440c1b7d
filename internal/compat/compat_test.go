package compat

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/dshills/devmatch-mcp/internal/skillgraph"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// mockGraph implements Graph with overridable functions
type mockGraph struct {
	developerSkillsFunc func(ctx context.Context, developerID string) (map[string]types.DeveloperSkill, error)
	relatedSkillsFunc   func(ctx context.Context, skill string, maxDepth int, minStrength float64) ([]skillgraph.RelatedSkill, error)
	adjacentSkillsFunc  func(ctx context.Context, skills []string, edgeTypes []types.EdgeType, minStrength float64) (map[string][]string, error)
	calls               int
}

func (m *mockGraph) DeveloperSkills(ctx context.Context, developerID string) (map[string]types.DeveloperSkill, error) {
	m.calls++
	if m.developerSkillsFunc != nil {
		return m.developerSkillsFunc(ctx, developerID)
	}
	return map[string]types.DeveloperSkill{}, nil
}

func (m *mockGraph) RelatedSkills(ctx context.Context, skill string, maxDepth int, minStrength float64) ([]skillgraph.RelatedSkill, error) {
	m.calls++
	if m.relatedSkillsFunc != nil {
		return m.relatedSkillsFunc(ctx, skill, maxDepth, minStrength)
	}
	return []skillgraph.RelatedSkill{}, nil
}

func (m *mockGraph) AdjacentSkills(ctx context.Context, skills []string, edgeTypes []types.EdgeType, minStrength float64) (map[string][]string, error) {
	m.calls++
	if m.adjacentSkillsFunc != nil {
		return m.adjacentSkillsFunc(ctx, skills, edgeTypes, minStrength)
	}
	return map[string][]string{}, nil
}

func skills(list ...types.DeveloperSkill) func(context.Context, string) (map[string]types.DeveloperSkill, error) {
	return func(context.Context, string) (map[string]types.DeveloperSkill, error) {
		m := make(map[string]types.DeveloperSkill, len(list))
		for _, s := range list {
			m[s.Skill] = s
		}
		return m, nil
	}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{name: "defaults", weights: DefaultWeights()},
		{name: "all direct", weights: Weights{Direct: 1}},
		{name: "sums to 0.9", weights: Weights{Direct: 0.4, Related: 0.3, Depth: 0.1, Learning: 0.1}, wantErr: true},
		{name: "sums to 1.1", weights: Weights{Direct: 0.5, Related: 0.3, Depth: 0.2, Learning: 0.1}, wantErr: true},
		{name: "negative", weights: Weights{Direct: 1.2, Related: -0.2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr && !errors.Is(err, types.ErrInvalidWeights) {
				t.Errorf("Validate() = %v, want ErrInvalidWeights", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestScore_InvalidWeights(t *testing.T) {
	graph := &mockGraph{}
	scorer, err := New(graph, Options{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	bad := Weights{Direct: 0.4, Related: 0.3, Depth: 0.1, Learning: 0.1}
	b, err := scorer.Score(context.Background(), "dev-1", []string{"go"}, &bad)
	if !errors.Is(err, types.ErrInvalidWeights) {
		t.Fatalf("Score() error = %v, want ErrInvalidWeights", err)
	}
	if b != nil {
		t.Errorf("Score() breakdown = %+v, want nil", b)
	}
	if graph.calls != 0 {
		t.Errorf("graph queried %d times before weight validation", graph.calls)
	}

	if _, err := New(graph, Options{Weights: &bad}); !errors.Is(err, types.ErrInvalidWeights) {
		t.Errorf("New() error = %v, want ErrInvalidWeights", err)
	}
}

func TestScore_SingleDirectSkill(t *testing.T) {
	graph := &mockGraph{
		developerSkillsFunc: skills(types.DeveloperSkill{Skill: "python", Proficiency: 0.8, ExperienceYears: 3}),
	}
	scorer, _ := New(graph, Options{})

	b, err := scorer.Score(context.Background(), "dev-1", []string{"Python"}, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	approx(t, "SkillScores[python]", b.SkillScores["python"], 1.28)
	approx(t, "Direct", b.Direct, 1.0) // clamped from 1.28
	approx(t, "Depth", b.Depth, 1.0)   // 0.3 + 0.72 clamped
	approx(t, "Related", b.Related, 0) // strong direct match is not propagated
	approx(t, "Learning", b.Learning, 0.8)
	approx(t, "Total", b.Total, 0.4+0.2+0.08)
	if len(b.MissingSkills) != 0 {
		t.Errorf("MissingSkills = %v, want none", b.MissingSkills)
	}
}

func TestScore_Components(t *testing.T) {
	graph := &mockGraph{
		developerSkillsFunc: skills(
			types.DeveloperSkill{Skill: "go", Proficiency: 0.9, ExperienceYears: 6},
			types.DeveloperSkill{Skill: "docker", Proficiency: 0.6, ExperienceYears: 2},
		),
		relatedSkillsFunc: func(ctx context.Context, skill string, maxDepth int, minStrength float64) ([]skillgraph.RelatedSkill, error) {
			if maxDepth != 2 || minStrength != 0.3 {
				t.Errorf("RelatedSkills(%s, %d, %v), want depth 2 and minStrength 0.3", skill, maxDepth, minStrength)
			}
			switch skill {
			case "docker":
				return []skillgraph.RelatedSkill{{Skill: "kubernetes", PathStrength: 0.9, Distance: 1}}, nil
			case "go":
				return []skillgraph.RelatedSkill{{Skill: "kubernetes", PathStrength: 0.45, Distance: 2}}, nil
			}
			return nil, nil
		},
		adjacentSkillsFunc: func(ctx context.Context, skills []string, edgeTypes []types.EdgeType, minStrength float64) (map[string][]string, error) {
			if !reflect.DeepEqual(edgeTypes, LearningEdgeTypes) || minStrength != 0.5 {
				t.Errorf("AdjacentSkills(%v, %v)", edgeTypes, minStrength)
			}
			return map[string][]string{"kubernetes": {"docker", "linux"}, "go": {}}, nil
		},
	}
	scorer, _ := New(graph, Options{})

	b, err := scorer.Score(context.Background(), "dev-1", []string{"Go", "Kubernetes"}, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	approx(t, "Direct", b.Direct, 0.5)
	approx(t, "Depth", b.Depth, 0.5)
	// go is strong and contributes 0; kubernetes best is docker 0.9*0.6
	approx(t, "Related", b.Related, (0+0.54)/2)
	// go held (0.9); kubernetes via docker: 0.3*1 + 0.7*0.6
	approx(t, "Learning", b.Learning, (0.9+0.72)/2)
	approx(t, "Total", b.Total, 0.4*0.5+0.3*0.27+0.2*0.5+0.1*0.81)
	if !reflect.DeepEqual(b.MissingSkills, []string{"kubernetes"}) {
		t.Errorf("MissingSkills = %v, want [kubernetes]", b.MissingSkills)
	}
	if b.Degraded() {
		t.Errorf("breakdown unexpectedly degraded: %s", b.Error)
	}

	custom := Weights{Direct: 1}
	b, err = scorer.Score(context.Background(), "dev-1", []string{"go", "kubernetes"}, &custom)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	approx(t, "Total with direct-only weights", b.Total, 0.5)
}

func TestScore_RelatedAndLearning(t *testing.T) {
	graph := &mockGraph{
		developerSkillsFunc: skills(
			types.DeveloperSkill{Skill: "django", Proficiency: 0.8},
			types.DeveloperSkill{Skill: "go", Proficiency: 0.9, ExperienceYears: 5},
		),
		adjacentSkillsFunc: func(ctx context.Context, skills []string, edgeTypes []types.EdgeType, minStrength float64) (map[string][]string, error) {
			return map[string][]string{"python": {"django"}}, nil
		},
	}
	scorer, _ := New(graph, Options{})

	b, err := scorer.Score(context.Background(), "dev-1", []string{"python", "go"}, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	// python has no path from django; go is strong and left to direct
	approx(t, "Related", b.Related, 0)
	// python via django: 0.3*1 + 0.7*0.8 = 0.86; go held: 0.9
	approx(t, "Learning", b.Learning, (0.86+0.9)/2)
	approx(t, "Direct", b.Direct, 0.5)
	approx(t, "Depth", b.Depth, 0.5)
	approx(t, "Total", b.Total, 0.4*0.5+0.2*0.5+0.1*0.88)
}

func TestScore_LearningClamped(t *testing.T) {
	graph := &mockGraph{
		developerSkillsFunc: skills(
			types.DeveloperSkill{Skill: "docker", Proficiency: 0.9},
			types.DeveloperSkill{Skill: "linux", Proficiency: 0.9},
		),
		adjacentSkillsFunc: func(context.Context, []string, []types.EdgeType, float64) (map[string][]string, error) {
			return map[string][]string{"kubernetes": {"docker", "linux"}}, nil
		},
	}
	scorer, _ := New(graph, Options{})

	b, err := scorer.Score(context.Background(), "dev-1", []string{"kubernetes"}, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	// 0.3*2 + 0.7*0.9 = 1.23
	approx(t, "Learning", b.Learning, 1.0)
}

func TestScoreSkills(t *testing.T) {
	graph := &mockGraph{
		developerSkillsFunc: func(context.Context, string) (map[string]types.DeveloperSkill, error) {
			return nil, errors.New("developer not stored")
		},
	}
	scorer, _ := New(graph, Options{})

	held := map[string]types.DeveloperSkill{
		"Python": {Skill: "Python", Proficiency: 0.8, ExperienceYears: 3},
	}
	b, err := scorer.ScoreSkills(context.Background(), "dev-new", held, []string{"python", "rust"}, nil)
	if err != nil {
		t.Fatalf("ScoreSkills() error: %v", err)
	}
	if b.Degraded() {
		t.Fatalf("ScoreSkills() read stored skills: %s", b.Error)
	}
	approx(t, "SkillScores[python]", b.SkillScores["python"], 1.28)
	approx(t, "Direct", b.Direct, 0.5)
	if !reflect.DeepEqual(b.MissingSkills, []string{"rust"}) {
		t.Errorf("MissingSkills = %v, want [rust]", b.MissingSkills)
	}
	if b.DeveloperID != "dev-new" {
		t.Errorf("DeveloperID = %q", b.DeveloperID)
	}

	bad := Weights{Direct: 0.5}
	if _, err := scorer.ScoreSkills(context.Background(), "dev-new", held, []string{"python"}, &bad); !errors.Is(err, types.ErrInvalidWeights) {
		t.Errorf("ScoreSkills() error = %v, want ErrInvalidWeights", err)
	}
}

func TestScore_NoSkills(t *testing.T) {
	scorer, _ := New(&mockGraph{}, Options{})

	b, err := scorer.Score(context.Background(), "dev-1", []string{"go", "rust"}, nil)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if b.Total != 0 || b.Related != 0 || b.Learning != 0 {
		t.Errorf("Score() = %+v, want all zero", b)
	}
	if !reflect.DeepEqual(b.MissingSkills, []string{"go", "rust"}) {
		t.Errorf("MissingSkills = %v", b.MissingSkills)
	}

	b, err = scorer.Score(context.Background(), "dev-1", nil, nil)
	if err != nil || b.Total != 0 {
		t.Errorf("empty requirement = %+v, %v; want zero total", b, err)
	}
}

func TestScore_GraphFailure(t *testing.T) {
	outage := errors.New("dial tcp: connection refused")

	tests := []struct {
		name  string
		graph *mockGraph
	}{
		{
			name: "developer skills",
			graph: &mockGraph{developerSkillsFunc: func(context.Context, string) (map[string]types.DeveloperSkill, error) {
				return nil, outage
			}},
		},
		{
			name: "related skills",
			graph: &mockGraph{
				developerSkillsFunc: skills(types.DeveloperSkill{Skill: "go", Proficiency: 0.2}),
				relatedSkillsFunc: func(context.Context, string, int, float64) ([]skillgraph.RelatedSkill, error) {
					return nil, outage
				},
			},
		},
		{
			name: "adjacent skills",
			graph: &mockGraph{
				developerSkillsFunc: skills(types.DeveloperSkill{Skill: "go", Proficiency: 0.9, ExperienceYears: 5}),
				adjacentSkillsFunc: func(context.Context, []string, []types.EdgeType, float64) (map[string][]string, error) {
					return nil, outage
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer, _ := New(tt.graph, Options{})
			b, err := scorer.Score(context.Background(), "dev-1", []string{"go"}, nil)
			if err != nil {
				t.Fatalf("Score() returned error %v, want degraded breakdown", err)
			}
			if b.Total != 0 || !b.Degraded() {
				t.Errorf("Score() = %+v, want total 0 with error annotation", b)
			}
		})
	}
}
