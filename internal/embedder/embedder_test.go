package embedder

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeHash(tt.text); got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateBatchRequest(t *testing.T) {
	tooMany := make([]string, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "x"
	}

	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr error
	}{
		{name: "valid", req: BatchEmbeddingRequest{Texts: []string{"a", "b"}}},
		{name: "no texts", req: BatchEmbeddingRequest{}, wantErr: ErrInvalidInput},
		{name: "empty item", req: BatchEmbeddingRequest{Texts: []string{"a", ""}}, wantErr: ErrInvalidInput},
		{name: "too large", req: BatchEmbeddingRequest{Texts: tooMany}, wantErr: ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateBatchRequest() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBatchRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want NormalizedText
	}{
		{name: "collapse whitespace", text: "  Senior   Go\tEngineer \n", want: "senior go engineer"},
		{name: "case fold", text: "PostgreSQL", want: "postgresql"},
		{name: "empty", text: "", want: EmptyMarker},
		{name: "blank", text: " \t\n ", want: EmptyMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.text)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if got.IsEmpty() != (tt.want == EmptyMarker) {
				t.Errorf("IsEmpty() = %v", got.IsEmpty())
			}
		})
	}
}

func TestCombine(t *testing.T) {
	emb := func(v ...float32) *types.Embedding {
		return &types.Embedding{Vector: v, Dimension: len(v)}
	}
	weights := types.DeveloperAspectWeights()

	t.Run("unit norm for non-zero aspects", func(t *testing.T) {
		aspects := map[types.Aspect]*types.Embedding{
			types.AspectSkills:     emb(1, 0, 0),
			types.AspectExperience: emb(0, 3, 0),
			types.AspectGitHub:     emb(0, 0, -2),
		}
		got, err := Combine(aspects, weights, 3)
		if err != nil {
			t.Fatalf("Combine() error: %v", err)
		}
		if n := VectorNorm(got); math.Abs(n-1) > 1e-6 {
			t.Errorf("norm = %v, want 1", n)
		}
	})

	t.Run("single aspect keeps direction", func(t *testing.T) {
		got, err := Combine(map[types.Aspect]*types.Embedding{
			types.AspectGitHub: emb(0, 4, 0),
		}, weights, 3)
		if err != nil {
			t.Fatalf("Combine() error: %v", err)
		}
		if got[0] != 0 || math.Abs(float64(got[1])-1) > 1e-6 || got[2] != 0 {
			t.Errorf("Combine() = %v, want [0 1 0]", got)
		}
	})

	t.Run("all zero gives zero vector", func(t *testing.T) {
		got, err := Combine(map[types.Aspect]*types.Embedding{
			types.AspectSkills:     emb(0, 0, 0),
			types.AspectExperience: nil,
		}, weights, 3)
		if err != nil {
			t.Fatalf("Combine() error: %v", err)
		}
		if len(got) != 3 || VectorNorm(got) != 0 {
			t.Errorf("Combine() = %v, want zero vector of length 3", got)
		}
	})

	t.Run("no aspects gives zero vector", func(t *testing.T) {
		got, err := Combine(nil, weights, 4)
		if err != nil {
			t.Fatalf("Combine() error: %v", err)
		}
		if len(got) != 4 || VectorNorm(got) != 0 {
			t.Errorf("Combine() = %v, want zero vector of length 4", got)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Combine(map[types.Aspect]*types.Embedding{
			types.AspectSkills: emb(1, 2),
		}, weights, 3)
		if !errors.Is(err, types.ErrDimensionMismatch) {
			t.Errorf("Combine() error = %v, want ErrDimensionMismatch", err)
		}
	})
}

func TestCache(t *testing.T) {
	cache := NewCache(2, time.Hour)
	key := CacheKey(types.AspectSkills, "h1")

	original := &types.Embedding{Vector: []float32{1, 2, 3}, Dimension: 3}
	cache.Set(key, original)

	// Mutating the stored original must not leak into the cache.
	original.Vector[0] = 99

	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Vector[0] != 1 {
		t.Errorf("cached vector mutated through Set argument: %v", got.Vector)
	}

	// Nor may mutating a Get result.
	got.Vector[1] = 99
	again, _ := cache.Get(key)
	if again.Vector[1] != 2 {
		t.Errorf("cached vector mutated through Get result: %v", again.Vector)
	}

	if _, ok := cache.Get(CacheKey(types.AspectExperience, "h1")); ok {
		t.Error("aspect must be part of the cache key")
	}

	cache.Set("k2", original)
	cache.Set("k3", original)
	if cache.Size() != 2 {
		t.Errorf("Size() = %d, want 2 after eviction", cache.Size())
	}

	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size() = %d after Clear", cache.Size())
	}
}

func TestCache_Expiry(t *testing.T) {
	cache := NewCache(10, 20*time.Millisecond)
	cache.Set("k", &types.Embedding{Vector: []float32{1}})

	time.Sleep(60 * time.Millisecond)

	if _, ok := cache.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}
