package embedder

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

const testDim = 8

// mockEmbedder implements Embedder for testing. By default it returns a
// deterministic vector derived from the characters of the text.
type mockEmbedder struct {
	mu        sync.Mutex
	calls     int
	texts     [][]string
	dim       int
	batchFunc func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dim: testDim}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*types.Embedding, error) {
	return singleFromBatch(ctx, m, req)
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, append([]string(nil), req.Texts...))
	m.mu.Unlock()

	if m.batchFunc != nil {
		return m.batchFunc(ctx, req)
	}

	embeddings := make([]*types.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = &types.Embedding{
			Vector:    vectorFor(text, m.dim),
			Dimension: m.dim,
			Provider:  "mock",
			Model:     "mock-model",
		}
	}
	return &BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return m.dim }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func vectorFor(text string, dim int) []float32 {
	v := make([]float32, dim)
	for i, r := range text {
		v[i%dim] += float32(r%17) + 1
	}
	return v
}

func newTestStore(t *testing.T, m *mockEmbedder) *Store {
	t.Helper()
	s, err := NewStore(m, StoreOptions{Dimension: testDim, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return s
}

func TestNewStore_DimensionMismatch(t *testing.T) {
	_, err := NewStore(newMockEmbedder(), StoreOptions{Dimension: testDim + 1})
	if !errors.Is(err, types.ErrDimensionMismatch) {
		t.Fatalf("NewStore() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestStore_Embed_CacheIdempotence(t *testing.T) {
	m := newMockEmbedder()
	s := newTestStore(t, m)
	ctx := context.Background()

	first, err := s.Embed(ctx, "Go and PostgreSQL", types.AspectSkills, true)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	second, err := s.Embed(ctx, "  go   and postgresql ", types.AspectSkills, true)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if m.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", m.callCount())
	}
	for i := range first.Vector {
		if math.Float32bits(first.Vector[i]) != math.Float32bits(second.Vector[i]) {
			t.Fatalf("vectors differ at %d: %v vs %v", i, first.Vector[i], second.Vector[i])
		}
	}
	if first.ContentType != types.AspectSkills || first.Model != "mock-model" || first.NormVersion != types.NormVersion {
		t.Errorf("embedding not tagged: %+v", first)
	}

	// A different aspect is a different key.
	if _, err := s.Embed(ctx, "Go and PostgreSQL", types.AspectExperience, true); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if m.callCount() != 2 {
		t.Errorf("model calls = %d, want 2", m.callCount())
	}

	// Bypassing the cache forces a model call.
	if _, err := s.Embed(ctx, "Go and PostgreSQL", types.AspectSkills, false); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if m.callCount() != 3 {
		t.Errorf("model calls = %d, want 3", m.callCount())
	}
}

func TestStore_Embed_EmptyInput(t *testing.T) {
	m := newMockEmbedder()
	s := newTestStore(t, m)

	emb, err := s.Embed(context.Background(), "   ", types.AspectGitHub, true)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(emb.Vector) != testDim || !emb.IsZero() {
		t.Errorf("Embed(blank) = %v, want zero vector of %d", emb.Vector, testDim)
	}
	if m.callCount() != 0 {
		t.Errorf("blank input must not call the model, got %d calls", m.callCount())
	}
}

func TestStore_Embed_ModelUnavailable(t *testing.T) {
	m := newMockEmbedder()
	m.batchFunc = func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
		return nil, ErrProviderFailed
	}
	s := newTestStore(t, m)

	emb, err := s.Embed(context.Background(), "rust", types.AspectSkills, true)
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Fatalf("Embed() error = %v, want ErrModelUnavailable", err)
	}
	if emb != nil {
		t.Errorf("Embed() must not return a vector on failure, got %v", emb.Vector)
	}
}

func TestStore_Embed_WrongDimension(t *testing.T) {
	m := newMockEmbedder()
	m.batchFunc = func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
		return &BatchEmbeddingResponse{Embeddings: []*types.Embedding{{Vector: []float32{1, 2}}}}, nil
	}
	s := newTestStore(t, m)

	_, err := s.Embed(context.Background(), "rust", types.AspectSkills, true)
	if !errors.Is(err, types.ErrDimensionMismatch) {
		t.Fatalf("Embed() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestStore_Embed_Timeout(t *testing.T) {
	m := newMockEmbedder()
	m.batchFunc = func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s, err := NewStore(m, StoreOptions{Dimension: testDim, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	_, err = s.Embed(context.Background(), "slow", types.AspectSkills, true)
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Fatalf("Embed() error = %v, want ErrModelUnavailable", err)
	}
}

func TestStore_EmbedBatch(t *testing.T) {
	m := newMockEmbedder()
	s := newTestStore(t, m)
	ctx := context.Background()

	// Warm the cache for one entry.
	cached, err := s.Embed(ctx, "kubernetes", types.AspectSkills, true)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	texts := []string{"go", "", "Kubernetes", "GO", "terraform"}
	results := s.EmbedBatch(ctx, texts, types.AspectSkills)

	if len(results) != len(texts) {
		t.Fatalf("EmbedBatch() returned %d results, want %d", len(results), len(texts))
	}

	wantStatus := []BatchStatus{StatusOK, StatusZeroInput, StatusOK, StatusOK, StatusOK}
	for i, r := range results {
		if r.Status != wantStatus[i] {
			t.Errorf("result %d status = %s, want %s", i, r.Status, wantStatus[i])
		}
	}

	// One warm-up call plus one batch call holding the two unique misses.
	if m.callCount() != 2 {
		t.Fatalf("model calls = %d, want 2", m.callCount())
	}
	if got := m.texts[1]; strings.Join(got, ",") != "go,terraform" {
		t.Errorf("batch inputs = %v, want [go terraform]", got)
	}

	if !equalVectors(results[2].Embedding.Vector, cached.Vector) {
		t.Error("cached entry not reused")
	}
	if !equalVectors(results[0].Embedding.Vector, results[3].Embedding.Vector) {
		t.Error("same normalized text must produce the same vector")
	}
	if equalVectors(results[0].Embedding.Vector, results[4].Embedding.Vector) {
		t.Error("results mixed across cache keys")
	}

	// Results are independent copies.
	results[0].Embedding.Vector[0] = 1234
	if results[3].Embedding.Vector[0] == 1234 {
		t.Error("duplicate results share a backing array")
	}
}

func TestStore_EmbedBatch_PartialFailure(t *testing.T) {
	m := newMockEmbedder()
	m.batchFunc = func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
		for _, text := range req.Texts {
			if text == "bad-0" {
				return nil, ErrProviderFailed
			}
		}
		embeddings := make([]*types.Embedding, len(req.Texts))
		for i, text := range req.Texts {
			embeddings[i] = &types.Embedding{Vector: vectorFor(text, testDim), Dimension: testDim}
		}
		return &BatchEmbeddingResponse{Embeddings: embeddings}, nil
	}
	s := newTestStore(t, m)

	// MaxBatchSize good texts fill the first chunk, the failing one lands in the second.
	texts := make([]string, 0, MaxBatchSize+2)
	for i := 0; i < MaxBatchSize; i++ {
		texts = append(texts, "good-"+strconv.Itoa(i))
	}
	texts = append(texts, "bad-0", "")

	results := s.EmbedBatch(context.Background(), texts, types.AspectDescription)

	for i := 0; i < MaxBatchSize; i++ {
		if results[i].Status != StatusOK {
			t.Fatalf("result %d status = %s, want ok", i, results[i].Status)
		}
	}
	bad := results[MaxBatchSize]
	if bad.Status != StatusError || !errors.Is(bad.Err, types.ErrModelUnavailable) || bad.Embedding != nil {
		t.Errorf("failed item = %+v, want StatusError with ErrModelUnavailable and no vector", bad)
	}
	if results[MaxBatchSize+1].Status != StatusZeroInput {
		t.Errorf("blank item status = %s, want zero_input", results[MaxBatchSize+1].Status)
	}
}

func TestStore_EmbedBatch_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	m := newMockEmbedder()
	m.batchFunc = func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)

		embeddings := make([]*types.Embedding, len(req.Texts))
		for i, text := range req.Texts {
			embeddings[i] = &types.Embedding{Vector: vectorFor(text, testDim), Dimension: testDim}
		}
		return &BatchEmbeddingResponse{Embeddings: embeddings}, nil
	}
	s, err := NewStore(m, StoreOptions{Dimension: testDim, Timeout: time.Second, Concurrency: 2})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	texts := make([]string, 5*MaxBatchSize)
	for i := range texts {
		texts[i] = "text-" + strconv.Itoa(i)
	}
	results := s.EmbedBatch(context.Background(), texts, types.AspectSkills)

	for i, r := range results {
		if r.Status != StatusOK {
			t.Fatalf("result %d status = %s, want ok", i, r.Status)
		}
	}
	if got := m.callCount(); got != 5 {
		t.Errorf("model calls = %d, want 5", got)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrent model calls = %d, want <= 2", got)
	}
}

func TestStore_DeveloperEmbedding(t *testing.T) {
	m := newMockEmbedder()
	s := newTestStore(t, m)

	dev := &types.Developer{
		ID:                "dev-1",
		Title:             "Data Engineer",
		ExperienceSummary: "Spark pipelines",
		Skills:            []types.DeveloperSkill{{Skill: "Python", Proficiency: 0.8}},
	}

	got, err := s.DeveloperEmbedding(context.Background(), dev)
	if err != nil {
		t.Fatalf("DeveloperEmbedding() error: %v", err)
	}
	if got.EntityKind != types.EntityDeveloper || got.EntityID != "dev-1" {
		t.Errorf("unexpected identity %s/%s", got.EntityKind, got.EntityID)
	}
	if len(got.Aspects) != 3 {
		t.Errorf("aspects = %d, want 3", len(got.Aspects))
	}
	if !got.Aspects[types.AspectGitHub].IsZero() {
		t.Error("empty github aspect must be the zero vector")
	}
	if got.Aspects[types.AspectSkills].ContentID != "dev-1" {
		t.Error("aspect content id not set")
	}
	if n := VectorNorm(got.Combined); math.Abs(n-1) > 1e-6 {
		t.Errorf("combined norm = %v, want 1", n)
	}
	if len(got.Degraded) != 0 {
		t.Errorf("unexpected degraded aspects %v", got.Degraded)
	}
}

func TestStore_ProjectEmbedding_Degraded(t *testing.T) {
	m := newMockEmbedder()
	m.batchFunc = func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
		if strings.Contains(req.Texts[0], "fintech") {
			return nil, ErrProviderFailed
		}
		return &BatchEmbeddingResponse{Embeddings: []*types.Embedding{{Vector: vectorFor(req.Texts[0], testDim)}}}, nil
	}
	s := newTestStore(t, m)

	p := &types.Project{ID: "p-1", Title: "Ledger", Domain: "fintech"}
	got, err := s.ProjectEmbedding(context.Background(), p)
	if err != nil {
		t.Fatalf("ProjectEmbedding() error: %v", err)
	}
	if len(got.Degraded) != 1 || got.Degraded[0] != types.AspectDomain {
		t.Errorf("Degraded = %v, want [domain]", got.Degraded)
	}
	if n := VectorNorm(got.Combined); math.Abs(n-1) > 1e-6 {
		t.Errorf("combined norm = %v, want 1", n)
	}
}

func TestStore_ProjectEmbedding_AllFailed(t *testing.T) {
	m := newMockEmbedder()
	m.batchFunc = func(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
		return nil, ErrProviderFailed
	}
	s := newTestStore(t, m)

	_, err := s.ProjectEmbedding(context.Background(), &types.Project{ID: "p-1", Title: "Ledger"})
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Fatalf("ProjectEmbedding() error = %v, want ErrModelUnavailable", err)
	}

	// A record with no text at all is not a failure: it is the zero vector.
	got, err := s.ProjectEmbedding(context.Background(), &types.Project{ID: "p-2"})
	if err != nil {
		t.Fatalf("ProjectEmbedding(empty) error: %v", err)
	}
	if VectorNorm(got.Combined) != 0 {
		t.Error("empty project must combine to the zero vector")
	}
}

func equalVectors(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
