package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dshills/devmatch-mcp/internal/aspect"
	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/metrics"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// BatchStatus is the outcome of one item of a batch
type BatchStatus int

const (
	// StatusOK means the item carries a model-produced vector
	StatusOK BatchStatus = iota
	// StatusZeroInput means the input was blank and the item carries the zero vector
	StatusZeroInput
	// StatusError means the model call for the item failed; Err is set
	StatusError
)

func (s BatchStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusZeroInput:
		return "zero_input"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// BatchResult is one item of EmbedBatch output
type BatchResult struct {
	Embedding *types.Embedding
	Status    BatchStatus
	Err       error
}

// StoreOptions configures a Store
type StoreOptions struct {
	Dimension   int           // expected vector dimension; 0 takes the model's
	CacheSize   int           // max cached embeddings
	CacheTTL    time.Duration // cache entry lifetime
	Timeout     time.Duration // per model call
	Concurrency int           // max in-flight model calls
	RateLimit   float64       // model calls per second, 0 = unlimited
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
}

// Store is the embedding store: it normalizes text, calls the model through a
// bounded semaphore and rate limiter, and caches vectors by aspect and content hash.
type Store struct {
	model   Embedder
	cache   *Cache
	dim     int
	timeout time.Duration
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// NewStore creates a Store over model
func NewStore(model Embedder, opts StoreOptions) (*Store, error) {
	if model == nil {
		return nil, ErrNoProviderEnabled
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = model.Dimension()
	}
	if model.Dimension() != dim {
		return nil, fmt.Errorf("%w: model %s produces %d dims, configured %d",
			types.ErrDimensionMismatch, model.Model(), model.Dimension(), dim)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Store{
		model:   model,
		cache:   NewCache(opts.CacheSize, opts.CacheTTL),
		dim:     dim,
		timeout: opts.Timeout,
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
		limiter: limiter,
		logger:  logger.OrNop(opts.Logger).Named("embedder"),
		metrics: opts.Metrics,
	}, nil
}

// Dimension returns the vector dimension D
func (s *Store) Dimension() int {
	return s.dim
}

// ModelName returns the model identifier stamped on produced embeddings
func (s *Store) ModelName() string {
	return s.model.Model()
}

// Provider returns the model provider name
func (s *Store) Provider() string {
	return s.model.Provider()
}

// CacheSize returns the number of cached embeddings
func (s *Store) CacheSize() int {
	return s.cache.Size()
}

// ClearCache drops every cached embedding
func (s *Store) ClearCache() {
	s.cache.Clear()
}

// Embed returns the embedding of text for aspect. Blank text yields the zero
// vector without a model call. With useCache the cache is read first; the
// computed vector is always written back. A failed model call returns an error
// wrapping types.ErrModelUnavailable.
func (s *Store) Embed(ctx context.Context, text string, a types.Aspect, useCache bool) (*types.Embedding, error) {
	norm := Normalize(text)
	if norm.IsEmpty() {
		return s.zero(a), nil
	}

	hash := ComputeHash(string(norm))
	key := CacheKey(a, hash)
	if useCache {
		if emb, ok := s.cache.Get(key); ok {
			s.metrics.CacheHit(metrics.CacheEmbedding)
			return emb, nil
		}
		s.metrics.CacheMiss(metrics.CacheEmbedding)
	}

	vectors, err := s.callModel(ctx, []string{string(norm)})
	if err != nil {
		return nil, err
	}

	emb := s.tag(vectors[0], a, hash)
	s.cache.Set(key, emb)
	return emb, nil
}

// EmbedBatch embeds texts for a single aspect. Results keep input order.
// Cache misses are deduplicated by normalized text and sent to the model in
// chunks of at most MaxBatchSize; a failed chunk marks only its own items
// StatusError.
func (s *Store) EmbedBatch(ctx context.Context, texts []string, a types.Aspect) []BatchResult {
	results := make([]BatchResult, len(texts))

	pending := make(map[string][]int) // cache key -> result indexes
	var order []string                // unique miss keys in first-seen order
	normByKey := make(map[string]NormalizedText)
	hashByKey := make(map[string]string)

	for i, text := range texts {
		norm := Normalize(text)
		if norm.IsEmpty() {
			results[i] = BatchResult{Embedding: s.zero(a), Status: StatusZeroInput}
			continue
		}
		hash := ComputeHash(string(norm))
		key := CacheKey(a, hash)
		if emb, ok := s.cache.Get(key); ok {
			s.metrics.CacheHit(metrics.CacheEmbedding)
			results[i] = BatchResult{Embedding: emb, Status: StatusOK}
			continue
		}
		if _, seen := pending[key]; !seen {
			s.metrics.CacheMiss(metrics.CacheEmbedding)
			order = append(order, key)
			normByKey[key] = norm
			hashByKey[key] = hash
		}
		pending[key] = append(pending[key], i)
	}

	if len(order) == 0 {
		return results
	}

	// Concurrent model calls are bounded by callModel's semaphore.
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for start := 0; start < len(order); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(order) {
			end = len(order)
		}
		chunk := order[start:end]

		wg.Go(func() {
			inputs := make([]string, len(chunk))
			for i, key := range chunk {
				inputs[i] = string(normByKey[key])
			}

			vectors, err := s.callModel(ctx, inputs)

			mu.Lock()
			defer mu.Unlock()
			for i, key := range chunk {
				if err != nil {
					for _, idx := range pending[key] {
						results[idx] = BatchResult{Status: StatusError, Err: err}
					}
					continue
				}
				emb := s.tag(vectors[i], a, hashByKey[key])
				s.cache.Set(key, emb)
				for _, idx := range pending[key] {
					results[idx] = BatchResult{Embedding: emb.Clone(), Status: StatusOK}
				}
			}
			// Chunk failures are recorded per item and never cancel siblings.
		})
	}
	wg.Wait()

	return results
}

// DeveloperEmbedding embeds every developer aspect and combines them with the
// developer aspect weights.
func (s *Store) DeveloperEmbedding(ctx context.Context, d *types.Developer) (*types.MultiAspectEmbedding, error) {
	return s.profile(ctx, types.EntityDeveloper, d.ID, aspect.ForDeveloper(d), types.DeveloperAspectWeights())
}

// ProjectEmbedding embeds every project aspect and combines them with the
// project aspect weights.
func (s *Store) ProjectEmbedding(ctx context.Context, p *types.Project) (*types.MultiAspectEmbedding, error) {
	return s.profile(ctx, types.EntityProject, p.ID, aspect.ForProject(p), types.ProjectAspectWeights())
}

func (s *Store) profile(ctx context.Context, kind types.EntityKind, id string, texts []aspect.Text, weights map[types.Aspect]float64) (*types.MultiAspectEmbedding, error) {
	out := &types.MultiAspectEmbedding{
		EntityKind: kind,
		EntityID:   id,
		Aspects:    make(map[types.Aspect]*types.Embedding, len(texts)),
	}

	var nonEmpty, failed int
	var firstErr error
	for _, t := range texts {
		if !Normalize(t.Text).IsEmpty() {
			nonEmpty++
		}
		emb, err := s.Embed(ctx, t.Text, t.Aspect, true)
		if err != nil {
			if errors.Is(err, types.ErrDimensionMismatch) {
				return nil, err
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
			out.Degraded = append(out.Degraded, t.Aspect)
			s.logger.Warn("aspect embedding failed",
				zap.String("entity_kind", string(kind)),
				zap.String("entity_id", id),
				zap.String("aspect", string(t.Aspect)),
				zap.Error(err))
			s.metrics.Degraded(metrics.SignalEmbedding)
			continue
		}
		emb.ContentID = id
		out.Aspects[t.Aspect] = emb
	}

	if nonEmpty > 0 && failed == nonEmpty {
		return nil, firstErr
	}

	combined, err := Combine(out.Aspects, weights, s.dim)
	if err != nil {
		return nil, err
	}
	out.Combined = combined
	return out, nil
}

// callModel embeds texts in one model call, bounded by the semaphore, the
// rate limiter and the per-call timeout.
func (s *Store) callModel(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	defer s.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(callCtx); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %v", types.ErrModelUnavailable, err)
	}

	resp, err := s.model.GenerateBatch(callCtx, BatchEmbeddingRequest{Texts: texts})
	s.metrics.EmbeddingCall(s.model.Provider(), len(texts), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: model returned %d vectors for %d texts",
			types.ErrModelUnavailable, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Vector) != s.dim {
			got := 0
			if emb != nil {
				got = len(emb.Vector)
			}
			return nil, fmt.Errorf("%w: model returned %d dims, want %d", types.ErrDimensionMismatch, got, s.dim)
		}
		vectors[i] = emb.Vector
	}
	return vectors, nil
}

func (s *Store) tag(vector []float32, a types.Aspect, hash string) *types.Embedding {
	v := make([]float32, len(vector))
	copy(v, vector)
	return &types.Embedding{
		Vector:      v,
		Dimension:   s.dim,
		ContentType: a,
		Provider:    s.model.Provider(),
		Model:       s.model.Model(),
		NormVersion: types.NormVersion,
		Hash:        hash,
	}
}

func (s *Store) zero(a types.Aspect) *types.Embedding {
	return &types.Embedding{
		Vector:      make([]float32, s.dim),
		Dimension:   s.dim,
		ContentType: a,
		Provider:    s.model.Provider(),
		Model:       s.model.Model(),
		NormVersion: types.NormVersion,
		Hash:        ComputeHash(string(EmptyMarker)),
	}
}
