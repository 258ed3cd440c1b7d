// Package embedder turns developer and project text into vectors.
//
// It has two layers. Embedder is the text embedding model: providers for
// OpenAI-compatible endpoints (go-openai), Gemini (genai), Jina (HTTP) and a
// deterministic local hashing model for offline use. Remote providers retry
// with exponential backoff.
//
// Store sits on top of a model and is what the rest of the engine talks to:
//
//	model, err := embedder.New(ctx, embedder.Config{Provider: "openai", APIKey: key})
//	if err != nil {
//	    return err
//	}
//	store, err := embedder.NewStore(model, embedder.StoreOptions{
//	    Dimension: 1536,
//	    CacheTTL:  24 * time.Hour,
//	})
//
//	emb, err := store.Embed(ctx, "Go, PostgreSQL, Kubernetes", types.AspectSkills, true)
//	profile, err := store.DeveloperEmbedding(ctx, developer)
//
// # Normalization and caching
//
// Text is normalized (whitespace collapsed, case folded) before hashing and
// before it is sent to the model. The cache key is the aspect plus the SHA-256
// of the normalized text, so the same text embedded for two aspects occupies
// two entries. Entries expire after the configured TTL. Concurrent misses for
// the same key may both call the model; the last write wins and readers always
// get a private copy.
//
// # Empty input and failures
//
// Blank text is not an error: it yields the zero vector without a model call.
// A model failure for non-empty text is reported as types.ErrModelUnavailable;
// a vector of the wrong length as types.ErrDimensionMismatch. EmbedBatch never
// fails as a whole. Each item carries StatusOK, StatusZeroInput or StatusError.
//
// # Concurrency
//
// Model calls are bounded by a weighted semaphore and an optional token-bucket
// rate limiter, and each call runs under its own timeout.
package embedder
