// Package indexer loads developer/project datasets into the matching engine.
//
// A dataset is a JSON document:
//
//	{
//	  "skills":         [{"name": "go", "category": "language", "popularity": 0.8}],
//	  "skill_edges":    [{"source": "go", "target": "grpc", "type": "used_with", "strength": 0.8}],
//	  "developers":     [{"id": "dev-1", "skills": [{"skill": "go", "proficiency": 0.9, "experience_years": 4}]}],
//	  "projects":       [{"id": "proj-1", "skills": [{"skill": "go", "importance": "critical"}]}],
//	  "collaborations": [{"developer_a": "dev-1", "developer_b": "dev-2", "score": 0.7}]
//	}
//
// # Basic Usage
//
//	idx := indexer.New(eng, log)
//
//	stats, err := idx.IngestFile(ctx, "dataset.json", &indexer.Config{Workers: 4})
//
//	fmt.Printf("Indexed %d developers in %v\n", stats.DevelopersIndexed, stats.Duration)
//
// # Pipeline
//
//  1. Skills and skill edges are written in file order.
//  2. Developers and projects without an id receive a random UUID.
//  3. Developers and projects are embedded and stored by a bounded worker pool.
//  4. Collaborations are written last, once their developers exist.
//
// A record that fails is counted in Statistics.Failed and described in
// Statistics.ErrorMessages; the rest of the dataset is still ingested. A record
// stored while the embedding model was unavailable counts as NotEmbedded and is
// invisible to vector search until it is written again.
//
// # Concurrency
//
// One ingest runs at a time per Indexer. A second concurrent Ingest returns
// ErrIngestInProgress instead of queueing; Busy reports whether one is running.
package indexer
