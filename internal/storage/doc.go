// Package storage provides SQLite-based persistence for developer and project
// profiles, the skill relationship graph and entity embeddings.
//
// The storage layer manages:
//   - Skills and typed skill edges
//   - Developers and their skill edges
//   - Projects and their skill requirements
//   - Aspect and combined embeddings per entity
//   - Pairwise collaboration history
//
// # Database Schema
//
// Tables:
//   - skills: Skill nodes keyed by normalized name
//   - skill_edges: Directed edges (source, target, edge_type) with strength
//   - developers, developer_skills: Profiles and proficiency per skill
//   - projects, project_skills: Projects and ordered requirements
//   - embeddings: One row per (entity_kind, entity_id, aspect), including "combined"
//   - collaborations: Pair scores stored with developer_a < developer_b
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.devmatch/devmatch.db",
//	    storage.WithVectorModel("text-embedding-3-small"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.UpsertDeveloper(ctx, &types.Developer{ID: "dev-1", ...})
//	dev, err := db.GetDeveloper(ctx, "dev-1")
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertDeveloper(ctx, dev)
//	_ = tx.UpsertEmbeddings(ctx, profile)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Vector Search
//
// SQLiteStorage implements similarity.Backend. SearchVectors ranks the
// "combined" vectors of one entity kind:
//
//	matches, err := db.SearchVectors(ctx, types.EntityDeveloper, query, 0.3, 20)
//
// Builds with the sqlite_vec tag compute cosine distance in SQL with
// vec_distance_cosine. Pure Go builds scan the vectors and score them with
// similarity.Search. Both return scores in [-1, 1] ordered by score descending
// and entity id ascending, and only consider vectors whose dimension equals the
// query's.
//
// Vectors are stored as little-endian float32 blobs.
//
// # Build Modes
//
//	CGO_ENABLED=1 go build -tags sqlite_vec ./...   # mattn/go-sqlite3
//	CGO_ENABLED=0 go build -tags purego ./...       # modernc.org/sqlite
//
// # Migrations
//
// The schema is versioned with semantic versions in the schema_version table.
// ApplyMigrations runs every migration newer than the recorded version and
// RollbackMigration reverts the latest one.
package storage
