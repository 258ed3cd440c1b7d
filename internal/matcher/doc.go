// Package matcher ranks developers for a project, and projects for a developer,
// by fusing embedding similarity with the skill-graph compatibility score.
//
// # Pipeline
//
//  1. Look up the response cache by the hash of (query type, normalized
//     payload, limit, analysis flag).
//  2. Embed the query record into its combined vector.
//  3. Search the opposite entity kind for limit*2 candidates above the
//     similarity threshold.
//  4. Resolve candidates through the Directory, dropping unknown ids.
//  5. Score each candidate with the compatibility Scorer, concurrently.
//  6. Fuse: final = vector*Wv + graph*Wg, then
//     final' = final*(1-Wa-Wr) + availability*Wa + reputation*Wr.
//  7. Sort by final' descending with ties by candidate id, truncate, rank.
//  8. Optionally attach a DetailedAnalysis, then cache the response.
//
// An unavailable embedding model yields an empty, degraded response rather
// than an error. Degraded responses are not cached.
//
// # Basic Usage
//
//	m, err := matcher.New(store, index, scorer, db, matcher.Options{})
//	if err != nil {
//	    return err
//	}
//	resp, err := m.MatchDevelopersForProject(ctx, project, matcher.Request{
//	    Limit:           10,
//	    IncludeAnalysis: true,
//	})
//
// Writes to developers or projects must call Invalidate, since cached
// responses are reproducible only from unchanged entities.
package matcher
