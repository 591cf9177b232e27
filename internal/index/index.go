// Package index provides the nearest-neighbour song index queried by the
// retrieval pipeline and populated by the ingestion job. Three backends
// share one contract: a local SQLite file with an exact cosine scan, Qdrant
// and Milvus.
//
// Every backend uses cosine distance (1 - cosine similarity). Results are
// ordered by ascending distance with ties broken by record ID, so repeated
// identical queries return identical orderings.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrIndexUnavailable is returned when the backing store cannot be
	// opened or reached.
	ErrIndexUnavailable = errors.New("index: unavailable")
	// ErrCollectionNotFound is returned when the named collection does not
	// exist in an otherwise reachable store.
	ErrCollectionNotFound = errors.New("index: collection not found")
)

// Match is a single nearest-neighbour hit.
type Match struct {
	// ID is the record identifier assigned at ingestion.
	ID string
	// Distance is the cosine distance from the query vector.
	Distance float32
	// Document is the text the record embedding was computed from.
	Document string
	// Metadata holds name, artists and the six acoustic scalars.
	Metadata map[string]any
}

// Record is a song entry written by the ingestion job.
type Record struct {
	// ID is unique within a collection.
	ID string
	// Embedding is the encoder output for Document.
	Embedding []float32
	// Document is the canonical feature text.
	Document string
	// Metadata is stored verbatim and returned with matches.
	Metadata map[string]any
}

// Querier is the read side used at serving time. Implementations must be
// safe to call from multiple goroutines.
type Querier interface {
	// Query returns up to k records nearest to embedding. k must be >= 1.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)
}

// Store is a full index backend: queryable, writable by ingestion, and
// probeable for readiness.
type Store interface {
	Querier
	// EnsureCollection creates the collection for vectors of the given
	// dimension if it is missing. When recreate is true an existing
	// collection is dropped first.
	EnsureCollection(ctx context.Context, dimension int, recreate bool) error
	// Upsert writes records, replacing any with the same ID.
	Upsert(ctx context.Context, records []Record) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Name returns the backend label used in logs and readiness checks.
	Name() string
	// Close releases any resources held by the store.
	Close() error
}

// validateQuery checks the arguments shared by every backend.
func validateQuery(embedding []float32, k int) error {
	if k < 1 {
		return fmt.Errorf("index: k must be >= 1, got %d", k)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("index: empty query embedding")
	}
	return nil
}

// sortMatches orders matches by ascending distance, then by ID, and trims
// the slice to k.
func sortMatches(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// cosineDistance returns 1 - cos(a, b). A zero vector is treated as
// maximally distant.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// similarityToDistance converts a backend cosine similarity score.
func similarityToDistance(score float32) float32 {
	return 1 - score
}
