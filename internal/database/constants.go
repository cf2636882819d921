package database

// HNSW index parameters for the duplicate-identity index over enrollment
// embeddings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// DuplicateDistanceThreshold is the cosine distance below which two
	// enrollment embeddings are considered the same person.
	DuplicateDistanceThreshold = 0.35
)
