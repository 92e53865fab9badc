package database

// HNSW index parameters for face embeddings (128-512 dims)
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// hnswMetadataVersion is bumped when the on-disk index layout changes.
	hnswMetadataVersion = 1
)

// Index modes accepted by the store.
const (
	IndexExact = "exact"
	IndexHNSW  = "hnsw"
)
