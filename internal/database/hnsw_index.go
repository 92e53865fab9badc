package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Count     int       `json:"count"`
	Metric    string    `json:"metric"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

// HNSWIndex is an approximate nearest-neighbor index over enrolled samples,
// keyed by sample ID.
type HNSWIndex struct {
	graph  *hnsw.Graph[string]
	byID   map[string]*StoredEmbedding
	metric string
	mu     sync.RWMutex
}

// NewHNSWIndex creates an empty index for the given metric name.
func NewHNSWIndex(metric string) (*HNSWIndex, error) {
	if _, err := hnswDistance(metric); err != nil {
		return nil, err
	}
	return &HNSWIndex{byID: make(map[string]*StoredEmbedding), metric: metric}, nil
}

func hnswDistance(metric string) (hnsw.DistanceFunc, error) {
	switch metric {
	case facematch.MetricCosine:
		return hnsw.CosineDistance, nil
	case facematch.MetricEuclidean:
		return hnsw.EuclideanDistance, nil
	default:
		return nil, fmt.Errorf("no HNSW distance for metric %q", metric)
	}
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance, _ = hnswDistance(h.metric)
	return g
}

// Build replaces the index content with rows.
func (h *HNSWIndex) Build(rows []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = h.newGraph()
	h.byID = make(map[string]*StoredEmbedding, len(rows))
	h.addLocked(rows)
}

// Add inserts rows into the index.
func (h *HNSWIndex) Add(rows []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = h.newGraph()
	}
	h.addLocked(rows)
}

func (h *HNSWIndex) addLocked(rows []StoredEmbedding) {
	for i := range rows {
		row := &rows[i]
		if len(row.Embedding) == 0 {
			continue
		}
		h.graph.Add(hnsw.MakeNode(row.ID, row.Embedding))
		h.byID[row.ID] = row
	}
}

// Search returns up to k samples near query, nearest first.
func (h *HNSWIndex) Search(query []float32, k int) []StoredEmbedding {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 || k <= 0 {
		return nil
	}

	neighbors := h.graph.Search(query, k)
	out := make([]StoredEmbedding, 0, len(neighbors))
	for _, n := range neighbors {
		if row, ok := h.byID[n.Key]; ok {
			out = append(out, *row)
		}
	}
	return out
}

// Count returns the number of indexed samples.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Save persists the graph to path and its metadata to path+".meta".
// The graph file is written to a temp file and renamed into place.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || len(h.byID) == 0 {
		// Nothing to keep (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := h.graph.Export(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming HNSW index file: %w", err)
	}

	metaData, err := json.Marshal(HNSWIndexMetadata{
		Count:     len(h.byID),
		Metric:    h.metric,
		BuildTime: time.Now().UTC(),
		Version:   hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// errStaleIndex is returned by Load when the cached index does not describe rows.
var errStaleIndex = errors.New("cached HNSW index is stale")

// Load restores a graph saved by Save. rows must be the store content the graph
// was built from; a cache whose metadata disagrees is rejected with errStaleIndex.
func (h *HNSWIndex) Load(path string, rows []StoredEmbedding) error {
	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if meta.Version != hnswMetadataVersion || meta.Metric != h.metric || meta.Count != len(rows) {
		return errStaleIndex
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	byID := make(map[string]*StoredEmbedding, len(rows))
	for i := range rows {
		if _, ok := saved.Lookup(rows[i].ID); !ok {
			return errStaleIndex
		}
		byID[rows[i].ID] = &rows[i]
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = saved.Graph
	h.graph.Distance, _ = hnswDistance(h.metric)
	h.byID = byID
	return nil
}
