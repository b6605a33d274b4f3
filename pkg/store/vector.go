package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/docindex/docindex/internal/errors"
)

// vectorIndexManager owns one HNSW graph per (library_id, version_id)
// scope, so that ANN search is naturally restricted to that scope instead
// of needing a post-search filter. Graphs are created lazily by scope key.
type vectorIndexManager struct {
	dimensions int

	mu     sync.RWMutex
	graphs map[string]*scopedGraph
}

type scopedGraph struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // document id (string) -> internal key
	keyMap  map[uint64]string
	nextKey uint64
}

func newVectorIndexManager(dimensions int) *vectorIndexManager {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &vectorIndexManager{
		dimensions: dimensions,
		graphs:     make(map[string]*scopedGraph),
	}
}

func scopeKey(libraryID, versionID int64) string {
	return fmt.Sprintf("%d:%d", libraryID, versionID)
}

func newScopedGraph() *scopedGraph {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	return &scopedGraph{
		graph:  g,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

func (m *vectorIndexManager) scope(libraryID, versionID int64) *scopedGraph {
	key := scopeKey(libraryID, versionID)

	m.mu.RLock()
	g, ok := m.graphs[key]
	m.mu.RUnlock()
	if ok {
		return g
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.graphs[key]; ok {
		return g
	}
	g = newScopedGraph()
	m.graphs[key] = g
	return g
}

// add inserts or replaces a vector keyed by document id within a scope.
func (m *vectorIndexManager) add(libraryID, versionID int64, docID string, vector []float32) {
	g := m.scope(libraryID, versionID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if existingKey, exists := g.idMap[docID]; exists {
		delete(g.keyMap, existingKey)
		delete(g.idMap, docID)
	}

	key := g.nextKey
	g.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	g.graph.Add(hnsw.MakeNode(key, vec))
	g.idMap[docID] = key
	g.keyMap[key] = docID
}

// remove drops vectors by document id from a scope's graph. Deletion is
// lazy (the id mapping is dropped, the graph node stays) to avoid a
// coder/hnsw panic when the last node is physically deleted.
func (m *vectorIndexManager) remove(libraryID, versionID int64, docIDs []string) {
	g := m.scope(libraryID, versionID)

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range docIDs {
		if key, exists := g.idMap[id]; exists {
			delete(g.keyMap, key)
			delete(g.idMap, id)
		}
	}
}

// vectorHit is one ANN candidate.
type vectorHit struct {
	DocID    string
	Distance float32
	Score    float32
}

func (m *vectorIndexManager) search(libraryID, versionID int64, query []float32, k int) []vectorHit {
	g := m.scope(libraryID, versionID)

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph.Len() == 0 {
		return nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	normalizeInPlace(normalizedQuery)

	nodes := g.graph.Search(normalizedQuery, k)

	hits := make([]vectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, ok := g.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := g.graph.Distance(normalizedQuery, node.Value)
		hits = append(hits, vectorHit{
			DocID:    id,
			Distance: distance,
			Score:    1.0 - distance/2.0,
		})
	}
	return hits
}

func (m *vectorIndexManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs = make(map[string]*scopedGraph)
}

// encodeVector gob-encodes a vector for the embeddings table's BLOB column.
func encodeVector(v []float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.InternalError("failed to gob-encode embedding vector", err)
	}
	return buf.Bytes(), nil
}

// decodeVector reverses encodeVector, used both by rebuildVectorIndex on
// Open and anywhere a stored embedding needs to be read back.
func decodeVector(blob []byte) ([]float32, error) {
	var v []float32
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&v); err != nil {
		return nil, errors.InternalError("failed to gob-decode embedding vector", err)
	}
	return v, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
