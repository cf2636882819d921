package database

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/classlens/classlens/internal/embedding"
)

// DuplicateIndex is an in-memory HNSW graph over all active enrollment
// embeddings. It answers one question at enroll time: is this face already
// enrolled under a different student? Vectors of different encoding versions
// never meet in a comparison because the index is keyed per version.
type DuplicateIndex struct {
	version        embedding.Version
	graph          *hnsw.Graph[int64]
	savedGraph     *hnsw.SavedGraph[int64]
	idToEnrollment map[int64]*StoredEnrollment
	mu             sync.RWMutex
	path           string
}

// NewDuplicateIndex creates an empty index for one encoding version.
func NewDuplicateIndex(version embedding.Version) *DuplicateIndex {
	return &DuplicateIndex{
		version:        version,
		idToEnrollment: make(map[int64]*StoredEnrollment),
	}
}

// Version returns the encoding version this index holds.
func (d *DuplicateIndex) Version() embedding.Version {
	return d.version
}

// BuildFromEnrollments builds the index from scratch. Enrollments of other
// versions are skipped.
func (d *DuplicateIndex) BuildFromEnrollments(enrollments []StoredEnrollment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(enrollments) == 0 {
		d.graph = nil
		d.savedGraph = nil
		d.idToEnrollment = make(map[int64]*StoredEnrollment)
		return nil
	}

	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	d.idToEnrollment = make(map[int64]*StoredEnrollment, len(enrollments))

	for i := range enrollments {
		e := &enrollments[i]
		if e.Version != string(d.version) || len(e.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(e.ID, e.Embedding))
		d.idToEnrollment[e.ID] = e
	}

	d.graph = g
	d.savedGraph = nil
	return nil
}

// Add inserts a single enrollment into the index.
func (d *DuplicateIndex) Add(e *StoredEnrollment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.Version != string(d.version) || len(e.Embedding) == 0 {
		return nil
	}

	if d.savedGraph != nil {
		d.savedGraph.Add(hnsw.MakeNode(e.ID, e.Embedding))
		d.idToEnrollment[e.ID] = e
		return nil
	}

	if d.graph == nil {
		d.graph = hnsw.NewGraph[int64]()
		d.graph.M = HNSWMaxNeighbors
		d.graph.Ml = 1.0 / float64(HNSWMaxNeighbors)
		d.graph.EfSearch = HNSWEfSearch
		d.graph.Distance = hnsw.CosineDistance
	}

	d.graph.Add(hnsw.MakeNode(e.ID, e.Embedding))
	d.idToEnrollment[e.ID] = e
	return nil
}

// Delete removes an enrollment from lookups. HNSW has no true deletion;
// search results are filtered through idToEnrollment so a dropped entry
// stops appearing.
func (d *DuplicateIndex) Delete(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.idToEnrollment, id)
}

// Duplicate is one near-identical enrollment found for a candidate vector.
type Duplicate struct {
	StudentID string  `json:"student_id"`
	Distance  float64 `json:"distance"`
}

// FindDuplicates searches for enrolled faces within
// DuplicateDistanceThreshold of the candidate vector, excluding the student
// being enrolled (re-enrolling yourself is not a duplicate).
func (d *DuplicateIndex) FindDuplicates(vector []float32, excludeStudentID string, k int) ([]Duplicate, error) {
	if err := embedding.CheckDim(d.version, vector); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.graph == nil && d.savedGraph == nil {
		return nil, nil
	}

	var neighbors []hnsw.Node[int64]
	if d.savedGraph != nil {
		neighbors = d.savedGraph.Search(vector, k)
	} else {
		neighbors = d.graph.Search(vector, k)
	}

	var dups []Duplicate
	for _, n := range neighbors {
		e, ok := d.idToEnrollment[n.Key]
		if !ok || e.StudentID == excludeStudentID {
			continue
		}
		dist := embedding.CosineDistance(vector, n.Value)
		if dist <= DuplicateDistanceThreshold {
			dups = append(dups, Duplicate{StudentID: e.StudentID, Distance: dist})
		}
	}
	return dups, nil
}

// Count returns the number of indexed enrollments.
func (d *DuplicateIndex) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.idToEnrollment)
}

// Save persists the index to disk. A nil graph removes any stale file.
func (d *DuplicateIndex) Save() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.path == "" {
		return nil
	}

	if d.graph == nil && d.savedGraph == nil {
		_ = os.Remove(d.path)
		return nil
	}

	f, err := os.Create(d.path)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	// SavedGraph embeds the graph, so a loaded index exports directly.
	if d.savedGraph != nil {
		if err := d.savedGraph.Export(f); err != nil {
			return fmt.Errorf("exporting HNSW graph: %w", err)
		}
		return nil
	}
	if err := d.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// LoadFromDisk restores a previously saved graph and rebinds it to the
// current enrollment rows. Returns false when there is no index file or the
// saved graph no longer matches the active enrollments, in which case the
// caller rebuilds from the database.
func (d *DuplicateIndex) LoadFromDisk(path string, enrollments []StoredEnrollment) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.path = path

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil // No index file, will build from enrollments
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	idToEnrollment := make(map[int64]*StoredEnrollment)
	for i := range enrollments {
		e := &enrollments[i]
		if e.Version != string(d.version) || len(e.Embedding) == 0 {
			continue
		}
		idToEnrollment[e.ID] = e
	}

	// A graph out of step with the enrollment rows would surface phantom
	// or missing duplicates; treat it as stale and rebuild.
	if saved.Len() != len(idToEnrollment) {
		return false, nil
	}

	saved.EfSearch = HNSWEfSearch
	d.savedGraph = saved
	d.idToEnrollment = idToEnrollment
	return true, nil
}
