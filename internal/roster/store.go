// Package roster loads a class's enrolled reference embeddings as a single
// same-version batch ready for matching.
package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/embedding"
	"github.com/classlens/classlens/internal/recognition"
)

var (
	// ErrNoEnrolledFaces means the class has no active enrollments. Callers
	// treat this as "nothing to match", not a system error.
	ErrNoEnrolledFaces = errors.New("no enrolled faces for class")

	// ErrMixedVersions means the class roster cannot form a single-version
	// batch: some students only have legacy embeddings while others are on
	// the current version. Cosine similarity across versions is
	// meaningless, so the load is rejected rather than silently mixed.
	ErrMixedVersions = errors.New("roster mixes embedding versions")
)

// Store answers enrollment queries for the matching core. It is read-only;
// enrollment writes belong to the enrollment flow, not to matching.
type Store struct {
	enrollments database.EnrollmentReader
}

// NewStore creates a roster store over an enrollment repository.
func NewStore(enrollments database.EnrollmentReader) *Store {
	return &Store{enrollments: enrollments}
}

// Batch is one class's matchable enrollment set: one face per student, all
// sharing a single encoding version.
type Batch struct {
	Version  embedding.Version
	Enrolled []recognition.EnrolledFace
}

// Load returns all active embeddings for students enrolled in the class,
// one per student. When a student has both a legacy and a current-version
// embedding, only the current version is used; legacy embeddings serve
// solely as a migration fallback when the whole class is still on them.
func (s *Store) Load(ctx context.Context, classID string) (*Batch, error) {
	enrollments, err := s.enrollments.GetActiveByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("loading enrollments for class %s: %w", classID, err)
	}
	if len(enrollments) == 0 {
		return nil, ErrNoEnrolledFaces
	}

	// Pick the best version per student: current beats legacy.
	best := make(map[string]*database.StoredEnrollment)
	order := make([]string, 0, len(enrollments))
	for i := range enrollments {
		e := &enrollments[i]
		existing, seen := best[e.StudentID]
		if !seen {
			best[e.StudentID] = e
			order = append(order, e.StudentID)
			continue
		}
		if existing.Version == string(embedding.LegacyV1) && e.Version == string(embedding.ArcFaceV4) {
			best[e.StudentID] = e
		}
	}

	batchVersion := embedding.Version(best[order[0]].Version)
	batch := &Batch{Version: batchVersion}
	for _, studentID := range order {
		e := best[studentID]
		version, err := embedding.ParseVersion(e.Version)
		if err != nil {
			return nil, fmt.Errorf("enrollment %d: %w", e.ID, err)
		}
		if version != batchVersion {
			return nil, fmt.Errorf("%w: class %s has both %s and %s",
				ErrMixedVersions, classID, batchVersion, version)
		}
		if err := embedding.CheckDim(version, e.Embedding); err != nil {
			return nil, fmt.Errorf("enrollment %d: %w", e.ID, err)
		}
		batch.Enrolled = append(batch.Enrolled, recognition.EnrolledFace{
			StudentID: e.StudentID,
			Version:   version,
			Vector:    e.Embedding,
		})
	}
	return batch, nil
}

// Get returns a single student's active embedding, preferring the current
// version. Returns database.ErrNotFound when the student has none.
func (s *Store) Get(ctx context.Context, studentID string) (*database.StoredEnrollment, error) {
	enrollments, err := s.enrollments.GetByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("loading enrollments for student %s: %w", studentID, err)
	}

	var legacy *database.StoredEnrollment
	for i := range enrollments {
		e := &enrollments[i]
		if !e.Active {
			continue
		}
		if e.Version == string(embedding.ArcFaceV4) {
			return e, nil
		}
		if legacy == nil {
			legacy = e
		}
	}
	if legacy != nil {
		return legacy, nil
	}
	return nil, database.ErrNotFound
}

// StudentIDs returns the matchable student IDs of a class, for building a
// session roster.
func (s *Store) StudentIDs(ctx context.Context, classID string) ([]string, error) {
	batch, err := s.Load(ctx, classID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(batch.Enrolled))
	for _, e := range batch.Enrolled {
		ids = append(ids, e.StudentID)
	}
	return ids, nil
}
