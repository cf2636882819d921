package roster

import (
	"context"
	"errors"
	"testing"

	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/database/mock"
	"github.com/classlens/classlens/internal/embedding"
)

func vec(version embedding.Version, lead ...float32) []float32 {
	out := make([]float32, version.Dim())
	copy(out, lead)
	return out
}

func TestLoadSingleVersionBatch(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 1), Active: true,
	})
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-b", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 0, 1), Active: true,
	})
	// Other class and inactive rows are invisible.
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-x", ClassID: "class-2", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 1), Active: true,
	})
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-y", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 1), Active: false,
	})

	batch, err := NewStore(store).Load(context.Background(), "class-1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if batch.Version != embedding.ArcFaceV4 {
		t.Errorf("batch version = %v, want arcface-v4", batch.Version)
	}
	if len(batch.Enrolled) != 2 {
		t.Fatalf("got %d enrolled, want 2", len(batch.Enrolled))
	}
	if batch.Enrolled[0].StudentID != "stu-a" || batch.Enrolled[1].StudentID != "stu-b" {
		t.Errorf("batch order = %s, %s, want stu-a, stu-b",
			batch.Enrolled[0].StudentID, batch.Enrolled[1].StudentID)
	}
}

func TestLoadPrefersCurrentVersion(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	// stu-a has both versions active; only arcface-v4 may enter the batch.
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "legacy-v1",
		Embedding: vec(embedding.LegacyV1, 1), Active: true,
	})
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 1), Active: true,
	})

	batch, err := NewStore(store).Load(context.Background(), "class-1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(batch.Enrolled) != 1 {
		t.Fatalf("got %d enrolled, want 1 (one face per student)", len(batch.Enrolled))
	}
	if batch.Enrolled[0].Version != embedding.ArcFaceV4 {
		t.Errorf("version = %v, want arcface-v4 preferred over legacy", batch.Enrolled[0].Version)
	}
}

func TestLoadEmptyRoster(t *testing.T) {
	store := mock.NewMockEnrollmentStore()

	_, err := NewStore(store).Load(context.Background(), "class-1")
	if !errors.Is(err, ErrNoEnrolledFaces) {
		t.Errorf("error = %v, want ErrNoEnrolledFaces", err)
	}
}

func TestLoadRejectsMixedVersions(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "legacy-v1",
		Embedding: vec(embedding.LegacyV1, 1), Active: true,
	})
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-b", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 1), Active: true,
	})

	_, err := NewStore(store).Load(context.Background(), "class-1")
	if !errors.Is(err, ErrMixedVersions) {
		t.Errorf("error = %v, want ErrMixedVersions", err)
	}
}

func TestLoadAllLegacyBatch(t *testing.T) {
	// A class still entirely on legacy embeddings is a valid batch.
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "legacy-v1",
		Embedding: vec(embedding.LegacyV1, 1), Active: true,
	})
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-b", ClassID: "class-1", Version: "legacy-v1",
		Embedding: vec(embedding.LegacyV1, 0, 1), Active: true,
	})

	batch, err := NewStore(store).Load(context.Background(), "class-1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if batch.Version != embedding.LegacyV1 {
		t.Errorf("batch version = %v, want legacy-v1", batch.Version)
	}
}

func TestLoadRejectsCorruptDimension(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "arcface-v4",
		Embedding: []float32{1, 2, 3}, Active: true,
	})

	_, err := NewStore(store).Load(context.Background(), "class-1")
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestGet(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "legacy-v1",
		Embedding: vec(embedding.LegacyV1, 1), Active: true,
	})
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 1), Active: true,
	})

	s := NewStore(store)
	e, err := s.Get(context.Background(), "stu-a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if e.Version != "arcface-v4" {
		t.Errorf("version = %s, want arcface-v4 preferred", e.Version)
	}

	_, err = s.Get(context.Background(), "stu-z")
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStudentIDs(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-b", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 1), Active: true,
	})
	store.AddEnrollment(database.StoredEnrollment{
		StudentID: "stu-a", ClassID: "class-1", Version: "arcface-v4",
		Embedding: vec(embedding.ArcFaceV4, 0, 1), Active: true,
	})

	ids, err := NewStore(store).StudentIDs(context.Background(), "class-1")
	if err != nil {
		t.Fatalf("StudentIDs returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "stu-a" || ids[1] != "stu-b" {
		t.Errorf("ids = %v, want [stu-a stu-b]", ids)
	}
}
