package recognition

import (
	"errors"
	"math"
	"testing"

	"github.com/classlens/classlens/internal/embedding"
)

// pad extends a short test vector to the LegacyV1 dimension so CheckDim
// passes without 128-element literals in every case.
func pad(vec []float32) []float32 {
	out := make([]float32, embedding.LegacyV1.Dim())
	copy(out, vec)
	return out
}

// padEnrolled builds an enrolled set from short vectors, ordered by student ID.
func padEnrolled(students map[string][]float32) []EnrolledFace {
	var out []EnrolledFace
	for _, id := range []string{"stu-a", "stu-b", "stu-c", "stu-d"} {
		if vec, ok := students[id]; ok {
			out = append(out, EnrolledFace{StudentID: id, Version: embedding.LegacyV1, Vector: pad(vec)})
		}
	}
	return out
}

func TestMatchPhotoBasicAssignment(t *testing.T) {
	enrolled := padEnrolled(map[string][]float32{
		"stu-a": {1, 0, 0},
		"stu-b": {0, 1, 0},
	})
	queries := []QueryFace{
		{Vector: pad([]float32{0.95, 0.1, 0}), FaceIndex: 0},
		{Vector: pad([]float32{0.1, 0.9, 0}), FaceIndex: 1},
	}

	result, err := MatchPhoto(queries, enrolled, 0, Options{Threshold: 0.6})
	if err != nil {
		t.Fatalf("MatchPhoto returned error: %v", err)
	}

	if result.FacesDetected != 2 {
		t.Errorf("FacesDetected = %d, want 2", result.FacesDetected)
	}
	if result.FacesRecognized != 2 {
		t.Fatalf("FacesRecognized = %d, want 2", result.FacesRecognized)
	}

	got := make(map[string]float64)
	for _, m := range result.Matches {
		got[m.StudentID] = m.Confidence
	}
	for _, id := range []string{"stu-a", "stu-b"} {
		conf, ok := got[id]
		if !ok {
			t.Fatalf("student %s not matched", id)
		}
		if conf < 0.95 {
			t.Errorf("confidence for %s = %v, want >= 0.95", id, conf)
		}
	}
}

func TestMatchPhotoNoDuplicateAssignments(t *testing.T) {
	// Two faces both resembling stu-a: only one may win, and the winner is
	// the higher-similarity face.
	enrolled := padEnrolled(map[string][]float32{
		"stu-a": {1, 0, 0},
	})
	queries := []QueryFace{
		{Vector: pad([]float32{0.8, 0.3, 0}), FaceIndex: 0},
		{Vector: pad([]float32{1, 0.01, 0}), FaceIndex: 1},
	}

	result, err := MatchPhoto(queries, enrolled, 3, Options{Threshold: 0.6})
	if err != nil {
		t.Fatalf("MatchPhoto returned error: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(result.Matches))
	}
	m := result.Matches[0]
	if m.StudentID != "stu-a" || m.FaceIndex != 1 {
		t.Errorf("match = %+v, want stu-a assigned to face 1", m)
	}
	if m.PhotoIndex != 3 {
		t.Errorf("PhotoIndex = %d, want 3", m.PhotoIndex)
	}

	// The losing face is reported as unmatched, not low-confidence: it met
	// the threshold but lost the assignment.
	var loser *FaceOutcome
	for i := range result.Outcomes {
		if result.Outcomes[i].FaceIndex == 0 {
			loser = &result.Outcomes[i]
		}
	}
	if loser == nil || loser.Kind != OutcomeUnmatched {
		t.Errorf("losing face outcome = %+v, want OutcomeUnmatched", loser)
	}
}

func TestMatchPhotoThreshold(t *testing.T) {
	enrolled := padEnrolled(map[string][]float32{
		"stu-a": {1, 0, 0},
	})
	// Orthogonal vector: normalized similarity 0.5, below the 0.6 threshold.
	queries := []QueryFace{
		{Vector: pad([]float32{0, 1, 0}), FaceIndex: 0},
	}

	result, err := MatchPhoto(queries, enrolled, 0, Options{})
	if err != nil {
		t.Fatalf("MatchPhoto returned error: %v", err)
	}

	if len(result.Matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(result.Matches))
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(result.Outcomes))
	}
	out := result.Outcomes[0]
	if out.Kind != OutcomeLowConfidence {
		t.Errorf("outcome kind = %s, want %s", out.Kind, OutcomeLowConfidence)
	}
	if math.Abs(out.BestConfidence-0.5) > 0.0001 {
		t.Errorf("BestConfidence = %v, want 0.5", out.BestConfidence)
	}
}

func TestMatchPhotoConfidenceAboveThreshold(t *testing.T) {
	enrolled := padEnrolled(map[string][]float32{
		"stu-a": {1, 0, 0},
		"stu-b": {0, 1, 0},
		"stu-c": {0, 0, 1},
	})
	queries := []QueryFace{
		{Vector: pad([]float32{0.9, 0.2, 0.1}), FaceIndex: 0},
		{Vector: pad([]float32{0.2, 0.8, 0.2}), FaceIndex: 1},
		{Vector: pad([]float32{0.1, 0.1, 0.7}), FaceIndex: 2},
	}

	result, err := MatchPhoto(queries, enrolled, 0, Options{Threshold: 0.6})
	if err != nil {
		t.Fatalf("MatchPhoto returned error: %v", err)
	}

	for _, m := range result.Matches {
		if m.Confidence < 0.6 {
			t.Errorf("match %+v has confidence below threshold", m)
		}
	}
}

func TestMatchPhotoTieBreakDeterministic(t *testing.T) {
	// Identical enrolled vectors for two students: the face ties exactly.
	// The lower student ID must win, every time.
	enrolled := padEnrolled(map[string][]float32{
		"stu-a": {1, 0, 0},
		"stu-b": {1, 0, 0},
	})
	queries := []QueryFace{
		{Vector: pad([]float32{1, 0, 0}), FaceIndex: 0},
	}

	for i := 0; i < 10; i++ {
		result, err := MatchPhoto(queries, enrolled, 0, Options{})
		if err != nil {
			t.Fatalf("MatchPhoto returned error: %v", err)
		}
		if len(result.Matches) != 1 {
			t.Fatalf("got %d matches, want 1", len(result.Matches))
		}
		if result.Matches[0].StudentID != "stu-a" {
			t.Fatalf("tie broken to %s, want stu-a", result.Matches[0].StudentID)
		}
	}
}

func TestMatchPhotoMaxFacesCap(t *testing.T) {
	enrolled := padEnrolled(map[string][]float32{
		"stu-a": {1, 0, 0},
	})
	queries := []QueryFace{
		{Vector: pad([]float32{1, 0, 0}), FaceIndex: 0},
		{Vector: pad([]float32{0, 1, 0}), FaceIndex: 1},
		{Vector: pad([]float32{0, 0, 1}), FaceIndex: 2},
	}

	result, err := MatchPhoto(queries, enrolled, 0, Options{MaxFaces: 2})
	if err != nil {
		t.Fatalf("MatchPhoto returned error: %v", err)
	}

	if result.FacesDetected != 2 {
		t.Errorf("FacesDetected = %d, want 2", result.FacesDetected)
	}
	if result.FacesDropped != 1 {
		t.Errorf("FacesDropped = %d, want 1", result.FacesDropped)
	}
}

func TestMatchPhotoDimensionMismatch(t *testing.T) {
	enrolled := padEnrolled(map[string][]float32{
		"stu-a": {1, 0, 0},
	})
	queries := []QueryFace{
		{Vector: []float32{1, 0, 0}, FaceIndex: 0}, // 3-dim vs 128-dim enrolled
	}

	_, err := MatchPhoto(queries, enrolled, 0, Options{})
	if err == nil {
		t.Fatal("MatchPhoto should fail on dimension mismatch")
	}
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestMatchPhotoEmptyInputs(t *testing.T) {
	enrolled := padEnrolled(map[string][]float32{"stu-a": {1, 0, 0}})

	result, err := MatchPhoto(nil, enrolled, 0, Options{})
	if err != nil {
		t.Fatalf("MatchPhoto with no faces returned error: %v", err)
	}
	if result.FacesDetected != 0 || len(result.Matches) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}

	queries := []QueryFace{{Vector: pad([]float32{1, 0, 0}), FaceIndex: 0}}
	result, err = MatchPhoto(queries, nil, 0, Options{})
	if err != nil {
		t.Fatalf("MatchPhoto with no enrolled returned error: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("expected no matches against empty enrolled set")
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Kind != OutcomeUnmatched {
		t.Errorf("outcomes = %+v, want single unmatched", result.Outcomes)
	}
}
