// Package recognition matches face embeddings detected in a classroom photo
// against a class's enrolled reference embeddings.
package recognition

import (
	"github.com/classlens/classlens/internal/embedding"
)

// QueryFace is one detected face from a single photo. Ephemeral; produced by
// the external extractor and never persisted.
type QueryFace struct {
	Vector    []float32
	FaceIndex int       // detection index within the photo
	BBox      []float64 // [x1, y1, x2, y2] in raw pixel coordinates
}

// EnrolledFace is one student's active reference embedding. All faces in a
// matching batch share the same encoding version.
type EnrolledFace struct {
	StudentID string
	Version   embedding.Version
	Vector    []float32
}

// Match assigns one query face to one student with a confidence in [0, 1].
type Match struct {
	StudentID  string
	Confidence float64
	FaceIndex  int
	PhotoIndex int
}

// OutcomeKind tags what happened to a single query face.
type OutcomeKind string

const (
	OutcomeMatched       OutcomeKind = "matched"
	OutcomeUnmatched     OutcomeKind = "unmatched"
	OutcomeLowConfidence OutcomeKind = "low_confidence"
)

// FaceOutcome records the per-face result, including faces that matched
// nobody. Unmatched faces are informational, not failures.
type FaceOutcome struct {
	FaceIndex      int         `json:"face_index"`
	Kind           OutcomeKind `json:"kind"`
	StudentID      string      `json:"student_id,omitempty"`      // set when Kind == OutcomeMatched
	Confidence     float64     `json:"confidence,omitempty"`      // set when Kind == OutcomeMatched
	BestConfidence float64     `json:"best_confidence,omitempty"` // best below-threshold score when Kind == OutcomeLowConfidence
}

// Result is the output of matching one photo.
type Result struct {
	Matches         []Match
	Outcomes        []FaceOutcome
	FacesDetected   int // faces considered after the maxFaces cap
	FacesRecognized int
	FacesDropped    int // detections discarded by the maxFaces cap
	PhotoIndex      int
}
