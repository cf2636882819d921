// Package database defines the stored types and repository contracts for
// enrollment embeddings and attendance records.
package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// StoredEnrollment is one student's reference face embedding. A student has
// at most one active enrollment per encoding version; saving a new one
// deactivates the old.
type StoredEnrollment struct {
	ID        int64
	StudentID string
	ClassID   string
	Version   string // embedding.Version value
	Embedding []float32
	Active    bool
	CreatedAt time.Time
}

// StoredSessionSummary is the archival row written when a session is
// submitted. The attendance records themselves live in their own table;
// this row carries the session-level statistics and the archived flag that
// backs the Closed state.
type StoredSessionSummary struct {
	SessionID          string
	ClassID            string
	Date               string
	PhotosProcessed    int
	FacesDetectedTotal int
	StudentsRecognized int
	EnrolledCount      int
	SubmittedAt        time.Time
	Archived           bool
}
