package database

import (
	"context"

	"github.com/classlens/classlens/internal/session"
)

// EnrollmentReader provides read-only access to enrollment embeddings.
type EnrollmentReader interface {
	// GetActiveByClass retrieves all active enrollments for a class,
	// ordered by student ID.
	GetActiveByClass(ctx context.Context, classID string) ([]StoredEnrollment, error)
	// GetByStudent retrieves all enrollments for a student, active first.
	GetByStudent(ctx context.Context, studentID string) ([]StoredEnrollment, error)
	// GetAllActive retrieves every active enrollment, for index building.
	GetAllActive(ctx context.Context) ([]StoredEnrollment, error)
	// CountActive returns the number of active enrollments.
	CountActive(ctx context.Context) (int, error)
}

// EnrollmentWriter provides write access to enrollment embeddings.
type EnrollmentWriter interface {
	EnrollmentReader

	// SaveEnrollment stores a new enrollment and deactivates any prior
	// active enrollment for the same student and version. Returns the new
	// row ID.
	SaveEnrollment(ctx context.Context, enrollment StoredEnrollment) (int64, error)

	// DeactivateEnrollment retires a student's active enrollment for a
	// version without replacing it.
	DeactivateEnrollment(ctx context.Context, studentID, version string) error
}

// AttendanceWriter persists finalized attendance sessions.
type AttendanceWriter interface {
	// SaveSubmission writes the session summary and all records in one
	// transaction. A session ID can be submitted at most once; a repeat
	// write fails.
	SaveSubmission(ctx context.Context, summary StoredSessionSummary, records []session.Record) error

	// ArchiveSession flips a submitted session to its read-only archived
	// state.
	ArchiveSession(ctx context.Context, sessionID string) error
}

// AttendanceReader reads back persisted attendance data.
type AttendanceReader interface {
	// GetSessionSummary returns the summary for a submitted session, or
	// ErrNotFound.
	GetSessionSummary(ctx context.Context, sessionID string) (*StoredSessionSummary, error)

	// GetRecordsBySession returns a session's records ordered by student ID.
	GetRecordsBySession(ctx context.Context, sessionID string) ([]session.Record, error)

	// GetRecordsByStudent returns a student's attendance history, newest
	// first.
	GetRecordsByStudent(ctx context.Context, studentID string, limit int) ([]session.Record, error)
}
