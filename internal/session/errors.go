package session

import "errors"

var (
	// ErrSessionNotFound is returned when no open session has the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAlreadySubmitted is returned by a second Submit. The previously
	// produced records are still returned alongside it; no second mutation
	// is performed.
	ErrAlreadySubmitted = errors.New("session already submitted")

	// ErrInvalidStateTransition is returned when an operation is not legal
	// in the session's current status, e.g. merging a photo into a
	// submitted session.
	ErrInvalidStateTransition = errors.New("invalid session state transition")

	// ErrStudentNotEnrolled is returned by SetMark for a student who is not
	// on the session's roster.
	ErrStudentNotEnrolled = errors.New("student not enrolled in class")
)
