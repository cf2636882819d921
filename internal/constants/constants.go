// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Upload constants
const (
	// MaxUploadSize is the maximum accepted size of an uploaded photo in bytes
	MaxUploadSize = 20 << 20 // 20 MB
)

// Enrollment constants
const (
	// DuplicateCandidates is how many nearest neighbors the duplicate check
	// retrieves per enrollment attempt
	DuplicateCandidates = 5
)

// History constants
const (
	// DefaultHistoryLimit is the default number of attendance records returned
	// for a single student's history
	DefaultHistoryLimit = 100
)
