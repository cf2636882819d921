// Package session owns the attendance session lifecycle: it accumulates
// recognition results across any number of classroom photos, reconciles them
// with manual teacher overrides, and finalizes the session into attendance
// records exactly once.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/classlens/classlens/internal/recognition"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"      // created, no photo processed yet
	StatusReviewing Status = "reviewing" // at least one photo merged or mark set
	StatusSubmitted Status = "submitted" // records produced; writes rejected
	StatusClosed    Status = "closed"    // archived end-of-term view
)

// MarkStatus is a student's attendance decision.
type MarkStatus string

const (
	Present MarkStatus = "present"
	Absent  MarkStatus = "absent"
)

// Method records the provenance of a mark. Manual marks are authoritative:
// once a teacher touches a student, AI results never overwrite them.
type Method string

const (
	MethodAI       Method = "ai_recognized"
	MethodManual   Method = "manual"
	MethodImplicit Method = "manual_implicit" // roster student nobody touched
)

// StudentMark is the per-student accumulation unit inside a session.
type StudentMark struct {
	Status         MarkStatus `json:"status"`
	Method         Method     `json:"method"`
	Confidence     float64    `json:"confidence,omitempty"`
	LastPhotoIndex int        `json:"last_photo_index"`
}

// Stats summarizes the session after each photo.
type Stats struct {
	PhotosProcessed    int     `json:"photos_processed"`
	FacesDetectedTotal int     `json:"faces_detected_total"`
	StudentsRecognized int     `json:"students_recognized"`
	EnrolledCount      int     `json:"enrolled_count"`
	SuccessRate        float64 `json:"success_rate"`
}

// Record is one finalized attendance entry, produced once at Submit and
// immutable thereafter.
type Record struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	ClassID    string     `json:"class_id"`
	StudentID  string     `json:"student_id"`
	Date       string     `json:"date"`
	Status     MarkStatus `json:"status"`
	Method     Method     `json:"method"`
	Confidence float64    `json:"confidence,omitempty"`
	MarkedAt   time.Time  `json:"marked_at"`
}

// View is a read-only snapshot for UI rendering.
type View struct {
	SessionID  string                 `json:"session_id"`
	ClassID    string                 `json:"class_id"`
	Date       string                 `json:"date"`
	Status     Status                 `json:"status"`
	PerStudent map[string]StudentMark `json:"per_student"`
	Stats      Stats                  `json:"stats"`
}

// Session is one attendance-taking occasion for a class on a date. All state
// behind the mutex is owned exclusively by this struct; photo extraction
// happens outside the lock and only the cheap merge step holds it.
type Session struct {
	ID      string
	ClassID string
	Date    string // YYYY-MM-DD

	mu         sync.Mutex
	status     Status
	roster     []string // enrolled student IDs, fixed at session start
	rosterSet  map[string]bool
	perStudent map[string]StudentMark

	photosProcessed    int
	facesDetectedTotal int

	// Filled exactly once by Submit; later Submit calls return these.
	records []Record
	stats   Stats
}

// New creates an Open session over a fixed roster of student IDs.
func New(id, classID, date string, roster []string) *Session {
	set := make(map[string]bool, len(roster))
	for _, sid := range roster {
		set[sid] = true
	}
	return &Session{
		ID:         id,
		ClassID:    classID,
		Date:       date,
		status:     StatusOpen,
		roster:     append([]string(nil), roster...),
		rosterSet:  set,
		perStudent: make(map[string]StudentMark),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Merge folds one photo's recognition result into the session. Merge policy:
// a first AI match marks the student Present; a repeat AI match keeps the
// higher confidence; an existing manual mark is never overwritten by AI.
func (s *Session) Merge(result *recognition.Result) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusOpen && s.status != StatusReviewing {
		return Stats{}, ErrInvalidStateTransition
	}
	s.status = StatusReviewing

	// Photos are merged in submission order; the merge order, not the
	// caller-supplied index, numbers the photo within the session.
	photoIndex := s.photosProcessed
	s.photosProcessed++
	s.facesDetectedTotal += result.FacesDetected

	for _, m := range result.Matches {
		if !s.rosterSet[m.StudentID] {
			continue
		}
		existing, seen := s.perStudent[m.StudentID]
		switch {
		case !seen:
			s.perStudent[m.StudentID] = StudentMark{
				Status:         Present,
				Method:         MethodAI,
				Confidence:     m.Confidence,
				LastPhotoIndex: photoIndex,
			}
		case existing.Method == MethodManual:
			// Manual intent wins for the rest of the session.
		case m.Confidence > existing.Confidence:
			existing.Confidence = m.Confidence
			existing.LastPhotoIndex = photoIndex
			s.perStudent[m.StudentID] = existing
		}
	}

	return s.statsLocked(), nil
}

// SetMark is the manual override entry point. It always sets method=manual,
// clears any AI confidence, and overwrites whatever mark existed. It is the
// only way to mark a student Absent after AI saw them, and the only way to
// add a student AI failed to recognize.
func (s *Session) SetMark(studentID string, status MarkStatus) (StudentMark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusOpen && s.status != StatusReviewing {
		return StudentMark{}, ErrInvalidStateTransition
	}
	if !s.rosterSet[studentID] {
		return StudentMark{}, ErrStudentNotEnrolled
	}
	s.status = StatusReviewing

	mark := StudentMark{Status: status, Method: MethodManual}
	if prev, ok := s.perStudent[studentID]; ok {
		mark.LastPhotoIndex = prev.LastPhotoIndex
	}
	s.perStudent[studentID] = mark
	return mark, nil
}

// Snapshot returns a read-only copy of the session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	per := make(map[string]StudentMark, len(s.perStudent))
	for id, mark := range s.perStudent {
		per[id] = mark
	}
	return View{
		SessionID:  s.ID,
		ClassID:    s.ClassID,
		Date:       s.Date,
		Status:     s.status,
		PerStudent: per,
		Stats:      s.statsLocked(),
	}
}

// Submit finalizes the session. The perStudent map is snapshotted, filled
// out with implicit absentees (roster minus touched students), and converted
// into records ordered by student ID. A second call performs no mutation and
// returns the original records together with ErrAlreadySubmitted.
func (s *Session) Submit(newID func() string, now time.Time) ([]Record, Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusSubmitted, StatusClosed:
		return s.records, s.stats, ErrAlreadySubmitted
	case StatusOpen, StatusReviewing:
		// fall through
	default:
		return nil, Stats{}, ErrInvalidStateTransition
	}

	records := make([]Record, 0, len(s.roster))
	for _, studentID := range s.roster {
		mark, touched := s.perStudent[studentID]
		if !touched {
			mark = StudentMark{Status: Absent, Method: MethodImplicit}
		}
		records = append(records, Record{
			ID:         newID(),
			SessionID:  s.ID,
			ClassID:    s.ClassID,
			StudentID:  studentID,
			Date:       s.Date,
			Status:     mark.Status,
			Method:     mark.Method,
			Confidence: mark.Confidence,
			MarkedAt:   now,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StudentID < records[j].StudentID })

	s.status = StatusSubmitted
	s.records = records
	s.stats = s.statsLocked()
	return records, s.stats, nil
}

// Close moves a submitted session to its archival state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusSubmitted {
		return ErrInvalidStateTransition
	}
	s.status = StatusClosed
	return nil
}

// statsLocked computes current statistics. Caller must hold s.mu.
func (s *Session) statsLocked() Stats {
	recognized := 0
	for _, mark := range s.perStudent {
		if mark.Status == Present && mark.Method == MethodAI {
			recognized++
		}
	}
	stats := Stats{
		PhotosProcessed:    s.photosProcessed,
		FacesDetectedTotal: s.facesDetectedTotal,
		StudentsRecognized: recognized,
		EnrolledCount:      len(s.roster),
	}
	if stats.EnrolledCount > 0 {
		stats.SuccessRate = float64(recognized) / float64(stats.EnrolledCount)
	}
	return stats
}
