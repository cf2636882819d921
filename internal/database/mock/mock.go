// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/session"
)

// MockEnrollmentStore is an in-memory implementation of
// database.EnrollmentWriter.
type MockEnrollmentStore struct {
	mu          sync.RWMutex
	nextID      int64
	enrollments []database.StoredEnrollment

	// Error injection
	GetActiveByClassError error
	GetByStudentError     error
	GetAllActiveError     error
	SaveError             error
}

// NewMockEnrollmentStore creates an empty mock enrollment store.
func NewMockEnrollmentStore() *MockEnrollmentStore {
	return &MockEnrollmentStore{nextID: 1}
}

// AddEnrollment seeds the store directly, bypassing deactivation logic.
func (m *MockEnrollmentStore) AddEnrollment(e database.StoredEnrollment) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.nextID
	}
	if e.ID >= m.nextID {
		m.nextID = e.ID + 1
	}
	m.enrollments = append(m.enrollments, e)
	return e.ID
}

// GetActiveByClass retrieves active enrollments for a class ordered by student ID.
func (m *MockEnrollmentStore) GetActiveByClass(ctx context.Context, classID string) ([]database.StoredEnrollment, error) {
	if m.GetActiveByClassError != nil {
		return nil, m.GetActiveByClassError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.StoredEnrollment
	for _, e := range m.enrollments {
		if e.Active && e.ClassID == classID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// GetByStudent retrieves all enrollments for a student.
func (m *MockEnrollmentStore) GetByStudent(ctx context.Context, studentID string) ([]database.StoredEnrollment, error) {
	if m.GetByStudentError != nil {
		return nil, m.GetByStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.StoredEnrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAllActive retrieves every active enrollment.
func (m *MockEnrollmentStore) GetAllActive(ctx context.Context) ([]database.StoredEnrollment, error) {
	if m.GetAllActiveError != nil {
		return nil, m.GetAllActiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.StoredEnrollment
	for _, e := range m.enrollments {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

// CountActive returns the number of active enrollments.
func (m *MockEnrollmentStore) CountActive(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.enrollments {
		if e.Active {
			count++
		}
	}
	return count, nil
}

// SaveEnrollment stores a new enrollment and deactivates the prior active
// one for the same student and version.
func (m *MockEnrollmentStore) SaveEnrollment(ctx context.Context, enrollment database.StoredEnrollment) (int64, error) {
	if m.SaveError != nil {
		return 0, m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.enrollments {
		e := &m.enrollments[i]
		if e.StudentID == enrollment.StudentID && e.Version == enrollment.Version {
			e.Active = false
		}
	}
	enrollment.ID = m.nextID
	m.nextID++
	enrollment.Active = true
	m.enrollments = append(m.enrollments, enrollment)
	return enrollment.ID, nil
}

// DeactivateEnrollment retires a student's active enrollment for a version.
func (m *MockEnrollmentStore) DeactivateEnrollment(ctx context.Context, studentID, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.enrollments {
		e := &m.enrollments[i]
		if e.StudentID == studentID && e.Version == version {
			e.Active = false
		}
	}
	return nil
}

// MockAttendanceStore is an in-memory implementation of
// database.AttendanceWriter and database.AttendanceReader.
type MockAttendanceStore struct {
	mu        sync.RWMutex
	summaries map[string]database.StoredSessionSummary
	records   map[string][]session.Record

	// Error injection
	SaveError error
}

// NewMockAttendanceStore creates an empty mock attendance store.
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		summaries: make(map[string]database.StoredSessionSummary),
		records:   make(map[string][]session.Record),
	}
}

// SaveSubmission writes the summary and records; a session ID can only be
// submitted once.
func (m *MockAttendanceStore) SaveSubmission(ctx context.Context, summary database.StoredSessionSummary, records []session.Record) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.summaries[summary.SessionID]; exists {
		return fmt.Errorf("session %s already persisted", summary.SessionID)
	}
	m.summaries[summary.SessionID] = summary
	m.records[summary.SessionID] = append([]session.Record(nil), records...)
	return nil
}

// ArchiveSession flips the archived flag on a stored summary.
func (m *MockAttendanceStore) ArchiveSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary, ok := m.summaries[sessionID]
	if !ok {
		return database.ErrNotFound
	}
	summary.Archived = true
	m.summaries[sessionID] = summary
	return nil
}

// GetSessionSummary returns the stored summary for a session.
func (m *MockAttendanceStore) GetSessionSummary(ctx context.Context, sessionID string) (*database.StoredSessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary, ok := m.summaries[sessionID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &summary, nil
}

// GetRecordsBySession returns a session's records ordered by student ID.
func (m *MockAttendanceStore) GetRecordsBySession(ctx context.Context, sessionID string) ([]session.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, ok := m.records[sessionID]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := append([]session.Record(nil), records...)
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// GetRecordsByStudent returns a student's attendance history.
func (m *MockAttendanceStore) GetRecordsByStudent(ctx context.Context, studentID string, limit int) ([]session.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []session.Record
	for _, records := range m.records {
		for _, r := range records {
			if r.StudentID == studentID {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.After(out[j].MarkedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SubmissionCount returns how many sessions have been persisted.
func (m *MockAttendanceStore) SubmissionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.summaries)
}
