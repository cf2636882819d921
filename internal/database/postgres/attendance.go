package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/classlens/classlens/internal/constants"
	"github.com/classlens/classlens/internal/database"
	"github.com/classlens/classlens/internal/session"
)

// AttendanceRepository persists submitted attendance sessions.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// SaveSubmission writes the session summary and all records in one
// transaction. The session_id primary key makes a second write for the same
// session fail, which backs the submit-once guarantee at the storage level.
func (r *AttendanceRepository) SaveSubmission(ctx context.Context, summary database.StoredSessionSummary, records []session.Record) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions
			(session_id, class_id, session_date, photos_processed,
			 faces_detected_total, students_recognized, enrolled_count,
			 submitted_at, archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
	`, summary.SessionID, summary.ClassID, summary.Date, summary.PhotosProcessed,
		summary.FacesDetectedTotal, summary.StudentsRecognized, summary.EnrolledCount,
		summary.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert session summary: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_records
			(id, session_id, class_id, student_id, record_date, status, method, confidence, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx, rec.ID, rec.SessionID, rec.ClassID,
			rec.StudentID, rec.Date, string(rec.Status), string(rec.Method),
			rec.Confidence, rec.MarkedAt)
		if err != nil {
			return fmt.Errorf("insert record for student %s: %w", rec.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

// ArchiveSession flips a submitted session to its read-only archived state.
func (r *AttendanceRepository) ArchiveSession(ctx context.Context, sessionID string) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE attendance_sessions SET archived = TRUE WHERE session_id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive session rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// GetSessionSummary returns the summary for a submitted session.
func (r *AttendanceRepository) GetSessionSummary(ctx context.Context, sessionID string) (*database.StoredSessionSummary, error) {
	var s database.StoredSessionSummary
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, class_id, session_date::text, photos_processed,
		       faces_detected_total, students_recognized, enrolled_count,
		       submitted_at, archived
		FROM attendance_sessions
		WHERE session_id = $1
	`, sessionID).Scan(
		&s.SessionID, &s.ClassID, &s.Date, &s.PhotosProcessed,
		&s.FacesDetectedTotal, &s.StudentsRecognized, &s.EnrolledCount,
		&s.SubmittedAt, &s.Archived,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session summary: %w", err)
	}
	return &s, nil
}

const recordColumns = "id, session_id, class_id, student_id, record_date::text, status, method, confidence, marked_at"

// scanRecords reads attendance record rows.
func scanRecords(rows *sql.Rows) ([]session.Record, error) {
	var out []session.Record
	for rows.Next() {
		var rec session.Record
		var status, method string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ClassID, &rec.StudentID,
			&rec.Date, &status, &method, &rec.Confidence, &rec.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Status = session.MarkStatus(status)
		rec.Method = session.Method(method)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// GetRecordsBySession returns a session's records ordered by student ID.
func (r *AttendanceRepository) GetRecordsBySession(ctx context.Context, sessionID string) ([]session.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY student_id
	`, recordColumns)

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetRecordsByStudent returns a student's attendance history, newest first.
func (r *AttendanceRepository) GetRecordsByStudent(ctx context.Context, studentID string, limit int) ([]session.Record, error) {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY marked_at DESC
		LIMIT $2
	`, recordColumns)

	rows, err := r.pool.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query student records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}
