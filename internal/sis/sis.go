// Package sis reads class rosters from the school's existing student
// information system database. Access is strictly read-only; enrollment and
// attendance data live in our own PostgreSQL storage.
package sis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// ErrStudentNotFound is returned when no student matches a lookup.
var ErrStudentNotFound = errors.New("student not found in SIS")

// Student is one roster entry as the SIS stores it.
type Student struct {
	ID      string
	Name    string
	ClassID string
}

// Pool manages a read-only MariaDB connection pool to the SIS.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new SIS connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("SIS DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SIS database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SIS database: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing SIS connection: %w", err)
		}
	}
	return nil
}

// ListClassStudents returns all students of a class, ordered by student ID.
func (p *Pool) ListClassStudents(ctx context.Context, classID string) ([]Student, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT student_id, name, class_id
		FROM students
		WHERE class_id = ?
		ORDER BY student_id
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("query class students: %w", err)
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.ClassID); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// GetStudent returns a single student by ID.
func (p *Pool) GetStudent(ctx context.Context, studentID string) (*Student, error) {
	var s Student
	err := p.db.QueryRowContext(ctx, `
		SELECT student_id, name, class_id
		FROM students
		WHERE student_id = ?
	`, studentID).Scan(&s.ID, &s.Name, &s.ClassID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &s, nil
}
