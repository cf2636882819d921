package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/classlens/classlens/internal/database"
)

// EnrollmentRepository provides PostgreSQL-backed enrollment storage.
// Embeddings live in a pgvector column; version and dimension checks belong
// to the roster layer, the repository stores what it is given.
type EnrollmentRepository struct {
	pool *Pool
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository.
func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

const enrollmentColumns = "id, student_id, class_id, version, embedding, active, created_at"

// scanEnrollments reads enrollment rows into stored structs.
func scanEnrollments(rows *sql.Rows) ([]database.StoredEnrollment, error) {
	var out []database.StoredEnrollment
	for rows.Next() {
		var e database.StoredEnrollment
		var vec pgvector.Vector
		if err := rows.Scan(&e.ID, &e.StudentID, &e.ClassID, &e.Version, &vec, &e.Active, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Embedding = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

// GetActiveByClass retrieves all active enrollments for a class, ordered by
// student ID.
func (r *EnrollmentRepository) GetActiveByClass(ctx context.Context, classID string) ([]database.StoredEnrollment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM enrollments
		WHERE class_id = $1 AND active
		ORDER BY student_id
	`, enrollmentColumns)

	rows, err := r.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query class enrollments: %w", err)
	}
	defer rows.Close()

	return scanEnrollments(rows)
}

// GetByStudent retrieves all enrollments for a student, active first.
func (r *EnrollmentRepository) GetByStudent(ctx context.Context, studentID string) ([]database.StoredEnrollment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM enrollments
		WHERE student_id = $1
		ORDER BY active DESC, created_at DESC
	`, enrollmentColumns)

	rows, err := r.pool.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("query student enrollments: %w", err)
	}
	defer rows.Close()

	return scanEnrollments(rows)
}

// GetAllActive retrieves every active enrollment, for index building.
func (r *EnrollmentRepository) GetAllActive(ctx context.Context) ([]database.StoredEnrollment, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM enrollments
		WHERE active
		ORDER BY id
	`, enrollmentColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active enrollments: %w", err)
	}
	defer rows.Close()

	return scanEnrollments(rows)
}

// CountActive returns the number of active enrollments.
func (r *EnrollmentRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM enrollments WHERE active").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// SaveEnrollment stores a new enrollment and deactivates any prior active
// enrollment for the same student and version, in one transaction.
func (r *EnrollmentRepository) SaveEnrollment(ctx context.Context, enrollment database.StoredEnrollment) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE enrollments SET active = FALSE
		WHERE student_id = $1 AND version = $2 AND active
	`, enrollment.StudentID, enrollment.Version)
	if err != nil {
		return 0, fmt.Errorf("deactivate prior enrollment: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO enrollments (student_id, class_id, version, embedding, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING id
	`, enrollment.StudentID, enrollment.ClassID, enrollment.Version,
		pgvector.NewVector(enrollment.Embedding), enrollment.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enrollment: %w", err)
	}
	return id, nil
}

// DeactivateEnrollment retires a student's active enrollment for a version.
func (r *EnrollmentRepository) DeactivateEnrollment(ctx context.Context, studentID, version string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE enrollments SET active = FALSE
		WHERE student_id = $1 AND version = $2 AND active
	`, studentID, version)
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	return nil
}
