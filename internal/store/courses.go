// ABOUTME: Catalog and enrollment persistence on a single database
// ABOUTME: Enroll, drop and claim each run as one transaction holding the course row

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var courseSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		course_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		capacity INTEGER NOT NULL CHECK (capacity > 0),
		enrolled INTEGER NOT NULL DEFAULT 0 CHECK (enrolled >= 0 AND enrolled <= capacity),
		is_open BOOLEAN NOT NULL DEFAULT TRUE,
		faculty_id TEXT,
		faculty_username TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		student_id TEXT NOT NULL,
		course_id TEXT NOT NULL REFERENCES courses(course_id),
		enrolled_at TEXT NOT NULL,
		PRIMARY KEY (student_id, course_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_student
		ON enrollments(student_id, enrolled_at)`,
}

// CourseStore owns courses, claims and enrollments.
type CourseStore struct {
	db *DB
}

// NewCourseStore creates the catalog tables if needed.
func NewCourseStore(ctx context.Context, db *DB) (*CourseStore, error) {
	if err := db.applySchema(ctx, courseSchema); err != nil {
		return nil, err
	}
	return &CourseStore{db: db}, nil
}

// Ping reports whether the backing database answers.
func (s *CourseStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const courseColumns = `course_id, name, capacity, enrolled, is_open, faculty_id, faculty_username`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*Course, error) {
	var (
		c                  Course
		facultyID, faculty sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Capacity, &c.Enrolled, &c.Open, &facultyID, &faculty); err != nil {
		return nil, err
	}
	c.FacultyID = facultyID.String
	c.FacultyUsername = faculty.String
	return &c, nil
}

// GetCourse retrieves a course by ID.
func (s *CourseStore) GetCourse(ctx context.Context, id string) (*Course, error) {
	row := s.db.db.QueryRowContext(ctx, s.db.rebind(`SELECT `+courseColumns+` FROM courses WHERE course_id = ?`), id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting course %s: %w", id, classify(err))
	}
	return c, nil
}

// ListCourses returns every course ordered by ID.
func (s *CourseStore) ListCourses(ctx context.Context) ([]*Course, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY course_id`)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", classify(err))
	}
	defer rows.Close()

	var courses []*Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing courses: %w", classify(err))
	}
	return courses, nil
}

// SeedCourses inserts courses that do not exist yet and returns how many
// were added. Existing rows are left untouched.
func (s *CourseStore) SeedCourses(ctx context.Context, courses []Course) (int, error) {
	added := 0
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		query := s.db.rebind(`
			INSERT INTO courses (` + courseColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (course_id) DO NOTHING
		`)
		for _, c := range courses {
			res, err := tx.ExecContext(ctx, query,
				c.ID, c.Name, c.Capacity, c.Enrolled, c.Open,
				nullString(c.FacultyID), nullString(c.FacultyUsername),
			)
			if err != nil {
				return fmt.Errorf("seeding course %s: %w", c.ID, classify(err))
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("seeding course %s: %w", c.ID, err)
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ClaimCourse assigns the course to a faculty member. A course can be claimed
// once; every later claim fails with ErrAlreadyClaimed.
func (s *CourseStore) ClaimCourse(ctx context.Context, courseID, facultyID, facultyUsername string) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		var current sql.NullString
		err := tx.QueryRowContext(ctx,
			s.db.rebind(`SELECT faculty_id FROM courses WHERE course_id = ?`+s.db.forUpdate()),
			courseID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading claimant: %w", classify(err))
		}
		if current.Valid && current.String != "" {
			return ErrAlreadyClaimed
		}

		res, err := tx.ExecContext(ctx, s.db.rebind(`
			UPDATE courses SET faculty_id = ?, faculty_username = ?
			WHERE course_id = ? AND faculty_id IS NULL
		`), facultyID, facultyUsername, courseID)
		if err != nil {
			return fmt.Errorf("claiming course: %w", classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claiming course: %w", err)
		}
		if n == 0 {
			return ErrAlreadyClaimed
		}
		return nil
	})
}

// Enroll registers the student in the course. The capacity check, the
// counter increment and the row insert share one transaction.
func (s *CourseStore) Enroll(ctx context.Context, studentID, courseID string, at time.Time) (*Enrollment, error) {
	enrollment := &Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: at.UTC(),
	}

	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		var (
			capacity, enrolled int
			open               bool
		)
		err := tx.QueryRowContext(ctx,
			s.db.rebind(`SELECT name, capacity, enrolled, is_open FROM courses WHERE course_id = ?`+s.db.forUpdate()),
			courseID,
		).Scan(&enrollment.CourseName, &capacity, &enrolled, &open)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading course: %w", classify(err))
		}
		if !open {
			return ErrCourseClosed
		}

		exists, err := enrollmentExists(ctx, s.db, tx, studentID, courseID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyEnrolled
		}
		if enrolled >= capacity {
			return ErrCourseFull
		}

		if _, err := tx.ExecContext(ctx,
			s.db.rebind(`UPDATE courses SET enrolled = enrolled + 1 WHERE course_id = ?`),
			courseID,
		); err != nil {
			return fmt.Errorf("incrementing enrolled: %w", classify(err))
		}
		if _, err := tx.ExecContext(ctx,
			s.db.rebind(`INSERT INTO enrollments (student_id, course_id, enrolled_at) VALUES (?, ?, ?)`),
			studentID, courseID, formatTime(enrollment.EnrolledAt),
		); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyEnrolled
			}
			return fmt.Errorf("inserting enrollment: %w", classify(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Drop removes the student's enrollment and decrements the counter, never
// below zero.
func (s *CourseStore) Drop(ctx context.Context, studentID, courseID string) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			s.db.rebind(`SELECT course_id FROM courses WHERE course_id = ?`+s.db.forUpdate()),
			courseID,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// No course means no enrollment either.
			return ErrNotEnrolled
		}
		if err != nil {
			return fmt.Errorf("reading course: %w", classify(err))
		}

		res, err := tx.ExecContext(ctx,
			s.db.rebind(`DELETE FROM enrollments WHERE student_id = ? AND course_id = ?`),
			studentID, courseID,
		)
		if err != nil {
			return fmt.Errorf("deleting enrollment: %w", classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("deleting enrollment: %w", err)
		}
		if n == 0 {
			return ErrNotEnrolled
		}

		if _, err := tx.ExecContext(ctx,
			s.db.rebind(`UPDATE courses SET enrolled = enrolled - 1 WHERE course_id = ? AND enrolled > 0`),
			courseID,
		); err != nil {
			return fmt.Errorf("decrementing enrolled: %w", classify(err))
		}
		return nil
	})
}

// ListEnrollments returns the student's enrollments, most recent first.
func (s *CourseStore) ListEnrollments(ctx context.Context, studentID string) ([]*Enrollment, error) {
	rows, err := s.db.db.QueryContext(ctx, s.db.rebind(`
		SELECT e.student_id, e.course_id, c.name, e.enrolled_at
		FROM enrollments e
		JOIN courses c ON c.course_id = e.course_id
		WHERE e.student_id = ?
		ORDER BY e.enrolled_at DESC, e.course_id
	`), studentID)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", classify(err))
	}
	defer rows.Close()

	var out []*Enrollment
	for rows.Next() {
		var (
			e  Enrollment
			at string
		)
		if err := rows.Scan(&e.StudentID, &e.CourseID, &e.CourseName, &at); err != nil {
			return nil, fmt.Errorf("scanning enrollment: %w", err)
		}
		if e.EnrolledAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", classify(err))
	}
	return out, nil
}

// IsEnrolled reports whether the student currently holds an enrollment.
func (s *CourseStore) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	return enrollmentExists(ctx, s.db, s.db.db, studentID, courseID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func enrollmentExists(ctx context.Context, db *DB, q queryer, studentID, courseID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		db.rebind(`SELECT 1 FROM enrollments WHERE student_id = ? AND course_id = ?`),
		studentID, courseID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking enrollment: %w", classify(err))
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
