// ABOUTME: Grade records persisted by the grading service
// ABOUTME: One row per (student, course), replaced in place by upsert

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var gradeSchema = []string{
	`CREATE TABLE IF NOT EXISTS grades (
		grade_id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		grade TEXT NOT NULL,
		semester TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		faculty_id TEXT NOT NULL,
		date_posted TEXT NOT NULL,
		UNIQUE (student_id, course_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_grades_course ON grades(course_id, student_id)`,
}

// GradeStore owns grade records.
type GradeStore struct {
	db *DB
}

// NewGradeStore creates the grades table if needed.
func NewGradeStore(ctx context.Context, db *DB) (*GradeStore, error) {
	if err := db.applySchema(ctx, gradeSchema); err != nil {
		return nil, err
	}
	return &GradeStore{db: db}, nil
}

func (s *GradeStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// UpsertGrade writes g for its (student, course) pair. An existing row keeps
// its grade_id; g.ID is only used for a first insert. It returns the stored
// row and whether an existing grade was replaced.
func (s *GradeStore) UpsertGrade(ctx context.Context, g *Grade) (*Grade, bool, error) {
	stored := *g
	var updated bool

	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			s.db.rebind(`SELECT grade_id FROM grades WHERE student_id = ? AND course_id = ?`),
			g.StudentID, g.CourseID,
		).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("reading grade: %w", classify(err))
		default:
			updated = true
		}

		return tx.QueryRowContext(ctx, s.db.rebind(`
			INSERT INTO grades (grade_id, student_id, course_id, grade, semester, remarks, faculty_id, date_posted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (student_id, course_id) DO UPDATE SET
				grade = excluded.grade,
				semester = excluded.semester,
				remarks = excluded.remarks,
				faculty_id = excluded.faculty_id,
				date_posted = excluded.date_posted
			RETURNING grade_id
		`), g.ID, g.StudentID, g.CourseID, g.Grade, g.Semester, g.Remarks, g.FacultyID, formatTime(g.PostedAt),
		).Scan(&stored.ID)
	})
	if err != nil {
		return nil, false, fmt.Errorf("upserting grade: %w", classify(err))
	}
	stored.PostedAt = g.PostedAt.UTC()
	return &stored, updated, nil
}

const gradeColumns = `grade_id, student_id, course_id, grade, semester, remarks, faculty_id, date_posted`

func scanGrade(row rowScanner) (*Grade, error) {
	var (
		g      Grade
		posted string
	)
	if err := row.Scan(&g.ID, &g.StudentID, &g.CourseID, &g.Grade, &g.Semester, &g.Remarks, &g.FacultyID, &posted); err != nil {
		return nil, err
	}
	t, err := parseTime(posted)
	if err != nil {
		return nil, err
	}
	g.PostedAt = t
	return &g, nil
}

// GetGrade returns the grade for the pair or ErrNotFound.
func (s *GradeStore) GetGrade(ctx context.Context, studentID, courseID string) (*Grade, error) {
	g, err := scanGrade(s.db.db.QueryRowContext(ctx,
		s.db.rebind(`SELECT `+gradeColumns+` FROM grades WHERE student_id = ? AND course_id = ?`),
		studentID, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting grade: %w", classify(err))
	}
	return g, nil
}

// ListGradesForStudent returns the student's grades, newest first.
func (s *GradeStore) ListGradesForStudent(ctx context.Context, studentID string) ([]*Grade, error) {
	return s.listGrades(ctx, `WHERE student_id = ? ORDER BY date_posted DESC, course_id`, studentID)
}

// ListGradesForCourse returns every grade in the course ordered by student.
func (s *GradeStore) ListGradesForCourse(ctx context.Context, courseID string) ([]*Grade, error) {
	return s.listGrades(ctx, `WHERE course_id = ? ORDER BY student_id`, courseID)
}

func (s *GradeStore) listGrades(ctx context.Context, where string, arg string) ([]*Grade, error) {
	rows, err := s.db.db.QueryContext(ctx, s.db.rebind(`SELECT `+gradeColumns+` FROM grades `+where), arg)
	if err != nil {
		return nil, fmt.Errorf("listing grades: %w", classify(err))
	}
	defer rows.Close()

	var grades []*Grade
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grade: %w", err)
		}
		grades = append(grades, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing grades: %w", classify(err))
	}
	return grades, nil
}
