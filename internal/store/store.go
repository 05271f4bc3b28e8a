// ABOUTME: Data types and sentinel errors shared by the portal stores
// ABOUTME: Course, Enrollment, User and Grade records

package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")

	ErrCourseClosed    = errors.New("course is closed")
	ErrCourseFull      = errors.New("course is full")
	ErrAlreadyEnrolled = errors.New("already enrolled")
	ErrNotEnrolled     = errors.New("not enrolled")
	ErrAlreadyClaimed  = errors.New("course already claimed")
	ErrUsernameTaken   = errors.New("username already taken")

	// ErrUnavailable wraps failures to reach the database.
	ErrUnavailable = errors.New("store unavailable")
)

// Course is a catalog entry. FacultyID is empty until the course is claimed.
type Course struct {
	ID              string
	Name            string
	Capacity        int
	Enrolled        int
	Open            bool
	FacultyID       string
	FacultyUsername string
}

// Claimed reports whether a faculty member owns the course.
func (c *Course) Claimed() bool {
	return c.FacultyID != ""
}

// Enrollment links a student to a course.
type Enrollment struct {
	StudentID  string
	CourseID   string
	CourseName string
	EnrolledAt time.Time
}

// User is an identity-service account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Grade is the single grade record for a (student, course) pair.
type Grade struct {
	ID        string
	StudentID string
	CourseID  string
	Grade     string
	Semester  string
	Remarks   string
	FacultyID string
	PostedAt  time.Time
}
