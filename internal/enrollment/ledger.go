// ABOUTME: Enrollment ledger: capacity-bounded enroll, drop and per-student listing
// ABOUTME: Role checks happen here; atomicity is delegated to the course store transaction

package enrollment

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/store"
)

// Store is the persistence the ledger needs. Enroll and Drop must each run
// as one transaction holding the course row.
type Store interface {
	Enroll(ctx context.Context, studentID, courseID string, at time.Time) (*store.Enrollment, error)
	Drop(ctx context.Context, studentID, courseID string) error
	ListEnrollments(ctx context.Context, studentID string) ([]*store.Enrollment, error)
}

// Ledger owns the student to course relation.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// New creates a ledger over s.
func New(s Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  s,
		now:    time.Now,
		logger: logger.With("component", "enrollment"),
	}
}

// Enroll registers the calling student in courseID.
func (l *Ledger) Enroll(ctx context.Context, caller *auth.AuthContext, courseID string) (*store.Enrollment, error) {
	if err := auth.Require(caller, auth.RoleStudent); err != nil {
		return nil, err
	}
	e, err := l.store.Enroll(ctx, caller.UserID, courseID, l.now())
	if err != nil {
		return nil, err
	}
	l.logger.Info("student enrolled", "student_id", caller.UserID, "course_id", courseID)
	return e, nil
}

// Drop removes the calling student from courseID.
func (l *Ledger) Drop(ctx context.Context, caller *auth.AuthContext, courseID string) error {
	if err := auth.Require(caller, auth.RoleStudent); err != nil {
		return err
	}
	if err := l.store.Drop(ctx, caller.UserID, courseID); err != nil {
		return err
	}
	l.logger.Info("student dropped", "student_id", caller.UserID, "course_id", courseID)
	return nil
}

// ListForStudent returns the student's enrollments, most recent first.
func (l *Ledger) ListForStudent(ctx context.Context, studentID string) ([]*store.Enrollment, error) {
	return l.store.ListEnrollments(ctx, studentID)
}
