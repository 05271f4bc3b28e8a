// ABOUTME: Course catalog: lookups, listing, seeding and the one-time faculty claim
// ABOUTME: Claims are terminal; there is no operation that releases a course

package catalog

import (
	"context"
	"log/slog"

	"github.com/2389/portal-core/internal/store"
)

// Store is the persistence the catalog needs.
type Store interface {
	GetCourse(ctx context.Context, id string) (*store.Course, error)
	ListCourses(ctx context.Context) ([]*store.Course, error)
	ClaimCourse(ctx context.Context, courseID, facultyID, facultyUsername string) error
	SeedCourses(ctx context.Context, courses []store.Course) (int, error)
}

// Catalog owns course metadata and claims.
type Catalog struct {
	store  Store
	logger *slog.Logger
}

// New creates a catalog over s.
func New(s Store, logger *slog.Logger) *Catalog {
	return &Catalog{store: s, logger: logger.With("component", "catalog")}
}

// Get returns the course or store.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*store.Course, error) {
	return c.store.GetCourse(ctx, id)
}

// List returns every course ordered by ID.
func (c *Catalog) List(ctx context.Context) ([]*store.Course, error) {
	return c.store.ListCourses(ctx)
}

// Claim records facultyID as the course owner. Fails with
// store.ErrAlreadyClaimed if anyone already owns it, including facultyID.
func (c *Catalog) Claim(ctx context.Context, courseID, facultyID, facultyUsername string) error {
	if err := c.store.ClaimCourse(ctx, courseID, facultyID, facultyUsername); err != nil {
		return err
	}
	c.logger.Info("course claimed", "course_id", courseID, "faculty_id", facultyID)
	return nil
}

// Seed inserts missing courses. Existing courses are not modified.
func (c *Catalog) Seed(ctx context.Context, courses []store.Course) error {
	added, err := c.store.SeedCourses(ctx, courses)
	if err != nil {
		return err
	}
	c.logger.Info("catalog seeded", "added", added, "configured", len(courses))
	return nil
}
