// Package store persists portal state in SQL databases.
//
// Three stores are kept apart, each opened on its own database:
//
//   - UserStore: identity accounts and password hashes.
//   - CourseStore: courses, faculty claims and enrollments. The enrollment
//     counter and the enrollment rows change together in one transaction.
//   - GradeStore: grade records keyed by (student, course).
//
// Open accepts the pure-Go SQLite driver ("sqlite"), the cgo SQLite driver
// ("sqlite3"), and PostgreSQL through pgx ("pgx") or lib/pq ("postgres").
// Row locks use BEGIN IMMEDIATE on SQLite and SELECT ... FOR UPDATE on
// PostgreSQL.
//
// Connection failures are wrapped with ErrUnavailable so callers can report
// them separately from domain errors.
package store
