// Package storage defines the Storage interface, the contract that any
// database backend must satisfy to work with this application.
//
// WHY AN INTERFACE?
// ─────────────────
// Handlers (HTTP layer), the listing pager and the concurrent editor
// should not know or care which database they are talking to. By
// depending only on this interface:
//
//   - Switching databases = pick another driver in the config file.
//     SQLite, Postgres, Redis and an in-memory map all satisfy it.
//
//   - Writing tests = pass the memory backend or a small fake.
//     No real database needed for unit tests.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/online-campus/internal/types"
)

// Sentinel errors. Backends return (or wrap) these so callers can branch
// with errors.Is without knowing which database is underneath.
var (
	// ErrUnavailable means the data source could not serve the request:
	// the database is unreachable, or it rejected the operation for a
	// reason other than a version mismatch. Never retried by the core.
	ErrUnavailable = errors.New("data source unavailable")

	// ErrNotFound is returned by operations that require an existing row
	// (Delete, Enrol, StudentCourses).
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness rule would be broken:
	// a course code already in use, or a student already enrolled.
	ErrDuplicate = errors.New("already exists")
)

// UnavailableError carries the failing operation and the driver error.
// It matches ErrUnavailable under errors.Is.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return e.Op + ": " + ErrUnavailable.Error() + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps a driver error for op. A nil err stays nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// SwapResult is the answer to a compare-and-swap update.
//
// Swapped == true  → the write happened; Current is the updated record
// with its fresh row version.
// Swapped == false → the expected version no longer matched; Current is
// the latest persisted record, or nil if the student was deleted.
type SwapResult struct {
	Swapped bool
	Current *types.Student
}

// Finder looks students up.
type Finder interface {
	// FindByID returns (nil, nil) when no student has that id.
	FindByID(ctx context.Context, id string) (*types.Student, error)

	// FindAll returns every student in insertion order.
	// Returns an empty slice (not nil) if there are no students.
	FindAll(ctx context.Context) ([]types.Student, error)
}

// Swapper performs optimistic-concurrency writes.
type Swapper interface {
	// CompareAndSwapUpdate writes firstName and lastName only if the
	// stored row version still equals expected. The check and the write
	// are atomic; a successful write assigns a new row version.
	CompareAndSwapUpdate(ctx context.Context, id string, expected types.RowVersion,
		firstName, lastName string) (SwapResult, error)
}

// Catalog manages courses and enrolments.
type Catalog interface {
	// CreateCourse assigns an id. ErrDuplicate if the code is taken.
	CreateCourse(ctx context.Context, course types.Course) (types.Course, error)

	// ListCourses returns every course ordered by code.
	ListCourses(ctx context.Context) ([]types.Course, error)

	// Enrol registers a student in a course. ErrNotFound if either side
	// is missing, ErrDuplicate if the enrolment already exists.
	Enrol(ctx context.Context, studentID, courseID string) (types.Enrolment, error)

	// StudentCourses lists the courses a student is enrolled in, ordered
	// by code. ErrNotFound if the student does not exist.
	StudentCourses(ctx context.Context, studentID string) ([]types.Course, error)
}

// Storage is the full database contract.
// Any concrete type that implements ALL of these methods automatically
// satisfies this interface; Go does this implicitly.
type Storage interface {
	Finder
	Swapper
	Catalog

	// Insert stores a new student, assigning its id and initial row
	// version. Returns the stored record.
	Insert(ctx context.Context, student types.Student) (types.Student, error)

	// Delete removes a student and its enrolments.
	// Returns ErrNotFound if there was nothing to delete.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying connections.
	Close() error
}
