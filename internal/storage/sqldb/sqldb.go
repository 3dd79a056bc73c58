// Package sqldb implements storage.Storage on top of Go's standard
// database/sql package. It holds every query the relational backends
// share; the sqlite and postgres packages only open the driver and hand
// over a Dialect describing how their SQL differs.
//
// Queries are written once with "?" placeholders and rewritten by the
// dialect (Postgres wants $1, $2, ...).
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/types"
)

var _ storage.Storage = (*Store)(nil)

// Dialect captures what differs between SQL databases.
type Dialect struct {
	// Name is used in error messages ("sqlite", "postgres").
	Name string

	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder func(n int) string

	// Schema is executed statement by statement on startup. Every
	// statement must be idempotent (CREATE ... IF NOT EXISTS).
	Schema []string

	// IsUnique reports whether a driver error is a UNIQUE or PRIMARY KEY
	// violation. The pre-checks in CreateCourse and Enrol can race with a
	// concurrent writer; the constraint is what finally decides.
	IsUnique func(err error) bool
}

// QuestionMark is the placeholder style of SQLite and MySQL.
func QuestionMark(int) string { return "?" }

// Dollar is the Postgres placeholder style.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Store is the database/sql implementation of storage.Storage.
// A single *sql.DB is a connection pool, safe for concurrent use.
type Store struct {
	Db      *sql.DB
	dialect Dialect
}

// New applies the dialect's schema and returns a ready-to-use *Store.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if dialect.Placeholder == nil {
		dialect.Placeholder = QuestionMark
	}
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: apply schema: %w", dialect.Name, err)
		}
	}
	return &Store{Db: db, dialect: dialect}, nil
}

// rebind rewrites "?" markers into the dialect's placeholder style.
func (s *Store) rebind(query string) string {
	if s.dialect.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// writeErr classifies a failed write: a uniqueness violation becomes
// storage.ErrDuplicate, anything else is unavailable.
func (s *Store) writeErr(op string, err error) error {
	if s.dialect.IsUnique != nil && s.dialect.IsUnique(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	}
	return storage.Unavailable(op, err)
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx, so lookups can run
// inside or outside a transaction.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const studentColumns = "id, first_name, last_name, row_version"

// scanner is the Scan half of *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanStudent reads the row version through a plain *[]byte so that
// database/sql copies the driver's buffer before we keep it.
func scanStudent(row scanner) (types.Student, error) {
	var (
		st      types.Student
		version []byte
	)
	if err := row.Scan(&st.ID, &st.FirstName, &st.LastName, &version); err != nil {
		return types.Student{}, err
	}
	st.RowVersion = version
	return st, nil
}

func (s *Store) findStudent(ctx context.Context, q rowQuerier, id string) (*types.Student, error) {
	st, err := scanStudent(q.QueryRowContext(ctx,
		s.rebind("SELECT "+studentColumns+" FROM students WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) exists(ctx context.Context, q rowQuerier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.rebind(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FindByID fetches exactly one student row matched by id.
// A missing row is not an error: it returns (nil, nil).
// ─────────────────────────────────────────────────────────────────────────────
func (s *Store) FindByID(ctx context.Context, id string) (*types.Student, error) {
	st, err := s.findStudent(ctx, s.Db, id)
	if err != nil {
		return nil, storage.Unavailable("FindByID", err)
	}
	return st, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FindAll returns all students in insertion order. The seq column exists
// only for this ordering: the pager's stable sort relies on it to break
// ties between equal last names.
// ─────────────────────────────────────────────────────────────────────────────
func (s *Store) FindAll(ctx context.Context) ([]types.Student, error) {
	rows, err := s.Db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY seq")
	if err != nil {
		return nil, storage.Unavailable("FindAll", err)
	}
	defer rows.Close() // must close rows to free the DB connection

	students := make([]types.Student, 0)
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, storage.Unavailable("FindAll: scan row", err)
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("FindAll: rows iteration", err)
	}
	return students, nil
}

func (s *Store) Insert(ctx context.Context, student types.Student) (types.Student, error) {
	student.ID = storage.NewID()
	student.RowVersion = storage.NewRowVersion()

	_, err := s.Db.ExecContext(ctx,
		s.rebind("INSERT INTO students (id, first_name, last_name, row_version) VALUES (?, ?, ?, ?)"),
		student.ID, student.FirstName, student.LastName, []byte(student.RowVersion),
	)
	if err != nil {
		return types.Student{}, storage.Unavailable("Insert", err)
	}
	return student, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CompareAndSwapUpdate is the optimistic lock.
//
// The WHERE clause carries the expected row version, so the database
// itself performs the check and the write as one atomic statement:
//
//	UPDATE students SET ... WHERE id = ? AND row_version = ?
//
// One affected row means we won. Zero means the row changed (or vanished)
// since the caller read it; we then re-read it inside the same
// transaction so the conflict report shows the values that beat us.
// ─────────────────────────────────────────────────────────────────────────────
func (s *Store) CompareAndSwapUpdate(ctx context.Context, id string, expected types.RowVersion,
	firstName, lastName string) (storage.SwapResult, error) {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return storage.SwapResult{}, storage.Unavailable("CompareAndSwapUpdate: begin", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after Commit

	next := storage.NewRowVersion()
	res, err := tx.ExecContext(ctx,
		s.rebind("UPDATE students SET first_name = ?, last_name = ?, row_version = ? WHERE id = ? AND row_version = ?"),
		firstName, lastName, []byte(next), id, []byte(expected),
	)
	if err != nil {
		return storage.SwapResult{}, storage.Unavailable("CompareAndSwapUpdate: exec", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.SwapResult{}, storage.Unavailable("CompareAndSwapUpdate: rows affected", err)
	}

	if affected == 0 {
		latest, err := s.findStudent(ctx, tx, id)
		if err != nil {
			return storage.SwapResult{}, storage.Unavailable("CompareAndSwapUpdate: reload", err)
		}
		if err := tx.Commit(); err != nil {
			return storage.SwapResult{}, storage.Unavailable("CompareAndSwapUpdate: commit", err)
		}
		return storage.SwapResult{Current: latest}, nil
	}

	if err := tx.Commit(); err != nil {
		return storage.SwapResult{}, storage.Unavailable("CompareAndSwapUpdate: commit", err)
	}
	return storage.SwapResult{
		Swapped: true,
		Current: &types.Student{ID: id, FirstName: firstName, LastName: lastName, RowVersion: next},
	}, nil
}

// Delete removes the student and its enrolments in one transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("Delete: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM enrolments WHERE student_id = ?"), id); err != nil {
		return storage.Unavailable("Delete: enrolments", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM students WHERE id = ?"), id)
	if err != nil {
		return storage.Unavailable("Delete: exec", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable("Delete: rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete student %s: %w", id, storage.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable("Delete: commit", err)
	}
	return nil
}

func (s *Store) CreateCourse(ctx context.Context, course types.Course) (types.Course, error) {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return types.Course{}, storage.Unavailable("CreateCourse: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	taken, err := s.exists(ctx, tx, "SELECT 1 FROM courses WHERE code = ?", course.Code)
	if err != nil {
		return types.Course{}, storage.Unavailable("CreateCourse: lookup", err)
	}
	if taken {
		return types.Course{}, fmt.Errorf("course code %q: %w", course.Code, storage.ErrDuplicate)
	}

	course.ID = storage.NewID()
	if _, err := tx.ExecContext(ctx,
		s.rebind("INSERT INTO courses (id, code, name, description, credits) VALUES (?, ?, ?, ?, ?)"),
		course.ID, course.Code, course.Name, course.Description, course.Credits,
	); err != nil {
		return types.Course{}, s.writeErr("CreateCourse: exec", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Course{}, s.writeErr("CreateCourse: commit", err)
	}
	return course, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]types.Course, error) {
	rows, err := s.Db.QueryContext(ctx,
		"SELECT id, code, name, description, credits FROM courses ORDER BY code")
	if err != nil {
		return nil, storage.Unavailable("ListCourses", err)
	}
	return scanCourses("ListCourses", rows)
}

func (s *Store) Enrol(ctx context.Context, studentID, courseID string) (types.Enrolment, error) {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return types.Enrolment{}, storage.Unavailable("Enrol: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	checks := []struct {
		query string
		arg   []any
		miss  error
	}{
		{"SELECT 1 FROM students WHERE id = ?", []any{studentID},
			fmt.Errorf("student %s: %w", studentID, storage.ErrNotFound)},
		{"SELECT 1 FROM courses WHERE id = ?", []any{courseID},
			fmt.Errorf("course %s: %w", courseID, storage.ErrNotFound)},
	}
	for _, c := range checks {
		ok, err := s.exists(ctx, tx, c.query, c.arg...)
		if err != nil {
			return types.Enrolment{}, storage.Unavailable("Enrol: lookup", err)
		}
		if !ok {
			return types.Enrolment{}, c.miss
		}
	}

	dup, err := s.exists(ctx, tx,
		"SELECT 1 FROM enrolments WHERE student_id = ? AND course_id = ?", studentID, courseID)
	if err != nil {
		return types.Enrolment{}, storage.Unavailable("Enrol: lookup", err)
	}
	if dup {
		return types.Enrolment{}, fmt.Errorf("enrolment %s/%s: %w", studentID, courseID, storage.ErrDuplicate)
	}

	e := types.Enrolment{ID: storage.NewID(), StudentID: studentID, CourseID: courseID}
	if _, err := tx.ExecContext(ctx,
		s.rebind("INSERT INTO enrolments (id, student_id, course_id) VALUES (?, ?, ?)"),
		e.ID, e.StudentID, e.CourseID,
	); err != nil {
		return types.Enrolment{}, s.writeErr("Enrol: exec", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Enrolment{}, s.writeErr("Enrol: commit", err)
	}
	return e, nil
}

func (s *Store) StudentCourses(ctx context.Context, studentID string) ([]types.Course, error) {
	ok, err := s.exists(ctx, s.Db, "SELECT 1 FROM students WHERE id = ?", studentID)
	if err != nil {
		return nil, storage.Unavailable("StudentCourses: lookup", err)
	}
	if !ok {
		return nil, fmt.Errorf("student %s: %w", studentID, storage.ErrNotFound)
	}

	rows, err := s.Db.QueryContext(ctx, s.rebind(`
		SELECT c.id, c.code, c.name, c.description, c.credits
		FROM courses c
		JOIN enrolments e ON e.course_id = c.id
		WHERE e.student_id = ?
		ORDER BY c.code`), studentID)
	if err != nil {
		return nil, storage.Unavailable("StudentCourses", err)
	}
	return scanCourses("StudentCourses", rows)
}

func scanCourses(op string, rows *sql.Rows) ([]types.Course, error) {
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		var c types.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Credits); err != nil {
			return nil, storage.Unavailable(op+": scan row", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(op+": rows iteration", err)
	}
	return courses, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.Db == nil {
		return nil
	}
	return s.Db.Close()
}
