// Package memory provides an in-process implementation of
// storage.Storage. Data lives only as long as the process; it backs the
// "memory" driver and most of the unit tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/types"
)

var _ storage.Storage = (*Store)(nil)

// Store keeps every record behind one mutex. The compare-and-swap check
// and the write happen under the same lock, which is what makes
// CompareAndSwapUpdate atomic here.
type Store struct {
	mu sync.RWMutex

	order    []string // student ids in insertion order
	students map[string]types.Student

	courses    map[string]types.Course
	enrolments map[string][]types.Enrolment // by student id
}

// New returns an empty store.
func New() *Store {
	return &Store{
		students:   make(map[string]types.Student),
		courses:    make(map[string]types.Course),
		enrolments: make(map[string][]types.Enrolment),
	}
}

func (s *Store) FindByID(_ context.Context, id string) (*types.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.students[id]
	if !ok {
		return nil, nil
	}
	st = clone(st)
	return &st, nil
}

func (s *Store) FindAll(_ context.Context) ([]types.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Student, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.students[id]))
	}
	return out, nil
}

func (s *Store) Insert(_ context.Context, student types.Student) (types.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	student.ID = storage.NewID()
	student.RowVersion = storage.NewRowVersion()
	s.students[student.ID] = student
	s.order = append(s.order, student.ID)
	return clone(student), nil
}

func (s *Store) CompareAndSwapUpdate(_ context.Context, id string, expected types.RowVersion,
	firstName, lastName string) (storage.SwapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.students[id]
	if !ok {
		return storage.SwapResult{}, nil
	}
	if !current.RowVersion.Equal(expected) {
		latest := clone(current)
		return storage.SwapResult{Current: &latest}, nil
	}

	current.FirstName = firstName
	current.LastName = lastName
	current.RowVersion = storage.NewRowVersion()
	s.students[id] = current

	updated := clone(current)
	return storage.SwapResult{Swapped: true, Current: &updated}, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[id]; !ok {
		return fmt.Errorf("delete student %s: %w", id, storage.ErrNotFound)
	}
	delete(s.students, id)
	delete(s.enrolments, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

func (s *Store) CreateCourse(_ context.Context, course types.Course) (types.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.courses {
		if c.Code == course.Code {
			return types.Course{}, fmt.Errorf("course code %q: %w", course.Code, storage.ErrDuplicate)
		}
	}
	course.ID = storage.NewID()
	s.courses[course.ID] = course
	return course, nil
}

func (s *Store) ListCourses(_ context.Context) ([]types.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sortByCode(out)
	return out, nil
}

func (s *Store) Enrol(_ context.Context, studentID, courseID string) (types.Enrolment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[studentID]; !ok {
		return types.Enrolment{}, fmt.Errorf("student %s: %w", studentID, storage.ErrNotFound)
	}
	if _, ok := s.courses[courseID]; !ok {
		return types.Enrolment{}, fmt.Errorf("course %s: %w", courseID, storage.ErrNotFound)
	}
	for _, e := range s.enrolments[studentID] {
		if e.CourseID == courseID {
			return types.Enrolment{}, fmt.Errorf("enrolment %s/%s: %w", studentID, courseID, storage.ErrDuplicate)
		}
	}

	e := types.Enrolment{ID: storage.NewID(), StudentID: studentID, CourseID: courseID}
	s.enrolments[studentID] = append(s.enrolments[studentID], e)
	return e, nil
}

func (s *Store) StudentCourses(_ context.Context, studentID string) ([]types.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.students[studentID]; !ok {
		return nil, fmt.Errorf("student %s: %w", studentID, storage.ErrNotFound)
	}
	out := make([]types.Course, 0, len(s.enrolments[studentID]))
	for _, e := range s.enrolments[studentID] {
		out = append(out, s.courses[e.CourseID])
	}
	sortByCode(out)
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// clone detaches the row version so callers can't mutate stored bytes.
func clone(st types.Student) types.Student {
	st.RowVersion = slices.Clone(st.RowVersion)
	return st
}

func sortByCode(courses []types.Course) {
	slices.SortFunc(courses, func(a, b types.Course) int {
		return strings.Compare(a.Code, b.Code)
	})
}
