// Package storagetest is a conformance suite for storage.Storage
// implementations. Each backend's tests call Run with a constructor that
// returns an empty store.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/types"
)

// Opener returns an empty store. It should register its own cleanup.
type Opener func(t *testing.T) storage.Storage

// Run executes every conformance test against stores built by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"InsertAndFind", testInsertAndFind},
		{"FindAllKeepsInsertionOrder", testFindAllOrder},
		{"CompareAndSwapUpdate", testCompareAndSwap},
		{"ConcurrentSwapsHaveOneWinner", testConcurrentSwaps},
		{"Delete", testDelete},
		{"Courses", testCourses},
		{"Enrolments", testEnrolments},
		{"ConcurrentCourseCodesHaveOneWinner", testConcurrentCourses},
		{"ConcurrentEnrolmentsHaveOneWinner", testConcurrentEnrolments},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func mustInsert(t *testing.T, s storage.Storage, first, last string) types.Student {
	t.Helper()
	st, err := s.Insert(context.Background(), types.Student{FirstName: first, LastName: last})
	if err != nil {
		t.Fatalf("Insert(%s %s): %v", first, last, err)
	}
	return st
}

func mustCourse(t *testing.T, s storage.Storage, code, name string) types.Course {
	t.Helper()
	c, err := s.CreateCourse(context.Background(), types.Course{Code: code, Name: name, Credits: 10})
	if err != nil {
		t.Fatalf("CreateCourse(%s): %v", code, err)
	}
	return c
}

func testInsertAndFind(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	st := mustInsert(t, s, "John", "Doe")
	if st.ID == "" {
		t.Fatal("Insert did not assign an id")
	}
	if len(st.RowVersion) == 0 {
		t.Fatal("Insert did not assign a row version")
	}

	got, err := s.FindByID(ctx, st.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil {
		t.Fatal("FindByID returned nil for an inserted student")
	}
	if got.FirstName != "John" || got.LastName != "Doe" || !got.RowVersion.Equal(st.RowVersion) {
		t.Fatalf("FindByID = %+v, want %+v", *got, st)
	}

	missing, err := s.FindByID(ctx, storage.NewID())
	if err != nil {
		t.Fatalf("FindByID(unknown): %v", err)
	}
	if missing != nil {
		t.Fatalf("FindByID(unknown) = %+v, want nil", *missing)
	}
}

func testFindAllOrder(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	empty, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("FindAll on empty store = %#v, want empty non-nil slice", empty)
	}

	names := []string{"Zed", "Adams", "Moe"}
	for _, n := range names {
		mustInsert(t, s, "F"+n, n)
	}
	all, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != len(names) {
		t.Fatalf("FindAll returned %d students, want %d", len(all), len(names))
	}
	for i, n := range names {
		if all[i].LastName != n {
			t.Errorf("FindAll[%d].LastName = %q, want %q", i, all[i].LastName, n)
		}
	}
}

func testCompareAndSwap(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	st := mustInsert(t, s, "John", "Doe")

	res, err := s.CompareAndSwapUpdate(ctx, st.ID, st.RowVersion, "Jane", "Doe")
	if err != nil {
		t.Fatalf("CompareAndSwapUpdate: %v", err)
	}
	if !res.Swapped {
		t.Fatal("swap with the current version was refused")
	}
	if res.Current == nil || res.Current.FirstName != "Jane" {
		t.Fatalf("swap result = %+v, want updated record", res.Current)
	}
	if res.Current.RowVersion.Equal(st.RowVersion) {
		t.Fatal("row version did not change on write")
	}
	v2 := res.Current.RowVersion

	stored, err := s.FindByID(ctx, st.ID)
	if err != nil || stored == nil {
		t.Fatalf("FindByID after swap: %v, %v", stored, err)
	}
	if stored.FirstName != "Jane" || !stored.RowVersion.Equal(v2) {
		t.Fatalf("stored = %+v, want Jane with version %s", *stored, v2)
	}

	// The original version is now stale.
	res, err = s.CompareAndSwapUpdate(ctx, st.ID, st.RowVersion, "Jim", "Beam")
	if err != nil {
		t.Fatalf("CompareAndSwapUpdate(stale): %v", err)
	}
	if res.Swapped {
		t.Fatal("swap with a stale version succeeded")
	}
	if res.Current == nil || !res.Current.RowVersion.Equal(v2) || res.Current.FirstName != "Jane" {
		t.Fatalf("conflict result = %+v, want latest record with version %s", res.Current, v2)
	}

	stored, _ = s.FindByID(ctx, st.ID)
	if stored.FirstName != "Jane" {
		t.Fatalf("stale swap changed the record: %+v", *stored)
	}

	res, err = s.CompareAndSwapUpdate(ctx, storage.NewID(), st.RowVersion, "No", "Body")
	if err != nil {
		t.Fatalf("CompareAndSwapUpdate(unknown): %v", err)
	}
	if res.Swapped || res.Current != nil {
		t.Fatalf("swap on unknown id = %+v, want conflict with nil record", res)
	}
}

func testConcurrentSwaps(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	st := mustInsert(t, s, "John", "Doe")

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.CompareAndSwapUpdate(ctx, st.ID, st.RowVersion, "Writer", string(rune('A'+i)))
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
				return
			}
			if res.Swapped {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d writers succeeded with the same expected version, want exactly 1", wins)
	}
}

func testDelete(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	st := mustInsert(t, s, "John", "Doe")
	keep := mustInsert(t, s, "Jane", "Roe")
	c := mustCourse(t, s, "CS101", "Intro")
	if _, err := s.Enrol(ctx, st.ID, c.ID); err != nil {
		t.Fatalf("Enrol: %v", err)
	}

	if err := s.Delete(ctx, st.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.FindByID(ctx, st.ID); got != nil {
		t.Fatalf("student still present after Delete: %+v", *got)
	}
	if err := s.Delete(ctx, st.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
	if _, err := s.StudentCourses(ctx, st.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("StudentCourses after Delete = %v, want ErrNotFound", err)
	}

	all, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 1 || all[0].ID != keep.ID {
		t.Fatalf("FindAll after Delete = %+v, want only %s", all, keep.ID)
	}
}

func testCourses(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mustCourse(t, s, "MA200", "Calculus")
	mustCourse(t, s, "CS101", "Intro")

	if _, err := s.CreateCourse(ctx, types.Course{Code: "CS101", Name: "Again"}); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("duplicate code = %v, want ErrDuplicate", err)
	}

	courses, err := s.ListCourses(ctx)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 2 || courses[0].Code != "CS101" || courses[1].Code != "MA200" {
		t.Fatalf("ListCourses = %+v, want CS101, MA200", courses)
	}
	if courses[0].ID == "" || courses[0].Credits != 10 {
		t.Fatalf("course not stored faithfully: %+v", courses[0])
	}
}

func testEnrolments(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	st := mustInsert(t, s, "John", "Doe")
	ma := mustCourse(t, s, "MA200", "Calculus")
	cs := mustCourse(t, s, "CS101", "Intro")

	for _, c := range []types.Course{ma, cs} {
		e, err := s.Enrol(ctx, st.ID, c.ID)
		if err != nil {
			t.Fatalf("Enrol(%s): %v", c.Code, err)
		}
		if e.ID == "" || e.StudentID != st.ID || e.CourseID != c.ID {
			t.Fatalf("Enrol(%s) = %+v", c.Code, e)
		}
	}

	if _, err := s.Enrol(ctx, st.ID, cs.ID); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("duplicate enrolment = %v, want ErrDuplicate", err)
	}
	if _, err := s.Enrol(ctx, storage.NewID(), cs.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown student = %v, want ErrNotFound", err)
	}
	if _, err := s.Enrol(ctx, st.ID, storage.NewID()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown course = %v, want ErrNotFound", err)
	}

	courses, err := s.StudentCourses(ctx, st.ID)
	if err != nil {
		t.Fatalf("StudentCourses: %v", err)
	}
	if len(courses) != 2 || courses[0].Code != "CS101" || courses[1].Code != "MA200" {
		t.Fatalf("StudentCourses = %+v, want CS101, MA200", courses)
	}

	other := mustInsert(t, s, "Jane", "Roe")
	none, err := s.StudentCourses(ctx, other.ID)
	if err != nil {
		t.Fatalf("StudentCourses(no enrolments): %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("StudentCourses(no enrolments) = %+v, want empty", none)
	}
}

// race runs fn from n goroutines at once and counts successes. Every
// failure must be storage.ErrDuplicate.
func race(t *testing.T, n int, fn func() error) int {
	t.Helper()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := fn()
			if err != nil && !errors.Is(err, storage.ErrDuplicate) {
				t.Errorf("writer %d: %v, want nil or ErrDuplicate", i, err)
				return
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return wins
}

func testConcurrentCourses(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	wins := race(t, 8, func() error {
		_, err := s.CreateCourse(ctx, types.Course{Code: "CS101", Name: "Intro"})
		return err
	})
	if wins != 1 {
		t.Fatalf("%d courses created with the same code, want exactly 1", wins)
	}

	courses, err := s.ListCourses(ctx)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("ListCourses = %+v, want one course", courses)
	}
}

func testConcurrentEnrolments(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	st := mustInsert(t, s, "John", "Doe")
	c := mustCourse(t, s, "CS101", "Intro")

	wins := race(t, 8, func() error {
		_, err := s.Enrol(ctx, st.ID, c.ID)
		return err
	})
	if wins != 1 {
		t.Fatalf("%d enrolments created for the same pair, want exactly 1", wins)
	}

	courses, err := s.StudentCourses(ctx, st.ID)
	if err != nil {
		t.Fatalf("StudentCourses: %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("StudentCourses = %+v, want one course", courses)
	}
}
