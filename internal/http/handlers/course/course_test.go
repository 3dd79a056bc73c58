package course

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/storage/memory"
	"github.com/aanand-mishra/online-campus/internal/types"
	"github.com/aanand-mishra/online-campus/internal/utils/response"
)

func newMux(store storage.Storage) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/courses", New(store))
	mux.HandleFunc("GET /api/courses", GetList(store))
	mux.HandleFunc("POST /api/students/{id}/enrolments", Enrol(store))
	mux.HandleFunc("GET /api/students/{id}/courses", StudentCourses(store))
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func createCourse(t *testing.T, mux http.Handler, code, name string) types.Course {
	t.Helper()
	rec := do(t, mux, http.MethodPost, "/api/courses", `{"code":"`+code+`","name":"`+name+`","credits":15}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d, body %s", code, rec.Code, rec.Body)
	}
	var c types.Course
	if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCreateAndList(t *testing.T) {
	mux := newMux(memory.New())

	c := createCourse(t, mux, "MA200", "Calculus")
	if c.ID == "" || c.Credits != 15 {
		t.Fatalf("created = %+v", c)
	}
	createCourse(t, mux, "CS101", "Intro")

	if rec := do(t, mux, http.MethodPost, "/api/courses", `{"code":"CS101","name":"Again"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate code status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/api/courses", `{"name":"No code"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing code status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/api/courses", `{"code":"X1","name":"Neg","credits":-5}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative credits status = %d", rec.Code)
	}

	rec := do(t, mux, http.MethodGet, "/api/courses", "")
	var courses []types.Course
	if err := json.NewDecoder(rec.Body).Decode(&courses); err != nil {
		t.Fatal(err)
	}
	if len(courses) != 2 || courses[0].Code != "CS101" || courses[1].Code != "MA200" {
		t.Fatalf("courses = %+v", courses)
	}
}

func TestEnrolAndStudentCourses(t *testing.T) {
	store := memory.New()
	mux := newMux(store)
	st, err := store.Insert(context.Background(), types.Student{FirstName: "John", LastName: "Doe"})
	if err != nil {
		t.Fatal(err)
	}
	ma := createCourse(t, mux, "MA200", "Calculus")
	cs := createCourse(t, mux, "CS101", "Intro")
	enrol := "/api/students/" + st.ID + "/enrolments"

	for _, c := range []types.Course{ma, cs} {
		rec := do(t, mux, http.MethodPost, enrol, `{"courseId":"`+c.ID+`"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("enrol %s: status %d, body %s", c.Code, rec.Code, rec.Body)
		}
		var e types.Enrolment
		if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
			t.Fatal(err)
		}
		if e.StudentID != st.ID || e.CourseID != c.ID {
			t.Fatalf("enrolment = %+v", e)
		}
	}

	if rec := do(t, mux, http.MethodPost, enrol, `{"courseId":"`+cs.ID+`"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate enrolment status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, enrol, `{"courseId":"`+storage.NewID()+`"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown course status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, enrol, `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing courseId status = %d", rec.Code)
	}
	unknown := "/api/students/" + storage.NewID()
	if rec := do(t, mux, http.MethodPost, unknown+"/enrolments", `{"courseId":"`+cs.ID+`"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown student status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/api/students/abc/enrolments", `{"courseId":"`+cs.ID+`"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad student id status = %d", rec.Code)
	}

	rec := do(t, mux, http.MethodGet, "/api/students/"+st.ID+"/courses", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("student courses status = %d", rec.Code)
	}
	var courses []types.Course
	if err := json.NewDecoder(rec.Body).Decode(&courses); err != nil {
		t.Fatal(err)
	}
	if len(courses) != 2 || courses[0].Code != "CS101" {
		t.Fatalf("student courses = %+v", courses)
	}

	rec = do(t, mux, http.MethodGet, unknown+"/courses", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown student courses status = %d", rec.Code)
	}
	var body response.Response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != response.MsgStudentNotFound {
		t.Fatalf("unknown student error = %q", body.Error)
	}
}

// Courses of a student who has none encode as [], not null.
func TestStudentCoursesEmpty(t *testing.T) {
	store := memory.New()
	st, _ := store.Insert(context.Background(), types.Student{FirstName: "John", LastName: "Doe"})

	rec := do(t, newMux(store), http.MethodGet, "/api/students/"+st.ID+"/courses", "")
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("body = %s, want []", got)
	}
}

// brokenCatalog fails every catalog call with an unavailable error.
type brokenCatalog struct {
	storage.Catalog
}

var errDown = storage.Unavailable("test", errors.New("connection refused"))

func (brokenCatalog) CreateCourse(context.Context, types.Course) (types.Course, error) {
	return types.Course{}, errDown
}
func (brokenCatalog) ListCourses(context.Context) ([]types.Course, error) { return nil, errDown }
func (brokenCatalog) StudentCourses(context.Context, string) ([]types.Course, error) {
	return nil, errDown
}

func TestStorageFailuresUseSharedMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/courses", New(brokenCatalog{}))
	mux.HandleFunc("GET /api/courses", GetList(brokenCatalog{}))
	mux.HandleFunc("GET /api/students/{id}/courses", StudentCourses(brokenCatalog{}))

	tests := []struct {
		method, target, body string
		want                 string
	}{
		{http.MethodPost, "/api/courses", `{"code":"CS101","name":"Intro"}`, response.MsgInsertFailed},
		{http.MethodGet, "/api/courses", "", response.MsgRetrieveFailed},
		{http.MethodGet, "/api/students/" + storage.NewID() + "/courses", "", response.MsgRetrieveFailed},
	}
	for _, tc := range tests {
		rec := do(t, mux, tc.method, tc.target, tc.body)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: status = %d", tc.method, tc.target, rec.Code)
			continue
		}
		var got response.Response
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.Error != tc.want {
			t.Errorf("%s %s: error = %q, want %q", tc.method, tc.target, got.Error, tc.want)
		}
	}
}
