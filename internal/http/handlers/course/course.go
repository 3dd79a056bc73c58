// Package course contains the HTTP handlers for courses and enrolments.
package course

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/types"
	"github.com/aanand-mishra/online-campus/internal/utils/request"
	"github.com/aanand-mishra/online-campus/internal/utils/response"
)

// New handles POST /api/courses.
//
//	{ "code": "CS101", "name": "Intro to CS", "description": "...", "credits": 15 }
//
// 201 with the stored course, 400 invalid body, 409 code already used.
func New(catalog storage.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a course")

		var c types.Course
		if err := request.DecodeJSON(r, &c); err != nil {
			response.BadRequest(w, err)
			return
		}
		if err := request.Validate(c); err != nil {
			response.BadRequest(w, err)
			return
		}

		created, err := catalog.CreateCourse(r.Context(), c)
		if errors.Is(err, storage.ErrDuplicate) {
			response.WriteJSON(w, http.StatusConflict, response.Message("A course with this code already exists."))
			return
		}
		if err != nil {
			slog.Error("error creating course", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgInsertFailed))
			return
		}

		slog.Info("course created", slog.String("id", created.ID), slog.String("code", created.Code))
		response.WriteJSON(w, http.StatusCreated, created)
	}
}

// GetList handles GET /api/courses.
func GetList(catalog storage.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courses, err := catalog.ListCourses(r.Context())
		if err != nil {
			slog.Error("error listing courses", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgRetrieveFailed))
			return
		}
		response.WriteJSON(w, http.StatusOK, courses)
	}
}

// Enrol handles POST /api/students/{id}/enrolments.
//
//	{ "courseId": "..." }
//
// 201 with the enrolment, 404 unknown student or course, 409 already
// enrolled.
func Enrol(catalog storage.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := request.PathID(r, "id")
		if err != nil {
			response.BadRequest(w, err)
			return
		}

		var e types.Enrolment
		if err := request.DecodeJSON(r, &e); err != nil {
			response.BadRequest(w, err)
			return
		}
		if err := request.Validate(e); err != nil {
			response.BadRequest(w, err)
			return
		}
		slog.Info("enrolling a student",
			slog.String("student_id", studentID),
			slog.String("course_id", e.CourseID))

		created, err := catalog.Enrol(r.Context(), studentID, e.CourseID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			response.WriteJSON(w, http.StatusNotFound, response.GeneralError(err))
		case errors.Is(err, storage.ErrDuplicate):
			response.WriteJSON(w, http.StatusConflict, response.Message("The student is already enrolled in this course."))
		case err != nil:
			slog.Error("error enrolling student", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgInsertFailed))
		default:
			response.WriteJSON(w, http.StatusCreated, created)
		}
	}
}

// StudentCourses handles GET /api/students/{id}/courses.
func StudentCourses(catalog storage.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, err := request.PathID(r, "id")
		if err != nil {
			response.BadRequest(w, err)
			return
		}

		courses, err := catalog.StudentCourses(r.Context(), studentID)
		if errors.Is(err, storage.ErrNotFound) {
			response.WriteJSON(w, http.StatusNotFound, response.Message(response.MsgStudentNotFound))
			return
		}
		if err != nil {
			slog.Error("error listing student courses",
				slog.String("student_id", studentID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgRetrieveFailed))
			return
		}
		response.WriteJSON(w, http.StatusOK, courses)
	}
}
