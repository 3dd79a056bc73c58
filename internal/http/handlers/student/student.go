// Package student contains all HTTP handlers related to the Student resource.
//
// HANDLER PATTERN USED HERE: THE CLOSURE / FACTORY PATTERN
// ────────────────────────────────────────────────────────────
// Go's router expects handler functions with the signature:
//
//	func(http.ResponseWriter, *http.Request)
//
// To inject dependencies we use a factory function that accepts them
// (storage, the pager, the editor) and returns a function with exactly
// that signature:
//
//	router.HandleFunc("POST /api/students", student.New(store))
//
// Each factory asks only for the slice of storage it uses, so tests can
// hand in small fakes.
package student

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aanand-mishra/online-campus/internal/editor"
	"github.com/aanand-mishra/online-campus/internal/export"
	"github.com/aanand-mishra/online-campus/internal/listing"
	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/types"
	"github.com/aanand-mishra/online-campus/internal/utils/request"
	"github.com/aanand-mishra/online-campus/internal/utils/response"
)

// Messages specific to the student routes. The generic storage-failure
// messages live in the response package.
const (
	MsgGone           = "Student was not found."
	MsgNotModified    = "Data has not been modified"
	MsgDeletedByOther = "Unable to save changes. The student was deleted by another user."
	MsgConflict       = "The record you attempted to edit was modified by another user after " +
		"you got the original value. The edit operation was canceled and the current values " +
		"in the database have been displayed. If you still want to edit this record, submit " +
		"it again with the new rowVersion. Otherwise go back to the list."
)

// writeWorkbook renders the export. Tests swap it to force a failure.
var writeWorkbook = export.WriteStudents

// Inserter is the storage needed by New.
type Inserter interface {
	Insert(ctx context.Context, student types.Student) (types.Student, error)
}

// Deleter is the storage needed by Delete.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/students
//
// Request body:   { "firstName": "John", "lastName": "Doe" }
// Success (201):  the stored student, including id and rowVersion
// Errors:         400 empty/malformed/invalid body, 500 database error
// ─────────────────────────────────────────────────────────────────────────────
func New(store Inserter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a student")

		var input types.StudentInput
		if err := request.DecodeJSON(r, &input); err != nil {
			response.BadRequest(w, err)
			return
		}
		if err := request.Validate(input); err != nil {
			response.BadRequest(w, err)
			return
		}

		created, err := store.Insert(r.Context(), types.Student{
			FirstName: input.FirstName,
			LastName:  input.LastName,
		})
		if err != nil {
			slog.Error("error creating student", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgInsertFailed))
			return
		}

		slog.Info("student created", slog.String("id", created.ID))
		response.WriteJSON(w, http.StatusCreated, created)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/students/{id}
//
// Success (200):  the student, with the rowVersion an edit must echo back
// Errors:         400 malformed id, 404 unknown id, 500 database error
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(store storage.Finder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := request.PathID(r, "id")
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		slog.Info("getting a student", slog.String("id", id))

		student, err := store.FindByID(r.Context(), id)
		if err != nil {
			slog.Error("error getting student",
				slog.String("id", id),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgRetrieveFailed))
			return
		}
		if student == nil {
			response.WriteJSON(w, http.StatusNotFound, response.Message(response.MsgStudentNotFound))
			return
		}

		response.WriteJSON(w, http.StatusOK, student)
	}
}

// listResponse is one page plus the state a list header needs to render
// its search box and sort link.
type listResponse struct {
	listing.PageResult[types.Student]
	CurrentSort   string `json:"currentSort"`
	CurrentFilter string `json:"currentFilter"`
	NameSortParm  string `json:"nameSortParm"`
}

// pageQuery reads the listing parameters.
//
//	sortOrder      "name_desc" for descending, anything else ascending
//	searchString   a newly typed search; resets to page 1
//	currentFilter  the search carried over from the previous page
//	pageNumber     1-based, default 1
func pageQuery(r *http.Request) (listing.PageQuery, error) {
	q := r.URL.Query()

	page := 1
	if v := q.Get("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return listing.PageQuery{}, errors.New("invalid pageNumber: must be an integer")
		}
		page = n
	}

	search := q.Get("currentFilter")
	if s := q.Get("searchString"); s != "" {
		search = s
		page = 1
	}

	return listing.PageQuery{
		SortKey:    listing.ParseSortKey(q.Get("sortOrder")),
		SearchText: search,
		PageNumber: page,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/students
//
// Query: sortOrder, searchString, currentFilter, pageNumber (see pageQuery)
//
// Success (200):
//
//	{ "items": [...], "pageNumber": 2, "totalPages": 3, "totalCount": 20,
//	  "hasPreviousPage": true, "hasNextPage": true,
//	  "currentSort": "", "currentFilter": "Doe", "nameSortParm": "name_desc" }
//
// ─────────────────────────────────────────────────────────────────────────────
func GetList(store listing.Source, pager listing.Pager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("listing students")

		q, err := pageQuery(r)
		if err != nil {
			response.BadRequest(w, err)
			return
		}

		page, err := pager.Query(r.Context(), store, q)
		if err != nil {
			slog.Error("error listing students", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgRetrieveFailed))
			return
		}

		response.WriteJSON(w, http.StatusOK, listResponse{
			PageResult:    page,
			CurrentSort:   q.SortKey.String(),
			CurrentFilter: q.SearchText,
			NameSortParm:  q.SortKey.Toggle().String(),
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Export handles GET /api/students/export
//
// Same sortOrder / searchString / currentFilter parameters as GetList, but
// every matching student goes into one Excel sheet instead of one page.
// ─────────────────────────────────────────────────────────────────────────────
func Export(store listing.Source, pager listing.Pager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("exporting students")

		q, err := pageQuery(r)
		if err != nil {
			response.BadRequest(w, err)
			return
		}

		all, err := store.FindAll(r.Context())
		if err != nil {
			slog.Error("error exporting students", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgRetrieveFailed))
			return
		}

		// Build the workbook in memory first so a failure can still be
		// reported with a proper status code.
		var buf bytes.Buffer
		if err := writeWorkbook(&buf, pager.Select(all, q)); err != nil {
			slog.Error("error building workbook", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgRetrieveFailed))
			return
		}

		w.Header().Set("Content-Type", export.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="students.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// conflictResponse is sent when an edit lost the race. Current holds the
// stored values; Fields says "Current Value: ..." for each field that
// differs from what the client tried to save.
type conflictResponse struct {
	response.Response
	Current *types.Student `json:"current"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /api/students/{id}
//
// Request body:  { "firstName": "...", "lastName": "...", "rowVersion": "<base64>" }
//
// rowVersion must be the value last read from GET. Responses:
//
//	200  applied; body is the student with its new rowVersion
//	400  malformed id or invalid body
//	404  no such student
//	409  someone else saved (body has current values) or deleted it first
//	422  nothing to change
//	500  database error
//
// ─────────────────────────────────────────────────────────────────────────────
func Update(store storage.Finder, ed *editor.Editor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := request.PathID(r, "id")
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		slog.Info("updating a student", slog.String("id", id))

		var req types.EditRequest
		if err := request.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, err)
			return
		}
		if err := request.Validate(req); err != nil {
			response.BadRequest(w, err)
			return
		}
		req.ID = id

		current, err := store.FindByID(r.Context(), id)
		if err != nil {
			editFailed(w, id, err)
			return
		}

		outcome, err := ed.Edit(r.Context(), current, req)
		if err != nil {
			editFailed(w, id, err)
			return
		}

		switch {
		case outcome.Kind == editor.NotFound:
			response.WriteJSON(w, http.StatusNotFound, response.Message(MsgGone))

		case outcome.Kind == editor.NoOp:
			response.WriteJSON(w, http.StatusUnprocessableEntity, response.Message(MsgNotModified))

		case outcome.Kind == editor.Applied:
			slog.Info("student updated",
				slog.String("id", id),
				slog.String("row_version", outcome.Record.RowVersion.String()))
			response.WriteJSON(w, http.StatusOK, outcome.Record)

		case outcome.Deleted():
			slog.Warn("edit conflict: student deleted", slog.String("id", id))
			response.WriteJSON(w, http.StatusConflict, response.Message(MsgDeletedByOther))

		default:
			slog.Warn("edit conflict",
				slog.String("id", id),
				slog.String("observed", req.ObservedRowVersion.String()),
				slog.String("current", outcome.Record.RowVersion.String()))

			body := conflictResponse{Response: response.Message(MsgConflict), Current: outcome.Record}
			body.Fields = map[string]string{}
			if outcome.FirstNameChanged {
				body.Fields["firstName"] = "Current Value: " + outcome.Record.FirstName
			}
			if outcome.LastNameChanged {
				body.Fields["lastName"] = "Current Value: " + outcome.Record.LastName
			}
			response.WriteJSON(w, http.StatusConflict, body)
		}
	}
}

func editFailed(w http.ResponseWriter, id string, err error) {
	slog.Error("error updating student",
		slog.String("id", id),
		slog.String("error", err.Error()))
	response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgEditFailed))
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /api/students/{id}
// Permanently removes a student and its enrolments.
//
// Success (200):  { "status": "deleted" }
// Errors:         400 malformed id, 404 unknown id, 500 database error
// ─────────────────────────────────────────────────────────────────────────────
func Delete(store Deleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := request.PathID(r, "id")
		if err != nil {
			response.BadRequest(w, err)
			return
		}
		slog.Info("deleting a student", slog.String("id", id))

		err = store.Delete(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			response.WriteJSON(w, http.StatusNotFound, response.Message(MsgGone))
			return
		}
		if err != nil {
			slog.Error("error deleting student",
				slog.String("id", id),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.Message(response.MsgRemoveFailed))
			return
		}

		slog.Info("student deleted", slog.String("id", id))
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
