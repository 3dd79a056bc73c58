// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ─────────────────────────────────────────────────────────────────────────────
// Response is the standard envelope returned for error cases.
//
// Success responses may return any JSON shape (a student, a page, …).
// Error responses always look like:
//
//	{ "status": "error", "error": "field FirstName is required" }
//
// Fields carries per-field messages when a form has something to point
// at (validation failures, edit conflicts).
// ─────────────────────────────────────────────────────────────────────────────
type Response struct {
	Status string            `json:"status"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Status string constants. Use these instead of raw string literals so
// a typo is caught by the compiler rather than silently sending "eroor".
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// User-facing messages shared by every handler. Storage failures never
// leak driver details to the client; the real error goes to the log.
const (
	MsgRetrieveFailed = "An error occurred while retrieving data from the database."
	MsgInsertFailed   = "An error occurred while inserting data into the database."
	MsgEditFailed     = "An error occurred while editing data in the database."
	MsgRemoveFailed   = "An error occurred while removing data from the database."

	MsgStudentNotFound = "The Student has not been found."
)

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GeneralError wraps any Go error into our standard Response shape.
func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

// Message is GeneralError for a fixed, user-facing sentence.
func Message(msg string) Response {
	return GeneralError(errors.New(msg))
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError converts a slice of validator.FieldError values into
// a single human-readable Response.
//
// The go-playground/validator package returns one FieldError per failing
// struct field. We convert each to a plain English sentence, join them
// with ", " for the summary, and keep them per field as well.
//
// Example output:
//
//	{ "status": "error", "error": "field FirstName is required",
//	  "fields": { "FirstName": "field FirstName is required" } }
//
// ─────────────────────────────────────────────────────────────────────────────
func ValidationError(errs validator.ValidationErrors) Response {
	var errMessages []string
	fields := make(map[string]string, len(errs))

	for _, e := range errs {
		var msg string
		switch e.ActualTag() {
		case "required":
			msg = fmt.Sprintf("field %s is required", e.Field())
		case "email":
			msg = fmt.Sprintf("field %s must be a valid email address", e.Field())
		case "gte":
			msg = fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param())
		default:
			msg = fmt.Sprintf("field %s is invalid", e.Field())
		}
		errMessages = append(errMessages, msg)
		fields[e.Field()] = msg
	}

	return Response{
		Status: StatusError,
		Error:  strings.Join(errMessages, ", "),
		Fields: fields,
	}
}

// BadRequest writes a 400 for a failed decode or validation. Validation
// failures get the per-field shape; anything else is a GeneralError.
func BadRequest(w http.ResponseWriter, err error) error {
	var validateErrs validator.ValidationErrors
	if errors.As(err, &validateErrs) {
		return WriteJSON(w, http.StatusBadRequest, ValidationError(validateErrs))
	}
	return WriteJSON(w, http.StatusBadRequest, GeneralError(err))
}
