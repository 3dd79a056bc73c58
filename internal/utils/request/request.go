// Package request decodes and validates incoming JSON bodies.
package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrEmptyBody is returned by DecodeJSON when the client sent nothing.
var ErrEmptyBody = errors.New("request body is empty")

// ErrInvalidID is returned by PathID for a malformed {id} segment.
var ErrInvalidID = errors.New("invalid id: must be a UUID")

// validate is shared: a *validator.Validate caches struct metadata and is
// safe for concurrent use. Field names in errors are the JSON names
// ("firstName"), which is what API clients know.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// DecodeJSON reads r.Body into v.
func DecodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}

// Validate checks the validate:"..." tags on v. A failure is returned as
// validator.ValidationErrors.
func Validate(v any) error {
	return validate.Struct(v)
}

// PathID reads the named path parameter and checks it is a UUID.
func PathID(r *http.Request, name string) (string, error) {
	id := r.PathValue(name)
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrInvalidID
	}
	return id, nil
}
