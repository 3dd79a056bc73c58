// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, storage, listing and editor can all import types without
// depending on each other.
package types

import (
	"bytes"
	"encoding/hex"
)

// RowVersion is the optimistic-concurrency token stamped on a student by
// the storage layer on every successful write.
//
// It is opaque: callers only ever compare two versions for equality,
// never parse or order them. In JSON it travels as base64 (the default
// encoding/json behaviour for byte slices), so a client can echo it back
// unchanged on the next edit.
type RowVersion []byte

// Equal reports whether two row versions are the same token.
func (v RowVersion) Equal(other RowVersion) bool {
	return bytes.Equal(v, other)
}

// String renders the token as hex, for logs.
func (v RowVersion) String() string {
	return hex.EncodeToString(v)
}

// Student represents a student record in our system.
//
// Struct tags serve two purposes:
//
//  1. json:"..."  controls how the field appears when encoded to JSON.
//
//  2. validate:"..." rules checked by the go-playground/validator
//     package. "required" means the field must be non-zero / non-empty.
type Student struct {
	ID         string     `json:"id"`
	FirstName  string     `json:"firstName" validate:"required"`
	LastName   string     `json:"lastName"  validate:"required"`
	RowVersion RowVersion `json:"rowVersion"`
}

// StudentInput is the payload accepted when creating a student.
// The id and row version are assigned by storage, never by the client.
type StudentInput struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName"  validate:"required"`
}

// EditRequest is a caller-submitted edit of an existing student.
//
// ObservedRowVersion is the RowVersion the caller last read. The edit is
// only applied if the stored record still carries that version.
type EditRequest struct {
	ID                 string     `json:"-"`
	FirstName          string     `json:"firstName"  validate:"required"`
	LastName           string     `json:"lastName"   validate:"required"`
	ObservedRowVersion RowVersion `json:"rowVersion" validate:"required"`
}

// Course is something a student can enrol in.
type Course struct {
	ID          string `json:"id"`
	Code        string `json:"code"        validate:"required"`
	Name        string `json:"name"        validate:"required"`
	Description string `json:"description"`
	Credits     int    `json:"credits"     validate:"gte=0"`
}

// Enrolment links one student to one course.
type Enrolment struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId" validate:"required"`
}
