// Package editor applies edits to students under optimistic concurrency.
//
// The caller reads a student (and its row version), shows it to a user,
// and later submits an EditRequest carrying the version it saw. Edit
// then decides one of four things:
//
//	NotFound  the student did not exist when the caller looked it up
//	NoOp      nothing changed; storage is not touched
//	Applied   the stored version still matched and the write went through
//	Conflict  someone else wrote (or deleted) the student in between
//
// These are normal results, returned as an Outcome. The only error Edit
// returns is a storage failure (storage.ErrUnavailable).
package editor

import (
	"context"

	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/types"
)

// Kind tags an Outcome.
type Kind int

const (
	NotFound Kind = iota
	NoOp
	Applied
	Conflict
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case NoOp:
		return "no_op"
	case Applied:
		return "applied"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Outcome is the result of one Edit call.
//
// Record depends on Kind:
//
//	Applied   the updated student, with its new row version
//	Conflict  the latest stored student, or nil if it was deleted
//	otherwise nil
//
// On Conflict the two flags tell which stored fields differ from the
// values the edit tried to write, so a form can mark exactly those.
type Outcome struct {
	Kind             Kind
	Record           *types.Student
	FirstNameChanged bool
	LastNameChanged  bool
}

// Deleted reports a conflict caused by a concurrent delete.
func (o Outcome) Deleted() bool {
	return o.Kind == Conflict && o.Record == nil
}

// Editor runs edits against a store.
type Editor struct {
	store storage.Swapper
}

// New returns an Editor writing through store.
func New(store storage.Swapper) *Editor {
	return &Editor{store: store}
}

// Edit applies req to current. current is the caller's fresh read of the
// student (nil if it was not found); req.ObservedRowVersion is the version
// the user's form was built from.
func (e *Editor) Edit(ctx context.Context, current *types.Student, req types.EditRequest) (Outcome, error) {
	if current == nil {
		return Outcome{Kind: NotFound}, nil
	}

	if req.FirstName == current.FirstName && req.LastName == current.LastName {
		return Outcome{Kind: NoOp}, nil
	}

	res, err := e.store.CompareAndSwapUpdate(ctx, current.ID, req.ObservedRowVersion, req.FirstName, req.LastName)
	if err != nil {
		return Outcome{}, err
	}

	if res.Swapped {
		return Outcome{Kind: Applied, Record: res.Current}, nil
	}

	out := Outcome{Kind: Conflict, Record: res.Current}
	if latest := res.Current; latest != nil {
		out.FirstNameChanged = latest.FirstName != req.FirstName
		out.LastNameChanged = latest.LastName != req.LastName
	}
	return out, nil
}
