package sqldb

import (
	"errors"
	"testing"

	"github.com/aanand-mishra/online-campus/internal/storage"
)

func TestRebind(t *testing.T) {
	query := "UPDATE students SET first_name = ?, last_name = ? WHERE id = ? AND row_version = ?"

	tests := []struct {
		name    string
		dialect Dialect
		want    string
	}{
		{"question mark", Dialect{Placeholder: QuestionMark}, query},
		{"dollar", Dialect{Placeholder: Dollar},
			"UPDATE students SET first_name = $1, last_name = $2 WHERE id = $3 AND row_version = $4"},
		{"unset", Dialect{}, query},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &Store{dialect: tc.dialect}
			if got := s.rebind(query); got != tc.want {
				t.Errorf("rebind() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWriteErr(t *testing.T) {
	errUnique := errors.New("UNIQUE constraint failed: courses.code")
	errOther := errors.New("disk I/O error")
	s := &Store{dialect: Dialect{IsUnique: func(err error) bool { return errors.Is(err, errUnique) }}}

	err := s.writeErr("CreateCourse: exec", errUnique)
	if !errors.Is(err, storage.ErrDuplicate) || errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("unique violation = %v, want ErrDuplicate only", err)
	}

	err = s.writeErr("CreateCourse: exec", errOther)
	if !errors.Is(err, storage.ErrUnavailable) || errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("other error = %v, want ErrUnavailable only", err)
	}

	// A dialect that cannot classify errors treats everything as unavailable.
	bare := &Store{}
	if err := bare.writeErr("Enrol: exec", errUnique); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("without IsUnique = %v, want ErrUnavailable", err)
	}
}
