package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/aanand-mishra/online-campus/internal/types"
)

func TestWriteStudents(t *testing.T) {
	students := []types.Student{
		{ID: "b", FirstName: "Jane", LastName: "Adams"},
		{ID: "a", FirstName: "John", LastName: "Doe"},
	}

	var buf bytes.Buffer
	if err := WriteStudents(&buf, students); err != nil {
		t.Fatalf("WriteStudents: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != SheetName {
		t.Fatalf("sheets = %v, want [%s]", sheets, SheetName)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	want := [][]string{
		{"ID", "First Name", "Last Name"},
		{"b", "Jane", "Adams"},
		{"a", "John", "Doe"},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %v", len(rows), len(want), rows)
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("cell (%d,%d) = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}
}

func TestWriteStudents_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStudents(&buf, nil); err != nil {
		t.Fatalf("WriteStudents: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, _ := f.GetRows(SheetName)
	if len(rows) != 1 {
		t.Fatalf("empty export has %d rows, want header only", len(rows))
	}
}
