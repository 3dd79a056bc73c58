// Package listing turns a set of students into one page of a searchable,
// sortable list.
//
// The work is done in memory on whatever the data source returned:
//
//  1. filter by a substring of first or last name
//  2. stable sort by last name (ascending unless asked otherwise), with
//     digit runs compared by value so "LastName9" sorts before "LastName10"
//  3. count what survived the filter
//  4. cut out the requested page
//
// Nothing here logs or touches storage state; a failing source is passed
// back to the caller unchanged.
package listing

import (
	"context"
	"slices"
	"strings"

	"github.com/aanand-mishra/online-campus/internal/types"
)

// DefaultPageSize is used when a Pager has no positive PageSize.
const DefaultPageSize = 8

// SortKey selects the order of the list.
type SortKey int

const (
	LastNameAsc SortKey = iota // default
	LastNameDesc
)

// sortOrderDesc is the query-string value that requests LastNameDesc.
const sortOrderDesc = "name_desc"

// ParseSortKey maps a sortOrder query parameter to a SortKey.
// Anything other than "name_desc" (including "") means ascending.
func ParseSortKey(s string) SortKey {
	if s == sortOrderDesc {
		return LastNameDesc
	}
	return LastNameAsc
}

// String returns the query-string form of k ("" for the default).
func (k SortKey) String() string {
	if k == LastNameDesc {
		return sortOrderDesc
	}
	return ""
}

// Toggle returns the opposite order, for building the "sort by name"
// link of a list header.
func (k SortKey) Toggle() SortKey {
	if k == LastNameDesc {
		return LastNameAsc
	}
	return LastNameDesc
}

// PageQuery is what the caller wants to see.
type PageQuery struct {
	SortKey    SortKey
	SearchText string
	PageNumber int // 1-based; values below 1 are treated as 1
}

// PageResult is one page of items plus the metadata needed to render
// pagination controls.
type PageResult[T any] struct {
	Items           []T  `json:"items"`
	PageNumber      int  `json:"pageNumber"`
	TotalPages      int  `json:"totalPages"`
	TotalCount      int  `json:"totalCount"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	HasNextPage     bool `json:"hasNextPage"`
}

// NewPageResult fills in the derived fields. items must already be the
// slice for pageNumber; totalCount is the size of the whole filtered set.
func NewPageResult[T any](items []T, totalCount, pageNumber, pageSize int) PageResult[T] {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if items == nil {
		items = []T{}
	}
	totalPages := (totalCount + pageSize - 1) / pageSize
	return PageResult[T]{
		Items:           items,
		PageNumber:      pageNumber,
		TotalPages:      totalPages,
		TotalCount:      totalCount,
		HasPreviousPage: pageNumber > 1,
		HasNextPage:     pageNumber < totalPages,
	}
}

// Source is anything that can hand over every student in insertion
// order. storage.Storage satisfies it.
type Source interface {
	FindAll(ctx context.Context) ([]types.Student, error)
}

// Pager holds the listing settings. The zero value is usable: eight
// items per page, case-sensitive search.
type Pager struct {
	PageSize int
	FoldCase bool // case-insensitive search
}

func (p Pager) pageSize() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}

// Query loads everything from src and returns the requested page.
// Errors from src are returned as-is.
func (p Pager) Query(ctx context.Context, src Source, q PageQuery) (PageResult[types.Student], error) {
	records, err := src.FindAll(ctx)
	if err != nil {
		return PageResult[types.Student]{}, err
	}
	return p.Paginate(records, q), nil
}

// Paginate returns the requested page of records. records is not
// modified.
func (p Pager) Paginate(records []types.Student, q PageQuery) PageResult[types.Student] {
	selected := p.Select(records, q)
	size := p.pageSize()

	page := q.PageNumber
	if page < 1 {
		page = 1
	}

	// Compare in page units first: (page-1)*size can overflow int for a
	// page number far past the end.
	start := len(selected)
	if page-1 <= len(selected)/size {
		start = min((page-1)*size, len(selected))
	}
	end := min(start+size, len(selected))

	return NewPageResult(selected[start:end:end], len(selected), page, size)
}

// Select filters and sorts records without paginating them. The result
// is a new slice; records is not modified.
func (p Pager) Select(records []types.Student, q PageQuery) []types.Student {
	out := make([]types.Student, 0, len(records))
	match := p.matcher(q.SearchText)
	for _, r := range records {
		if match(r) {
			out = append(out, r)
		}
	}

	// Stable: students sharing a last name keep their source order.
	cmp := func(a, b types.Student) int { return CompareNames(a.LastName, b.LastName) }
	if q.SortKey == LastNameDesc {
		slices.SortStableFunc(out, func(a, b types.Student) int { return cmp(b, a) })
	} else {
		slices.SortStableFunc(out, cmp)
	}
	return out
}

func (p Pager) matcher(search string) func(types.Student) bool {
	if search == "" {
		return func(types.Student) bool { return true }
	}
	if p.FoldCase {
		needle := strings.ToLower(search)
		return func(s types.Student) bool {
			return strings.Contains(strings.ToLower(s.FirstName), needle) ||
				strings.Contains(strings.ToLower(s.LastName), needle)
		}
	}
	return func(s types.Student) bool {
		return strings.Contains(s.FirstName, search) || strings.Contains(s.LastName, search)
	}
}

// CompareNames orders two names the way a person reads them: runs of
// digits compare by numeric value, everything else byte by byte. Names
// that only differ in leading zeros ("A01", "A1") fall back to
// strings.Compare, so the order stays total and distinct names never
// compare equal.
func CompareNames(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			ei, ej := digitRunEnd(a, i), digitRunEnd(b, j)
			if c := compareDigits(a[i:ei], b[j:ej]); c != 0 {
				return c
			}
			i, j = ei, ej
			continue
		}
		if a[i] != b[j] {
			if a[i] < b[j] {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func digitRunEnd(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

// compareDigits compares two digit runs by value without parsing, so
// arbitrarily long runs cannot overflow.
func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}
