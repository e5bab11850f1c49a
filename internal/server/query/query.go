// Package query parses the task listing parameters (filters, select, sort,
// page, limit) into a validated Query that the stores translate.
package query

import (
	"math"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/dmitrijs2005/taskkeeper/internal/timex"
	"github.com/google/uuid"
)

// Filter operators.
const (
	OpEq  = "eq"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
	OpIn  = "in"
)

// Filterable and sortable task fields, named as in the JSON representation.
const (
	FieldID              = "_id"
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldStatus          = "status"
	FieldStartDate       = "startDate"
	FieldDueDate         = "dueDate"
	FieldCompletedDate   = "completedDate"
	FieldCreatedAt       = "createdAt"
	FieldCreatedBy       = "createdBy"
	FieldAssignedTo      = "assignedTo"
	FieldTaskFiles       = "taskFiles"
	FieldCompletionFiles = "completionFiles"
	FieldComments        = "comments"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (page-1)*MaxLimit within int on every platform.
	MaxPage = math.MaxInt32 / MaxLimit
)

type kind int

const (
	kindString kind = iota
	kindStatus
	kindDate
	kindUserID
)

var (
	equalityOps = []string{OpEq, OpIn}
	allOps      = []string{OpEq, OpGt, OpGte, OpLt, OpLte, OpIn}
)

type fieldRule struct {
	kind kind
	ops  []string
}

var filterable = map[string]fieldRule{
	FieldStatus:        {kindStatus, equalityOps},
	FieldTitle:         {kindString, equalityOps},
	FieldDescription:   {kindString, equalityOps},
	FieldStartDate:     {kindDate, allOps},
	FieldDueDate:       {kindDate, allOps},
	FieldCompletedDate: {kindDate, allOps},
	FieldCreatedAt:     {kindDate, allOps},
	FieldCreatedBy:     {kindUserID, equalityOps},
	FieldAssignedTo:    {kindUserID, equalityOps},
}

var sortable = []string{
	FieldTitle, FieldDescription, FieldStatus, FieldStartDate,
	FieldDueDate, FieldCompletedDate, FieldCreatedAt,
}

var selectable = []string{
	FieldID, FieldTitle, FieldDescription, FieldStatus, FieldStartDate,
	FieldDueDate, FieldCompletedDate, FieldAssignedTo, FieldCreatedBy,
	FieldTaskFiles, FieldCompletionFiles, FieldComments, FieldCreatedAt,
}

var reserved = []string{"select", "sort", "page", "limit"}

// Filter is one field predicate. Values hold string or time.Time items;
// every op but OpIn has exactly one value.
type Filter struct {
	Field  string
	Op     string
	Values []any
}

type SortField struct {
	Field string
	Desc  bool
}

type Query struct {
	Filters []Filter
	// Select lists the fields to render; empty means all.
	Select []string
	Sort   []SortField
	Page   int
	Limit  int
}

// Offset is the number of rows before the current page; never negative.
func (q Query) Offset() int {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Default is the unfiltered first page sorted by -createdAt.
func Default() Query {
	return Query{
		Sort:  []SortField{{Field: FieldCreatedAt, Desc: true}},
		Page:  DefaultPage,
		Limit: DefaultLimit,
	}
}

// Completed is the completed-task listing: status = completed, newest
// completion first.
func Completed(page, limit int) Query {
	return Query{
		Filters: []Filter{{Field: FieldStatus, Op: OpEq, Values: []any{models.StatusCompleted}}},
		Sort:    []SortField{{Field: FieldCompletedDate, Desc: true}},
		Page:    page,
		Limit:   limit,
	}
}

// Parse builds a Query from URL parameters. Keys other than select, sort,
// page and limit are filters, written as field=value or field[op]=value.
// Unknown fields, operators or malformed values yield common.ErrorValidation.
func Parse(values url.Values) (Query, error) {
	q := Default()
	q.Page, q.Limit = ParsePaging(values)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if slices.Contains(reserved, key) {
			continue
		}
		for _, raw := range values[key] {
			f, err := parseFilter(key, raw)
			if err != nil {
				return Query{}, err
			}
			q.Filters = append(q.Filters, f)
		}
	}

	if s := strings.TrimSpace(values.Get("select")); s != "" {
		sel, err := parseSelect(s)
		if err != nil {
			return Query{}, err
		}
		q.Select = sel
	}

	if s := strings.TrimSpace(values.Get("sort")); s != "" {
		srt, err := parseSort(s)
		if err != nil {
			return Query{}, err
		}
		q.Sort = srt
	}

	return q, nil
}

// ParsePaging reads page and limit, falling back to the defaults for
// missing, non-numeric or non-positive values and capping page at MaxPage
// and limit at MaxLimit.
func ParsePaging(values url.Values) (page, limit int) {
	page, limit = DefaultPage, DefaultLimit
	if n, err := strconv.Atoi(values.Get("page")); err == nil && n > 0 {
		page = min(n, MaxPage)
	}
	if n, err := strconv.Atoi(values.Get("limit")); err == nil && n > 0 {
		limit = min(n, MaxLimit)
	}
	return page, limit
}

func parseFilter(key, raw string) (Filter, error) {
	field, op := key, OpEq
	if i := strings.IndexByte(key, '['); i >= 0 {
		if !strings.HasSuffix(key, "]") {
			return Filter{}, common.Errorf(common.ErrorValidation, "malformed filter %q", key)
		}
		field, op = key[:i], key[i+1:len(key)-1]
	}

	rule, ok := filterable[field]
	if !ok {
		return Filter{}, common.Errorf(common.ErrorValidation, "cannot filter by %q", field)
	}
	if !slices.Contains(rule.ops, op) {
		return Filter{}, common.Errorf(common.ErrorValidation, "operator %q is not supported for %q", op, field)
	}

	parts := []string{raw}
	if op == OpIn {
		parts = strings.Split(raw, ",")
	}

	f := Filter{Field: field, Op: op, Values: make([]any, 0, len(parts))}
	for _, p := range parts {
		v, err := parseValue(rule.kind, field, strings.TrimSpace(p))
		if err != nil {
			return Filter{}, err
		}
		f.Values = append(f.Values, v)
	}
	return f, nil
}

func parseValue(k kind, field, s string) (any, error) {
	switch k {
	case kindStatus:
		if !models.ValidStatus(s) {
			return nil, common.Errorf(common.ErrorValidation, "invalid status %q", s)
		}
		return s, nil
	case kindDate:
		t, err := timex.ParseDate(s)
		if err != nil {
			return nil, common.Errorf(common.ErrorValidation, "invalid date %q for %s", s, field)
		}
		return t, nil
	case kindUserID:
		if _, err := uuid.Parse(s); err != nil {
			return nil, common.Errorf(common.ErrorValidation, "invalid user id %q for %s", s, field)
		}
		return s, nil
	default:
		return s, nil
	}
}

func parseSelect(s string) ([]string, error) {
	var out []string
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !slices.Contains(selectable, f) {
			return nil, common.Errorf(common.ErrorValidation, "cannot select %q", f)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func parseSort(s string) ([]SortField, error) {
	var out []SortField
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		desc := strings.HasPrefix(f, "-")
		f = strings.TrimPrefix(f, "-")
		if !slices.Contains(sortable, f) {
			return nil, common.Errorf(common.ErrorValidation, "cannot sort by %q", f)
		}
		out = append(out, SortField{Field: f, Desc: desc})
	}
	if len(out) == 0 {
		return Default().Sort, nil
	}
	return out, nil
}

// dateOf returns the date field of t, or nil when it is unset.
func dateOf(t *models.Task, field string) *time.Time {
	switch field {
	case FieldStartDate:
		return &t.StartDate
	case FieldDueDate:
		return &t.DueDate
	case FieldCompletedDate:
		return t.CompletedDate
	case FieldCreatedAt:
		return &t.CreatedAt
	}
	return nil
}
