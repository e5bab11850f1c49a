package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

// Match reports whether t satisfies every filter.
func (q Query) Match(t *models.Task) bool {
	for _, f := range q.Filters {
		if !f.Match(t) {
			return false
		}
	}
	return true
}

func (f Filter) Match(t *models.Task) bool {
	switch f.Field {
	case FieldStatus:
		return f.matchString(t.Status)
	case FieldTitle:
		return f.matchString(t.Title)
	case FieldDescription:
		return f.matchString(t.Description)
	case FieldCreatedBy:
		return f.matchString(t.CreatedBy.ID)
	case FieldAssignedTo:
		return slices.ContainsFunc(t.AssignedTo, func(r models.UserRef) bool { return f.matchString(r.ID) })
	default:
		d := dateOf(t, f.Field)
		if d == nil {
			return false
		}
		return f.matchDate(*d)
	}
}

func (f Filter) matchString(s string) bool {
	for _, v := range f.Values {
		if str, ok := v.(string); ok && str == s {
			return true
		}
	}
	return false
}

func (f Filter) matchDate(d time.Time) bool {
	for _, v := range f.Values {
		want, ok := v.(time.Time)
		if !ok {
			continue
		}
		c := d.Compare(want)
		switch f.Op {
		case OpEq, OpIn:
			if c == 0 {
				return true
			}
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		}
	}
	return false
}

// SortTasks orders tasks by q.Sort, then by id. Unset dates sort last in
// either direction.
func (q Query) SortTasks(tasks []*models.Task) {
	slices.SortStableFunc(tasks, func(a, b *models.Task) int {
		for _, s := range q.Sort {
			if c := compareField(a, b, s); c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func compareField(a, b *models.Task, s SortField) int {
	var c int
	switch s.Field {
	case FieldTitle:
		c = cmp.Compare(a.Title, b.Title)
	case FieldDescription:
		c = cmp.Compare(a.Description, b.Description)
	case FieldStatus:
		c = cmp.Compare(a.Status, b.Status)
	default:
		da, db := dateOf(a, s.Field), dateOf(b, s.Field)
		switch {
		case da == nil && db == nil:
			return 0
		case da == nil:
			return 1
		case db == nil:
			return -1
		}
		c = da.Compare(*db)
	}
	if s.Desc {
		return -c
	}
	return c
}

// Paginate returns the page of tasks described by q.
func (q Query) Paginate(tasks []*models.Task) []*models.Task {
	off := q.Offset()
	if off < 0 || off >= len(tasks) {
		return nil
	}
	end := min(off+q.Limit, len(tasks))
	return tasks[off:end]
}
