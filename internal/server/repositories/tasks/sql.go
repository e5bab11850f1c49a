package tasks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/query"
)

var columns = map[string]string{
	query.FieldTitle:         "t.title",
	query.FieldDescription:   "t.description",
	query.FieldStatus:        "t.status",
	query.FieldStartDate:     "t.start_date",
	query.FieldDueDate:       "t.due_date",
	query.FieldCompletedDate: "t.completed_date",
	query.FieldCreatedAt:     "t.created_at",
	query.FieldCreatedBy:     "t.created_by",
}

var operators = map[string]string{
	query.OpEq:  "=",
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// whereBuilder collects conditions and their positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *whereBuilder) list(values []any) string {
	start := len(b.args) + 1
	b.args = append(b.args, values...)
	return dbx.Placeholders(start, len(values))
}

func (b *whereBuilder) filter(f query.Filter) error {
	if f.Field == query.FieldAssignedTo {
		b.conds = append(b.conds,
			"EXISTS (SELECT 1 FROM task_assignees fa WHERE fa.task_id = t.id AND fa.user_id IN ("+b.list(f.Values)+"))")
		return nil
	}

	col, ok := columns[f.Field]
	if !ok {
		return fmt.Errorf("unsupported filter field %q", f.Field)
	}

	if f.Op == query.OpIn {
		b.conds = append(b.conds, col+" IN ("+b.list(f.Values)+")")
		return nil
	}

	op, ok := operators[f.Op]
	if !ok || len(f.Values) != 1 {
		return fmt.Errorf("unsupported filter %s[%s]", f.Field, f.Op)
	}
	b.conds = append(b.conds, col+" "+op+" "+b.arg(f.Values[0]))
	return nil
}

func (b *whereBuilder) scope(s Scope) {
	if s.UserID == "" {
		return
	}
	p := b.arg(s.UserID)
	b.conds = append(b.conds,
		"(t.created_by = "+p+" OR EXISTS (SELECT 1 FROM task_assignees sa WHERE sa.task_id = t.id AND sa.user_id = "+p+"))")
}

func (b *whereBuilder) String() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func orderBy(sort []query.SortField) (string, error) {
	parts := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		col, ok := columns[s.Field]
		if !ok || s.Field == query.FieldCreatedBy {
			return "", fmt.Errorf("unsupported sort field %q", s.Field)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir+" NULLS LAST")
	}
	parts = append(parts, "t.id ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
