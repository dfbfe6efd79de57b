package repo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"choreline/internal/domain"
)

// Resource names the readable collections as they appear on the wire.
type Resource string

const (
	ResourceUsers       Resource = "users"
	ResourceTasks       Resource = "tasks"
	ResourceAssignments Resource = "task_assignments"
)

const maxLimit = 1000

type colKind int

const (
	kindText colKind = iota
	kindInt
	kindBool
)

type column struct {
	expr string
	kind colKind
}

// resourceColumns maps public column names to SQL expressions. Password
// hashes are deliberately absent.
var resourceColumns = map[Resource]map[string]column{
	ResourceUsers: {
		"user_id":    {"u.id", kindInt},
		"username":   {"u.username", kindText},
		"created_at": {"u.created_at", kindText},
	},
	ResourceTasks: {
		"task_id":     {"t.id", kindInt},
		"task_name":   {"t.name", kindText},
		"description": {"t.description", kindText},
		"created_at":  {"t.created_at", kindText},
	},
	ResourceAssignments: {
		"assignment_id": {"a.id", kindInt},
		"task_id":       {"a.task_id", kindInt},
		"user_id":       {"a.user_id", kindInt},
		"assigned_at":   {"a.assigned_at", kindText},
		"completed_at":  {"a.completed_at", kindText},
		"is_approved":   {"a.approved", kindBool},
		"notes":         {"a.notes", kindText},
	},
}

var resourceEmbeds = map[Resource]map[string]map[string]bool{
	ResourceAssignments: {
		"users": {"user_id": true, "username": true},
		"tasks": {"task_id": true, "task_name": true, "description": true},
	},
}

type Filter struct {
	Column string
	// Op is one of eq, neq or is.
	Op    string
	Value any
}

// Query is a validated read over one resource.
type Query struct {
	Resource Resource
	Filters  []Filter
	State    domain.State
	Embed    map[string]bool
	Order    string
	Desc     bool
	Limit    int
	Offset   int
}

func invalidFilter(format string, args ...any) error {
	return domain.ErrInvalidFilter.WithMessage(format, args...)
}

// ParseQuery validates request parameters in the form column=op.value
// (op eq, neq or is), select=*,users(username),tasks(task_name),
// order=column[.asc|.desc], limit, offset and, for assignments, state.
func ParseQuery(res Resource, params url.Values) (Query, error) {
	cols, ok := resourceColumns[res]
	if !ok {
		return Query{}, invalidFilter("unknown resource %q", res)
	}
	q := Query{Resource: res, Embed: map[string]bool{}}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, raw := range params[key] {
			if err := q.apply(cols, key, raw); err != nil {
				return Query{}, err
			}
		}
	}
	return q, nil
}

func (q *Query) apply(cols map[string]column, key, raw string) error {
	switch key {
	case "select":
		return q.parseSelect(cols, raw)
	case "limit", "offset":
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return invalidFilter("%s must be a non-negative integer", key)
		}
		if key == "limit" {
			q.Limit = n
		} else {
			q.Offset = n
		}
		return nil
	case "order":
		name, dir, _ := strings.Cut(raw, ".")
		if _, ok := cols[name]; !ok {
			return invalidFilter("unknown order column %q", name)
		}
		switch dir {
		case "", "asc":
		case "desc":
			q.Desc = true
		default:
			return invalidFilter("order direction must be asc or desc")
		}
		q.Order = name
		return nil
	case "state":
		if q.Resource != ResourceAssignments {
			break
		}
		st, err := domain.ParseState(raw)
		if err != nil {
			return invalidFilter("%v", err)
		}
		q.State = st
		return nil
	}
	c, ok := cols[key]
	if !ok {
		return invalidFilter("unknown column %q", key)
	}
	f, err := parseFilter(key, c, raw)
	if err != nil {
		return err
	}
	q.Filters = append(q.Filters, f)
	return nil
}

func parseFilter(name string, c column, raw string) (Filter, error) {
	op, val, ok := strings.Cut(raw, ".")
	if !ok {
		return Filter{}, invalidFilter("filter %s=%s: expected <op>.<value>", name, raw)
	}
	f := Filter{Column: name, Op: op}
	switch op {
	case "eq", "neq":
		v, err := c.parse(val)
		if err != nil {
			return Filter{}, invalidFilter("filter %s: %v", name, err)
		}
		f.Value = v
	case "is":
		switch strings.ToLower(val) {
		case "null":
			f.Value = nil
		case "true", "false":
			if c.kind != kindBool {
				return Filter{}, invalidFilter("filter %s: is.%s needs a boolean column", name, val)
			}
			f.Value = strings.EqualFold(val, "true")
		default:
			return Filter{}, invalidFilter("filter %s: is accepts null, true or false", name)
		}
	default:
		return Filter{}, invalidFilter("filter %s: unsupported operator %q", name, op)
	}
	return f, nil
}

func (c column) parse(v string) (any, error) {
	switch c.kind {
	case kindInt:
		return strconv.ParseInt(v, 10, 64)
	case kindBool:
		return strconv.ParseBool(v)
	}
	return v, nil
}

func (q *Query) parseSelect(cols map[string]column, raw string) error {
	items, err := splitTopLevel(raw)
	if err != nil {
		return err
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		name, rest, nested := strings.Cut(item, "(")
		if !nested {
			if item == "*" {
				continue
			}
			if _, ok := cols[item]; !ok {
				return invalidFilter("unknown column %q in select", item)
			}
			continue
		}
		allowed, ok := resourceEmbeds[q.Resource][name]
		if !ok {
			return invalidFilter("cannot embed %q in %s", name, q.Resource)
		}
		if !strings.HasSuffix(rest, ")") {
			return invalidFilter("malformed embed %q", item)
		}
		for _, col := range strings.Split(strings.TrimSuffix(rest, ")"), ",") {
			col = strings.TrimSpace(col)
			if col != "*" && !allowed[col] {
				return invalidFilter("unknown column %q in embed %s", col, name)
			}
		}
		q.Embed[name] = true
	}
	return nil
}

func splitTopLevel(s string) ([]string, error) {
	var (
		out   []string
		depth int
		start int
	)
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, invalidFilter("unbalanced parentheses in select")
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, invalidFilter("unbalanced parentheses in select")
	}
	out = append(out, s[start:])
	for _, item := range out {
		if strings.TrimSpace(item) == "" {
			return nil, invalidFilter("empty select item")
		}
	}
	return out, nil
}

func (r Repo) build(base, defaultOrder string, q Query) (string, []any) {
	cols := resourceColumns[q.Resource]
	var (
		clauses []string
		args    []any
	)
	for _, f := range q.Filters {
		expr := cols[f.Column].expr
		switch {
		case f.Op == "is" && f.Value == nil:
			clauses = append(clauses, expr+" IS NULL")
		case f.Op == "neq":
			clauses = append(clauses, expr+"<>?")
			args = append(args, f.Value)
		default:
			clauses = append(clauses, expr+"=?")
			args = append(args, f.Value)
		}
	}
	switch q.State {
	case domain.StateOpen:
		clauses = append(clauses, "a.completed_at IS NULL")
	case domain.StatePendingReview:
		clauses = append(clauses, "a.completed_at IS NOT NULL AND a.approved IS NULL")
	case domain.StateApproved:
		clauses = append(clauses, "a.approved=?")
		args = append(args, true)
	case domain.StateRejected:
		clauses = append(clauses, "a.approved=?")
		args = append(args, false)
	}
	query := base
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	order := defaultOrder
	if q.Order != "" {
		order = cols[q.Order].expr
		if q.Desc {
			order += " DESC"
		}
		order += ", " + defaultOrder
	}
	limit := q.Limit
	if limit == 0 || limit > maxLimit {
		limit = maxLimit
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT ? OFFSET ?", order)
	args = append(args, limit, q.Offset)
	return r.rebind(query), args
}

func (r Repo) ListUsers(ctx context.Context, q Query) ([]domain.User, error) {
	if q.Resource != ResourceUsers {
		return nil, fmt.Errorf("query for %s used to list users", q.Resource)
	}
	query, args := r.build(`SELECT u.id,u.username,u.created_at FROM users u`, "u.id", q)
	res := []domain.User{}
	if err := r.DB.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (r Repo) ListTasks(ctx context.Context, q Query) ([]domain.Task, error) {
	if q.Resource != ResourceTasks {
		return nil, fmt.Errorf("query for %s used to list tasks", q.Resource)
	}
	query, args := r.build(`SELECT t.id,t.name,t.description,t.created_at FROM tasks t`, "t.id", q)
	res := []domain.Task{}
	if err := r.DB.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, err
	}
	return res, nil
}

type assignmentRow struct {
	domain.Assignment
	Username        string `db:"username"`
	TaskName        string `db:"task_name"`
	TaskDescription string `db:"task_description"`
}

func (r Repo) ListAssignments(ctx context.Context, q Query) ([]domain.AssignmentView, error) {
	if q.Resource != ResourceAssignments {
		return nil, fmt.Errorf("query for %s used to list assignments", q.Resource)
	}
	query, args := r.build(`SELECT a.id,a.task_id,a.user_id,a.assigned_at,a.completed_at,a.approved,a.notes,
u.username AS username, t.name AS task_name, t.description AS task_description
FROM assignments a JOIN users u ON u.id=a.user_id JOIN tasks t ON t.id=a.task_id`, "a.id", q)
	var rows []assignmentRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	res := make([]domain.AssignmentView, 0, len(rows))
	for _, row := range rows {
		v := domain.AssignmentView{Assignment: row.Assignment}
		if q.Embed["users"] {
			v.Users = &domain.UserRef{UserID: row.UserID, Username: row.Username}
		}
		if q.Embed["tasks"] {
			v.Tasks = &domain.TaskRef{TaskID: row.TaskID, TaskName: row.TaskName, Description: row.TaskDescription}
		}
		res = append(res, v)
	}
	return res, nil
}
