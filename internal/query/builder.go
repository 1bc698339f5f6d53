// Package query is the Query Builder: parameterized SQL construction with
// positional placeholders. Every argument is appended positionally as a
// Go ?, later rewritten to Postgres's $1, $2, ... form, so Builder itself
// never needs to know the storage engine's parameter syntax.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sensorhost/sensorhost/internal/apperr"
)

// op identifies which statement shape Build renders.
type op int

const (
	opSelect op = iota
	opInsert
	opUpdate
	opDelete
)

// Expr is a WHERE clause fragment with its positional argument(s),
// produced by Eq/Neq/Gt/Gte/Lt/Lte/In. Builder joins every Where() call
// with AND.
type Expr struct {
	clause string
	args   []any
}

func binary(col, sign string, val any) Expr {
	return Expr{clause: fmt.Sprintf("%s %s ?", col, sign), args: []any{val}}
}

func Eq(col string, val any) Expr  { return binary(col, "=", val) }
func Neq(col string, val any) Expr { return binary(col, "<>", val) }
func Gt(col string, val any) Expr  { return binary(col, ">", val) }
func Gte(col string, val any) Expr { return binary(col, ">=", val) }
func Lt(col string, val any) Expr  { return binary(col, "<", val) }
func Lte(col string, val any) Expr { return binary(col, "<=", val) }

// In builds a "col IN (?, ?, ...)" clause. An empty vals slice produces a
// clause that is always false, since SQL's empty-IN is invalid syntax.
func In(col string, vals ...any) Expr {
	if len(vals) == 0 {
		return Expr{clause: "1 = 0"}
	}
	placeholders := make([]string, len(vals))
	for i := range vals {
		placeholders[i] = "?"
	}
	return Expr{clause: fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args: vals}
}

type setClause struct {
	col string
	val any
}

// Builder assembles one SELECT/INSERT/UPDATE/DELETE statement. Not safe
// for concurrent use; build one per statement.
type Builder struct {
	kind    op
	table   string
	columns []string
	wheres  []Expr
	values  [][]any
	sets    []setClause
	orderBy string
	orderDir string
	limit   int
	hasLimit bool
	suffix  string
}

func Select(table string) *Builder { return &Builder{kind: opSelect, table: table} }
func Insert(table string) *Builder { return &Builder{kind: opInsert, table: table} }
func Update(table string) *Builder { return &Builder{kind: opUpdate, table: table} }
func Delete(table string) *Builder { return &Builder{kind: opDelete, table: table} }

// Columns sets the SELECT column list or the INSERT column list.
func (b *Builder) Columns(cols ...string) *Builder {
	b.columns = append(b.columns, cols...)
	return b
}

// Where adds a WHERE conjunct; multiple calls AND together.
func (b *Builder) Where(e Expr) *Builder {
	b.wheres = append(b.wheres, e)
	return b
}

// Values appends one VALUES tuple for an INSERT, in the same order as
// Columns.
func (b *Builder) Values(vals ...any) *Builder {
	b.values = append(b.values, vals)
	return b
}

// Set adds a column assignment for an UPDATE.
func (b *Builder) Set(col string, val any) *Builder {
	b.sets = append(b.sets, setClause{col: col, val: val})
	return b
}

// OrderBy sets the ORDER BY column and direction ("ASC" or "DESC").
func (b *Builder) OrderBy(col, dir string) *Builder {
	b.orderBy = col
	b.orderDir = dir
	return b
}

// Limit sets a row limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	b.hasLimit = true
	return b
}

// Suffix appends a raw trailing clause (e.g. "FOR UPDATE") after
// everything else. No current caller needs row locking, but the original
// implementation exposes this for completeness and so does this one.
func (b *Builder) Suffix(s string) *Builder {
	b.suffix = s
	return b
}

// Build renders the statement with Postgres positional placeholders
// ($1, $2, ...) and the flattened argument list in the same order.
func (b *Builder) Build() (string, []any, error) {
	switch b.kind {
	case opSelect:
		return b.buildSelect()
	case opInsert:
		return b.buildInsert()
	case opUpdate:
		return b.buildUpdate()
	case opDelete:
		return b.buildDelete()
	default:
		return "", nil, apperr.New(apperr.Internal, "unknown statement kind")
	}
}

func (b *Builder) whereSQL(args *[]any) string {
	if len(b.wheres) == 0 {
		return ""
	}
	clauses := make([]string, len(b.wheres))
	for i, w := range b.wheres {
		clauses[i] = w.clause
		*args = append(*args, w.args...)
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func (b *Builder) tailSQL() string {
	var sb strings.Builder
	if b.orderBy != "" {
		dir := b.orderDir
		if dir == "" {
			dir = "ASC"
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
		sb.WriteString(" ")
		sb.WriteString(dir)
	}
	if b.hasLimit {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}
	if b.suffix != "" {
		sb.WriteString(" ")
		sb.WriteString(b.suffix)
	}
	return sb.String()
}

func (b *Builder) buildSelect() (string, []any, error) {
	if len(b.columns) == 0 {
		return "", nil, apperr.New(apperr.Internal, "select statement has no columns")
	}
	var args []any
	sql := "SELECT " + strings.Join(b.columns, ", ") + " FROM " + b.table
	sql += b.whereSQL(&args)
	sql += b.tailSQL()
	return rewritePlaceholders(sql), args, nil
}

func (b *Builder) buildInsert() (string, []any, error) {
	if len(b.columns) == 0 || len(b.values) == 0 {
		return "", nil, apperr.New(apperr.Internal, "insert statement needs columns and at least one value tuple")
	}
	var args []any
	tuples := make([]string, len(b.values))
	for i, tuple := range b.values {
		if len(tuple) != len(b.columns) {
			return "", nil, apperr.New(apperr.Internal, "insert value tuple arity does not match columns")
		}
		placeholders := make([]string, len(tuple))
		for j := range tuple {
			placeholders[j] = "?"
		}
		tuples[i] = "(" + strings.Join(placeholders, ", ") + ")"
		args = append(args, tuple...)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", b.table, strings.Join(b.columns, ", "), strings.Join(tuples, ", "))
	sql += b.tailSQL()
	return rewritePlaceholders(sql), args, nil
}

func (b *Builder) buildUpdate() (string, []any, error) {
	if len(b.sets) == 0 {
		return "", nil, apperr.New(apperr.Internal, "update statement has no SET clauses")
	}
	var args []any
	assigns := make([]string, len(b.sets))
	for i, s := range b.sets {
		assigns[i] = s.col + " = ?"
		args = append(args, s.val)
	}
	sql := "UPDATE " + b.table + " SET " + strings.Join(assigns, ", ")
	sql += b.whereSQL(&args)
	sql += b.tailSQL()
	return rewritePlaceholders(sql), args, nil
}

func (b *Builder) buildDelete() (string, []any, error) {
	var args []any
	sql := "DELETE FROM " + b.table
	sql += b.whereSQL(&args)
	sql += b.tailSQL()
	return rewritePlaceholders(sql), args, nil
}

// rewritePlaceholders replaces each "?" with "$1", "$2", ... in
// left-to-right order, matching Postgres's positional parameter syntax.
func rewritePlaceholders(sql string) string {
	var sb strings.Builder
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
