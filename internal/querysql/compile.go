package querysql

import (
	"fmt"
	"strings"
)

// Compiler compiles Select statements and expressions to parameterized SQL.
//
// CRITICAL: values are NEVER interpolated; every literal becomes a
// placeholder and is returned in params.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a compiler for the given dialect.
func NewCompiler(dialect Dialect) *Compiler {
	return &Compiler{dialect: dialect}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// Compile converts a Select to SQL. Returns (sql, params, error).
func (c *Compiler) Compile(s *Select) (string, []any, error) {
	if s == nil {
		return "", nil, fmt.Errorf("cannot compile nil select")
	}
	if s.From == "" {
		return "", nil, fmt.Errorf("select has no FROM table")
	}
	if len(s.Columns) == 0 {
		return "", nil, fmt.Errorf("select has no columns")
	}

	b := &builder{dialect: c.dialect}

	cols := make([]string, len(s.Columns))
	for i, p := range s.Columns {
		col, err := b.projection(p)
		if err != nil {
			return "", nil, err
		}
		cols[i] = col
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table(s.Namespace, s.From))

	for _, j := range s.Joins {
		if len(j.On) == 0 {
			return "", nil, fmt.Errorf("join %q has no conditions", j.Table)
		}
		conds := make([]string, len(j.On))
		for i, on := range j.On {
			conds[i] = b.column(on.Left) + " = " + b.column(on.Right)
		}
		sb.WriteString(" JOIN ")
		sb.WriteString(b.table(s.Namespace, j.Table))
		sb.WriteString(" ON ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if s.Where != nil {
		where, err := b.top(s.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile where: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	return sb.String(), b.params, nil
}

// CompileExpr compiles a standalone expression. Placeholders are numbered
// from 1.
func (c *Compiler) CompileExpr(e Expr) (string, []any, error) {
	b := &builder{dialect: c.dialect}
	sql, err := b.top(e)
	if err != nil {
		return "", nil, err
	}
	return sql, b.params, nil
}

// builder accumulates parameters while a statement is rendered, so that
// numbered placeholders stay in order across clauses.
type builder struct {
	dialect Dialect
	params  []any
}

func (b *builder) bind(v any) string {
	b.params = append(b.params, v)
	return b.dialect.Placeholder(len(b.params))
}

func (b *builder) table(namespace, name string) string {
	if namespace == "" {
		return b.dialect.QuoteIdent(name)
	}
	return b.dialect.QuoteIdent(namespace) + "." + b.dialect.QuoteIdent(name)
}

func (b *builder) column(r ColumnRef) string {
	return b.dialect.QuoteIdent(r.Table) + "." + b.dialect.QuoteIdent(r.Column)
}

func (b *builder) projection(p Projection) (string, error) {
	col := b.column(p.Column)
	if p.Aggregate != AggNone {
		if _, err := ParseAggregate(string(p.Aggregate)); err != nil {
			return "", err
		}
		col = strings.ToUpper(string(p.Aggregate)) + "(" + col + ")"
	}
	return col + " AS " + b.dialect.QuoteIdent(p.Column.Qualified()), nil
}

// top renders an expression in a position that needs no enclosing
// parentheses: a top-level And is written as a bare conjunction.
func (b *builder) top(e Expr) (string, error) {
	if and, ok := e.(*And); ok && len(and.Exprs) > 1 {
		return b.join(and.Exprs, " AND ")
	}
	return b.expr(e)
}

func (b *builder) expr(e Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch x := e.(type) {
	case *Compare:
		return b.compare(x)
	case *Match:
		return b.match(x)
	case *ColumnEquals:
		return b.column(x.Left) + " = " + b.column(x.Right), nil
	case *IsNull:
		return b.column(x.Column) + " IS NULL", nil
	case *NotNull:
		return b.column(x.Column) + " IS NOT NULL", nil
	case *InTuple:
		return b.inTuple(x)
	case *And:
		return b.connective(x.Exprs, " AND ", "1 = 1")
	case *Or:
		return b.connective(x.Exprs, " OR ", "1 = 0")
	case *Not:
		inner, err := b.top(x.Expr)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (b *builder) compare(c *Compare) (string, error) {
	if !c.Op.valid() {
		return "", fmt.Errorf("unsupported comparison operator %q", c.Op)
	}
	if c.Value == nil {
		return "", fmt.Errorf("comparison of %s with NULL: use IsNull or NotNull", c.Column.Qualified())
	}
	return b.column(c.Column) + " " + string(c.Op) + " " + b.bind(c.Value), nil
}

// likeEscaper escapes LIKE wildcards so the pattern is matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (b *builder) match(m *Match) (string, error) {
	p := likeEscaper.Replace(m.Pattern)
	switch m.Kind {
	case MatchPrefix:
		p = p + "%"
	case MatchSuffix:
		p = "%" + p
	case MatchContains:
		p = "%" + p + "%"
	default:
		return "", fmt.Errorf("unsupported match kind %v", m.Kind)
	}
	return b.column(m.Column) + " LIKE " + b.bind(p) + ` ESCAPE '\'`, nil
}

func (b *builder) inTuple(in *InTuple) (string, error) {
	if len(in.Columns) == 0 {
		return "", fmt.Errorf("tuple membership test has no columns")
	}
	if len(in.Rows) == 0 {
		return "1 = 0", nil
	}

	if len(in.Columns) == 1 {
		values := make([]string, len(in.Rows))
		for i, row := range in.Rows {
			if len(row) != 1 {
				return "", fmt.Errorf("row %d has %d values, want 1", i, len(row))
			}
			values[i] = b.bind(row[0])
		}
		return b.column(in.Columns[0]) + " IN (" + strings.Join(values, ", ") + ")", nil
	}

	cols := make([]string, len(in.Columns))
	for i, c := range in.Columns {
		cols[i] = b.column(c)
	}
	rows := make([]string, len(in.Rows))
	for i, row := range in.Rows {
		if len(row) != len(in.Columns) {
			return "", fmt.Errorf("row %d has %d values, want %d", i, len(row), len(in.Columns))
		}
		values := make([]string, len(row))
		for j, v := range row {
			values[j] = b.bind(v)
		}
		rows[i] = "(" + strings.Join(values, ", ") + ")"
	}
	return "(" + strings.Join(cols, ", ") + ") IN (VALUES " + strings.Join(rows, ", ") + ")", nil
}

func (b *builder) connective(exprs []Expr, sep, empty string) (string, error) {
	switch len(exprs) {
	case 0:
		return empty, nil
	case 1:
		return b.expr(exprs[0])
	}
	joined, err := b.join(exprs, sep)
	if err != nil {
		return "", err
	}
	return "(" + joined + ")", nil
}

func (b *builder) join(exprs []Expr, sep string) (string, error) {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		s, err := b.expr(e)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}
