package querysql

import "fmt"

// Expr is a boolean SQL expression.
//
// This is a sealed interface; only types in this package implement it.
//
// Expr types:
//   - Compare: column <op> value
//   - Match: column LIKE pattern (prefix, suffix or substring)
//   - ColumnEquals: column = column (join conditions)
//   - IsNull / NotNull: null tests
//   - InTuple: (columns...) IN (rows...)
//   - And / Or / Not: boolean connectives
type Expr interface {
	exprNode()
}

// ColumnRef names a column of a table.
type ColumnRef struct {
	Table  string
	Column string
}

// Qualified returns the "table.column" form of the reference.
func (r ColumnRef) Qualified() string {
	return r.Table + "." + r.Column
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

func (op CompareOp) valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Compare is "column op value". Value must not be nil; use IsNull or NotNull
// to test for NULL.
type Compare struct {
	Column ColumnRef
	Op     CompareOp
	Value  any
}

// MatchKind selects where the pattern must occur in the column value.
type MatchKind int

const (
	MatchPrefix MatchKind = iota
	MatchSuffix
	MatchContains
)

func (k MatchKind) String() string {
	switch k {
	case MatchPrefix:
		return "prefix"
	case MatchSuffix:
		return "suffix"
	case MatchContains:
		return "contains"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// Match is a LIKE test. Pattern is matched literally: LIKE wildcards in it
// are escaped by the compiler.
type Match struct {
	Column  ColumnRef
	Kind    MatchKind
	Pattern string
}

// ColumnEquals is "left = right" between two columns.
type ColumnEquals struct {
	Left  ColumnRef
	Right ColumnRef
}

// IsNull is "column IS NULL".
type IsNull struct {
	Column ColumnRef
}

// NotNull is "column IS NOT NULL".
type NotNull struct {
	Column ColumnRef
}

// InTuple is "(columns...) IN (rows...)". Every row must have one value per
// column. An empty Rows list matches nothing.
type InTuple struct {
	Columns []ColumnRef
	Rows    [][]any
}

// And is true when every child is true. An empty And is true.
type And struct {
	Exprs []Expr
}

// Or is true when at least one child is true. An empty Or is false.
type Or struct {
	Exprs []Expr
}

// Not negates its child.
type Not struct {
	Expr Expr
}

func (*Compare) exprNode()      {}
func (*Match) exprNode()        {}
func (*ColumnEquals) exprNode() {}
func (*IsNull) exprNode()       {}
func (*NotNull) exprNode()      {}
func (*InTuple) exprNode()      {}
func (*And) exprNode()          {}
func (*Or) exprNode()           {}
func (*Not) exprNode()          {}

// AllOf builds an And over the non-nil expressions. It returns nil when there
// are none and the expression itself when there is exactly one.
func AllOf(exprs ...Expr) Expr {
	var kept []Expr
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &And{Exprs: kept}
	}
}
