package queryir

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/querysql"
	"github.com/roach88/surveydb/internal/schema"
)

// Tables is the set of table names a tree touches.
type Tables map[string]struct{}

func (t Tables) add(name string) {
	t[name] = struct{}{}
}

func (t Tables) merge(other Tables) {
	for name := range other {
		t[name] = struct{}{}
	}
}

// Evaluate compiles a query tree against a schema. It returns the predicate
// and the union of every table referenced anywhere in the tree.
//
// Column references that do not resolve fail with the schema's
// *InvalidReferenceError; everything else that is wrong with the tree is a
// *QueryError.
func Evaluate(node Node, s *schema.Schema) (querysql.Expr, Tables, error) {
	if node == nil {
		return nil, nil, &QueryError{Reason: "nil query node"}
	}

	switch n := node.(type) {
	case *Comparison:
		return evaluateComparison(n, s)
	case *Combinator:
		return evaluateCombinator(n, s)
	default:
		return nil, nil, &QueryError{Reason: fmt.Sprintf("unsupported query node type %T", node)}
	}
}

func evaluateComparison(c *Comparison, s *schema.Schema) (querysql.Expr, Tables, error) {
	col, err := s.Column(c.Column)
	if err != nil {
		return nil, nil, err
	}
	ref := querysql.ColumnRef{Table: col.Table, Column: col.Name}
	tables := Tables{col.Table: {}}

	fail := func(format string, args ...any) (querysql.Expr, Tables, error) {
		qe := queryErrorf(c, format, args...)
		s.Logger().Debug("invalid comparison",
			zap.String("column", c.Column),
			zap.String("operator", string(c.Operator)),
			zap.String("reason", qe.Reason),
		)
		return nil, nil, qe
	}

	if c.Operator.IsMatch() {
		if !col.IsText() {
			return fail("operator %q only applies to text columns, %s is %s", c.Operator, c.Column, col.DataType)
		}
		pattern, ok := c.Value.(string)
		if !ok {
			return fail("operator %q needs a string value", c.Operator)
		}
		kind := querysql.MatchContains
		switch c.Operator {
		case OpStartsWith:
			kind = querysql.MatchPrefix
		case OpEndsWith:
			kind = querysql.MatchSuffix
		}
		return &querysql.Match{Column: ref, Kind: kind, Pattern: pattern}, tables, nil
	}

	var op querysql.CompareOp
	switch c.Operator {
	case OpEq:
		op = querysql.OpEq
	case OpNe:
		op = querysql.OpNe
	case OpLt:
		op = querysql.OpLt
	case OpLe:
		op = querysql.OpLe
	case OpGt:
		op = querysql.OpGt
	case OpGe:
		op = querysql.OpGe
	default:
		return fail("unrecognized operator %q", c.Operator)
	}

	if c.Value == nil {
		switch op {
		case querysql.OpEq:
			return &querysql.IsNull{Column: ref}, tables, nil
		case querysql.OpNe:
			return &querysql.NotNull{Column: ref}, tables, nil
		default:
			return fail("operator %q cannot compare with null", c.Operator)
		}
	}

	return &querysql.Compare{Column: ref, Op: op, Value: c.Value}, tables, nil
}

func evaluateCombinator(c *Combinator, s *schema.Schema) (querysql.Expr, Tables, error) {
	if len(c.Children) == 0 {
		return nil, nil, queryErrorf(c, "%s combinator has no children", c.Operator)
	}

	exprs := make([]querysql.Expr, len(c.Children))
	tables := Tables{}
	for i, child := range c.Children {
		expr, childTables, err := Evaluate(child, s)
		if err != nil {
			return nil, nil, err
		}
		exprs[i] = expr
		tables.merge(childTables)
	}

	switch c.Operator {
	case And:
		return &querysql.And{Exprs: exprs}, tables, nil
	case Or:
		return &querysql.Or{Exprs: exprs}, tables, nil
	case Not:
		return &querysql.Not{Expr: &querysql.And{Exprs: exprs}}, tables, nil
	case Xor:
		return &querysql.And{Exprs: []querysql.Expr{
			&querysql.Or{Exprs: exprs},
			&querysql.Not{Expr: &querysql.And{Exprs: exprs}},
		}}, tables, nil
	default:
		return nil, nil, queryErrorf(c, "unrecognized combinator %q", c.Operator)
	}
}
