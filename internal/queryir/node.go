package queryir

import "strings"

// Node is a query expression tree node.
//
// This is a sealed interface - only *Comparison and *Combinator implement it.
type Node interface {
	queryNode()
}

// Operator is a comparison operator.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLe         Operator = "le"
	OpGt         Operator = "gt"
	OpGe         Operator = "ge"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
	OpContains   Operator = "contains"
)

// ParseOperator validates a comparison operator name.
func ParseOperator(name string) (Operator, bool) {
	op := Operator(name)
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpStartsWith, OpEndsWith, OpContains:
		return op, true
	}
	return "", false
}

// IsMatch reports whether the operator is a string match, which only applies
// to text columns.
func (op Operator) IsMatch() bool {
	return op == OpStartsWith || op == OpEndsWith || op == OpContains
}

// flip returns the operator that reads the same with its operands swapped,
// so that "v < column" becomes "column > v". String matches always test the
// column against the value and are returned unchanged.
func (op Operator) flip() Operator {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// BoolOp is a combinator operator.
type BoolOp string

const (
	And BoolOp = "AND"
	Or  BoolOp = "OR"
	Not BoolOp = "NOT"
	Xor BoolOp = "XOR"
)

// ParseBoolOp validates a combinator operator name. Matching is
// case-insensitive.
func ParseBoolOp(name string) (BoolOp, bool) {
	op := BoolOp(strings.ToUpper(name))
	switch op {
	case And, Or, Not, Xor:
		return op, true
	}
	return "", false
}

// Comparison is a leaf: "column operator value".
//
// Column is a qualified "table.column" reference, resolved at evaluation
// time. Value is nil, a string, a bool, an int64 or a float64.
type Comparison struct {
	Column   string
	Operator Operator
	Value    any
}

// Combinator combines its children with a boolean operator.
type Combinator struct {
	Operator BoolOp
	Children []Node
}

func (*Comparison) queryNode() {}
func (*Combinator) queryNode() {}

// All builds an AND combinator over the non-nil nodes. It returns nil when
// there are none and the node itself when there is exactly one.
func All(nodes ...Node) Node {
	var kept []Node
	for _, n := range nodes {
		if n != nil {
			kept = append(kept, n)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &Combinator{Operator: And, Children: kept}
	}
}
