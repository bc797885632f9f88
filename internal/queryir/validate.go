package queryir

import (
	"fmt"
)

// ValidationResult lists the surprising constructs found in a query tree.
//
// Trees with warnings still evaluate; the warnings point at shapes whose
// meaning differs from what a reader might expect.
type ValidationResult struct {
	// Clean is true when there are no warnings.
	Clean bool

	Warnings []string

	// Columns lists every column reference in the tree, in first-seen order.
	Columns []string
}

// Validate walks a query tree without a schema.
//
// Warnings:
//  1. NOT with several children negates their conjunction
//  2. XOR with more than two children is "some but not all", not parity
//  3. XOR with a single child never matches
//  4. A range (both bounds on one column) that can never match
//
// Validate is a pure function with no side effects.
func Validate(node Node) ValidationResult {
	v := &validator{
		warnings: []string{},
		seen:     map[string]bool{},
	}
	v.validateNode(node)

	return ValidationResult{
		Clean:    len(v.warnings) == 0,
		Warnings: v.warnings,
		Columns:  v.columns,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
	columns  []string
	seen     map[string]bool
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateNode(n Node) {
	if n == nil {
		v.addWarning("nil query node")
		return
	}

	switch node := n.(type) {
	case *Comparison:
		if !v.seen[node.Column] {
			v.seen[node.Column] = true
			v.columns = append(v.columns, node.Column)
		}
	case *Combinator:
		v.validateCombinator(node)
	default:
		v.addWarning("unknown query node type: %T", n)
	}
}

func (v *validator) validateCombinator(c *Combinator) {
	switch {
	case c.Operator == Not && len(c.Children) > 1:
		v.addWarning("NOT over %d children negates their conjunction, not each child", len(c.Children))
	case c.Operator == Xor && len(c.Children) == 1:
		v.addWarning("XOR with a single child never matches")
	case c.Operator == Xor && len(c.Children) > 2:
		v.addWarning("XOR over %d children matches when some but not all children match", len(c.Children))
	case c.Operator == And && len(c.Children) == 2:
		v.checkRange(c)
	}

	for _, child := range c.Children {
		v.validateNode(child)
	}
}

// checkRange flags "lo < column < hi" pairs with lo >= hi.
func (v *validator) checkRange(c *Combinator) {
	a, ok1 := c.Children[0].(*Comparison)
	b, ok2 := c.Children[1].(*Comparison)
	if !ok1 || !ok2 || a.Column != b.Column {
		return
	}
	lower, upper := a, b
	if isUpper(a.Operator) && isLower(b.Operator) {
		lower, upper = b, a
	}
	if !isLower(lower.Operator) || !isUpper(upper.Operator) {
		return
	}
	lo, ok1 := number(lower.Value)
	hi, ok2 := number(upper.Value)
	if !ok1 || !ok2 {
		return
	}
	if lo > hi || (lo == hi && (lower.Operator == OpGt || upper.Operator == OpLt)) {
		v.addWarning("range on %s can never match: lower bound %v, upper bound %v", a.Column, lower.Value, upper.Value)
	}
}

func isLower(op Operator) bool { return op == OpGt || op == OpGe }
func isUpper(op Operator) bool { return op == OpLt || op == OpLe }

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
