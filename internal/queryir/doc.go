// Package queryir is the query expression tree clients send to filter rows.
//
// A tree is built from its wire form (Decode, FromMap), checked eagerly for
// structural errors, and evaluated exactly once against a schema (Evaluate)
// into a querysql.Expr plus the set of tables it touches. The execution
// engine uses that table set to extend the join.
//
// SEALED INTERFACE:
//
// Node is sealed with a marker method. The only implementations are
// *Comparison and *Combinator, so Evaluate's type switch is exhaustive.
//
//	switch n := node.(type) {
//	case *Comparison:
//	    // leaf
//	case *Combinator:
//	    // AND / OR / NOT / XOR over children
//	}
//
// WIRE FORMAT:
//
//	{"type": "EqualityQuery", "field": {"schema": <table>, "name": <column>},
//	 "leftOperator"?: op, "leftValue"?: v, "rightOperator"?: op, "rightValue"?: v}
//	{"type": "ParentQuery", "operator": "AND"|"OR"|"NOT"|"XOR", "children": [...]}
//
// A left comparison reads "leftValue leftOperator column", a right one
// "column rightOperator rightValue". When both are present the node is an
// implicit AND of the two, which is how the dashboard sends range filters.
//
// The older envelope {"name": "EqualityQuery"|"ParentQuery", "content": {...}}
// with content {"column", "operator", "value"} or {"operator", "children"} is
// also accepted.
//
// COMBINATOR SEMANTICS:
//
//	AND(c...) = c1 AND ... AND cn
//	OR(c...)  = c1 OR ... OR cn
//	NOT(c...) = NOT (c1 AND ... AND cn)
//	XOR(c...) = OR(c...) AND NOT AND(c...)
//
// XOR is "at least one but not all", not parity. NOT over several children
// negates their conjunction; Validate reports both shapes as warnings.
package queryir
