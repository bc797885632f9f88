// Package querysql defines the relational intermediate representation that
// query trees compile into, and the compiler that turns it into
// parameterized SQL.
//
// ARCHITECTURE:
//
//	[wire query] → [queryir.Node] → [querysql.Expr] → [SQL text + params]
//	                                        ↑
//	            [joingraph.Plan] → [querysql.Select]
//
// The IR is deliberately small: column comparisons, string matches,
// column-to-column equalities (join conditions), null tests, tuple
// membership, and the boolean connectives. Everything a query tree or a
// join plan can express maps onto it, and nothing else is allowed in.
//
// SEALED INTERFACE:
//
// Expr is sealed with a marker method, so the compiler's type switch is
// exhaustive over the types in this package.
//
// PARAMETERS:
//
// Literal values are never interpolated into SQL text. Every value becomes a
// placeholder in the dialect's style ("?" for SQLite, "$n" for PostgreSQL)
// and is returned in the params slice, in placeholder order.
//
// IDENTIFIERS:
//
// Table and column names come from the schema, never from the client, but
// are still quoted so that names such as "dec" or "group" are safe. Every
// projected column is aliased to its qualified "table.column" name so that
// columns with the same name in different tables do not collide.
package querysql
