// Package database executes column queries against one survey database.
//
// A Connection owns the reconciled schema and join graph of its database,
// both built once by NewConnection and never mutated, so a single
// Connection serves concurrent requests without locking. Each request runs
// on its own pooled connection and issues a single statement.
//
// Query turns a request into one SELECT:
//
//	SELECT <requested + index columns, aliased "table.column">
//	FROM <anchor table> JOIN <tables on the join path> ...
//	WHERE <every projected column IS NOT NULL>
//	  AND <compiled query tree>
//	  AND (<day_obs>, <seq_num>) IN (<data ids>)
//
// and returns column-oriented data keyed by qualified column name, in the
// row order the database produced.
package database
