// Package schema holds the in-memory model of one survey database: its
// tables, their columns and index columns, and the join templates that
// declare which tables are equi-joinable.
//
// Columns are addressed externally only as qualified "table.column"
// strings. Every lookup goes through ParseQualified and an explicit
// name-to-descriptor map built once when the schema is constructed, so an
// unknown name is rejected with a typed error instead of surfacing later as
// a database failure.
//
// A Schema is immutable after New returns. Reconcile produces a new Schema
// trimmed to what the live database actually contains; the original is left
// untouched. Both are safe for concurrent readers.
package schema
