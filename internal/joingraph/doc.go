// Package joingraph finds the joins that connect a set of tables.
//
// The graph is built once per database from the schema's join templates and
// is read-only afterwards. Each template adds an edge in both directions; the
// reverse edge carries the mirrored column pairs, so traversal from either
// end reads the conditions in its own order.
//
// Resolve anchors on the first requested table and runs a breadth-first
// search from it to every other table. Neighbours are visited in edge
// insertion order, so the first path discovered wins; there is no
// weighting. Intermediate tables on a path are joined even when the caller
// did not ask for them, and a table already in the plan is never joined
// twice.
//
// When two templates connect the same pair of tables the later one replaces
// the earlier, keeping the earlier edge's position in the neighbour order.
package joingraph
