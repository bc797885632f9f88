package querysql

import (
	"fmt"
	"strings"
)

// Aggregate is an aggregate function applied to a projected column.
type Aggregate string

const (
	AggNone  Aggregate = ""
	AggCount Aggregate = "count"
	AggSum   Aggregate = "sum"
	AggAvg   Aggregate = "avg"
	AggMin   Aggregate = "min"
	AggMax   Aggregate = "max"
)

// ParseAggregate validates an aggregator name. The empty string means no
// aggregation.
func ParseAggregate(name string) (Aggregate, error) {
	agg := Aggregate(strings.ToLower(name))
	switch agg {
	case AggNone, AggCount, AggSum, AggAvg, AggMin, AggMax:
		return agg, nil
	default:
		return "", fmt.Errorf("unsupported aggregator %q", name)
	}
}

// Projection is one output column of a Select. The output is always aliased
// to the column's qualified name.
type Projection struct {
	Column    ColumnRef
	Aggregate Aggregate
}

// Join is one "JOIN table ON ..." clause. The conditions are ANDed.
type Join struct {
	Table string
	On    []ColumnEquals
}

// Select is a single SELECT statement.
//
// Semantics:
//
//	SELECT <columns> FROM <from> [JOIN <table> ON <on>]... [WHERE <where>]
//
// Rows come back in whatever order the database produces them; there is no
// ORDER BY.
type Select struct {
	// Namespace, when set, qualifies the tables in FROM and JOIN clauses
	// (a PostgreSQL schema such as "cdb_latiss").
	Namespace string
	Columns   []Projection
	From      string
	Joins     []Join
	Where     Expr
}
