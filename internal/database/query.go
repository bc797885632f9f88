package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/queryir"
	"github.com/roach88/surveydb/internal/querysql"
	"github.com/roach88/surveydb/internal/schema"
	"github.com/roach88/surveydb/internal/store"
)

// Query runs a column query. See the package documentation for the shape of
// the statement.
func (c *Connection) Query(ctx context.Context, req Request) (*Result, error) {
	stmt, err := c.Build(req)
	if err != nil {
		return nil, err
	}

	sql, params, err := c.compiler.Compile(stmt)
	if err != nil {
		return nil, fmt.Errorf("compile statement: %w", err)
	}

	conn, err := c.store.Conn(ctx)
	if err != nil {
		return nil, newStorageError(sql, err)
	}
	defer conn.Close()

	start := time.Now()
	rows, err := conn.QueryContext(ctx, sql, params...)
	if err != nil {
		c.log.Error("query failed", zap.String("sql", sql), zap.String("cause", store.Describe(err)))
		return nil, newStorageError(sql, err)
	}
	defer rows.Close()

	result := &Result{}
	if stmt.Columns[0].Aggregate != querysql.AggNone {
		values, err := store.ReadRow(rows)
		if err != nil {
			return nil, newStorageError(sql, err)
		}
		result.Aggregates = make(map[string]any, len(values))
		for i, p := range stmt.Columns {
			result.Columns = append(result.Columns, p.Column.Qualified())
			result.Aggregates[p.Column.Qualified()] = values[i]
		}
	} else {
		columns, data, err := store.ReadColumns(rows)
		if err != nil {
			return nil, newStorageError(sql, err)
		}
		result.Columns = columns
		result.Data = data
	}

	c.log.Debug("query complete",
		zap.Strings("columns", result.Columns),
		zap.Int("joins", len(stmt.Joins)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Build assembles the statement for a request without running it.
func (c *Connection) Build(req Request) (*querysql.Select, error) {
	agg, err := querysql.ParseAggregate(req.Aggregator)
	if err != nil {
		return nil, &queryir.QueryError{Reason: err.Error()}
	}

	columns, err := c.expandColumns(req.Columns)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &queryir.QueryError{Reason: "no columns requested"}
	}

	// Requested columns, grouped by table in first-seen order.
	var tables []string
	var projected []querysql.ColumnRef
	seen := map[string]bool{}
	for _, ref := range columns {
		col, err := c.schema.Column(ref)
		if err != nil {
			c.log.Warn("invalid column in request", zap.String("column", ref), zap.Error(err))
			return nil, err
		}
		if seen[col.Qualified()] {
			continue
		}
		seen[col.Qualified()] = true
		if !contains(tables, col.Table) {
			tables = append(tables, col.Table)
		}
		projected = append(projected, querysql.ColumnRef{Table: col.Table, Column: col.Name})
	}

	// Index columns keep rows identifiable on the client. An aggregate has
	// no rows to identify.
	if agg == querysql.AggNone {
		for _, table := range tables {
			index, err := c.schema.IndexColumns(table)
			if err != nil {
				return nil, err
			}
			for _, name := range index {
				if seen[schema.Qualify(table, name)] {
					continue
				}
				seen[schema.Qualify(table, name)] = true
				projected = append(projected, querysql.ColumnRef{Table: table, Column: name})
			}
		}
	}

	guards := make([]querysql.Expr, len(projected))
	for i, ref := range projected {
		guards[i] = &querysql.NotNull{Column: ref}
	}

	var predicate querysql.Expr
	if req.Query != nil {
		for _, w := range queryir.Validate(req.Query).Warnings {
			c.log.Debug("query tree warning", zap.String("warning", w))
		}
		expr, touched, err := queryir.Evaluate(req.Query, c.schema)
		if err != nil {
			c.log.Warn("invalid query tree", zap.Error(err))
			return nil, err
		}
		predicate = expr
		tables = appendSorted(tables, touched)
	}

	var ids querysql.Expr
	if len(req.DataIDs) > 0 {
		ids, err = c.dataIDFilter(tables[0], req.DataIDs)
		if err != nil {
			return nil, err
		}
	}

	plan, err := c.graph.Resolve(tables)
	if err != nil {
		return nil, err
	}
	if err := plan.Check(c.schema); err != nil {
		return nil, err
	}

	stmt := &querysql.Select{
		Namespace: c.store.Namespace(),
		From:      plan.Base,
		Joins:     plan.Joins(),
		Where:     querysql.AllOf(append(guards, predicate, ids)...),
	}
	for _, ref := range projected {
		stmt.Columns = append(stmt.Columns, querysql.Projection{Column: ref, Aggregate: agg})
	}
	return stmt, nil
}

// expandColumns turns a lone table name into all of that table's columns.
func (c *Connection) expandColumns(columns []string) ([]string, error) {
	if len(columns) != 1 || strings.Contains(columns[0], ".") {
		return columns, nil
	}
	table, err := c.schema.Table(columns[0])
	if err != nil {
		return nil, err
	}
	out := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		out[i] = col.Qualified()
	}
	return out, nil
}

// dataIDFilter restricts rows of table to the given (day_obs, seq_num)
// pairs.
func (c *Connection) dataIDFilter(table string, ids []DataID) (querysql.Expr, error) {
	var refs []querysql.ColumnRef
	for _, name := range []string{"day_obs", "seq_num"} {
		col, err := c.schema.Column(schema.Qualify(table, name))
		if err != nil {
			return nil, &queryir.QueryError{Reason: fmt.Sprintf("table %s has no %s column to filter data ids on", table, name)}
		}
		refs = append(refs, querysql.ColumnRef{Table: col.Table, Column: col.Name})
	}

	rows := make([][]any, len(ids))
	for i, id := range ids {
		rows[i] = []any{id.DayObs, id.SeqNum}
	}
	return &querysql.InTuple{Columns: refs, Rows: rows}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// appendSorted appends the members of set missing from list, in sorted
// order so that the join plan does not depend on map iteration.
func appendSorted(list []string, set queryir.Tables) []string {
	var extra []string
	for t := range set {
		if !contains(list, t) {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(list, extra...)
}
