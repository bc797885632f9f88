package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/surveydb/internal/querysql"
	"github.com/roach88/surveydb/internal/store"
)

// CalculateBounds returns the minimum and maximum of a column. The two
// aggregates run concurrently, each on its own connection.
func (c *Connection) CalculateBounds(ctx context.Context, column string) (Bounds, error) {
	col, err := c.schema.Column(column)
	if err != nil {
		c.log.Warn("invalid column for bounds", zap.String("column", column), zap.Error(err))
		return Bounds{}, err
	}
	ref := querysql.ColumnRef{Table: col.Table, Column: col.Name}

	var bounds Bounds
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.aggregate(gctx, ref, querysql.AggMin)
		bounds.Min = v
		return err
	})
	g.Go(func() error {
		v, err := c.aggregate(gctx, ref, querysql.AggMax)
		bounds.Max = v
		return err
	})
	if err := g.Wait(); err != nil {
		return Bounds{}, err
	}
	return bounds, nil
}

func (c *Connection) aggregate(ctx context.Context, ref querysql.ColumnRef, agg querysql.Aggregate) (any, error) {
	statement, params, err := c.compiler.Compile(&querysql.Select{
		Namespace: c.store.Namespace(),
		Columns:   []querysql.Projection{{Column: ref, Aggregate: agg}},
		From:      ref.Table,
	})
	if err != nil {
		return nil, err
	}

	conn, err := c.store.Conn(ctx)
	if err != nil {
		return nil, newStorageError(statement, err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, newStorageError(statement, err)
	}
	defer rows.Close()

	values, err := store.ReadRow(rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, newStorageError(statement, err)
	}
	if err != nil || values[0] == nil {
		c.log.Warn("empty aggregate", zap.String("column", ref.Qualified()), zap.String("aggregate", string(agg)))
		return nil, &ExecutionError{
			Code:      ErrCodeEmptyAggregate,
			Message:   fmt.Sprintf("could not calculate the %s of column %s", agg, ref.Qualified()),
			Statement: statement,
		}
	}
	return values[0], nil
}
