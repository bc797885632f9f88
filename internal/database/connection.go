package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/joingraph"
	"github.com/roach88/surveydb/internal/querysql"
	"github.com/roach88/surveydb/internal/schema"
	"github.com/roach88/surveydb/internal/store"
)

// Connection serves queries for one database.
type Connection struct {
	store    *store.Store
	schema   *schema.Schema
	graph    *joingraph.Graph
	compiler *querysql.Compiler
	log      *zap.Logger
}

// NewConnection reconciles the declared schema with the live database and
// builds the join graph. Tables and columns the database does not have are
// dropped with a warning.
func NewConnection(ctx context.Context, st *store.Store, declared *schema.Schema, log *zap.Logger) (*Connection, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("database", declared.Name))

	live, err := st.Tables(ctx)
	if err != nil {
		return nil, &ExecutionError{
			Code:    ErrCodeIntrospection,
			Message: "could not list the tables of " + declared.Name,
			Err:     err,
		}
	}

	reconciled, err := declared.Reconcile(live)
	if err != nil {
		return nil, err
	}

	graph := joingraph.New(reconciled.Joins, log)
	if groups := graph.Components(reconciled.TableNames()); len(groups) > 1 {
		for _, g := range groups[1:] {
			log.Info("tables cannot be joined with the first table group",
				zap.Strings("tables", g),
				zap.Strings("first_group", groups[0]),
			)
		}
	}

	log.Info("database ready",
		zap.String("dialect", st.Dialect().String()),
		zap.Int("tables", len(reconciled.Tables)),
		zap.Int("joins", len(reconciled.Joins)),
	)

	return &Connection{
		store:    st,
		schema:   reconciled,
		graph:    graph,
		compiler: querysql.NewCompiler(st.Dialect()),
		log:      log,
	}, nil
}

// Name returns the database name.
func (c *Connection) Name() string {
	return c.schema.Name
}

// Schema returns the reconciled schema.
func (c *Connection) Schema() *schema.Schema {
	return c.schema
}

// Graph returns the join graph.
func (c *Connection) Graph() *joingraph.Graph {
	return c.graph
}

// TableNames returns the names of the tables that are both declared and
// deployed.
func (c *Connection) TableNames() []string {
	return c.schema.TableNames()
}

// DataID returns the identifier of a table of this database.
func (c *Connection) DataID(table string) TableID {
	return TableID{Database: c.schema.Name, Table: table}
}

// SelectionID returns how rows of a table are identified.
func (c *Connection) SelectionID(table string) (SelectionID, error) {
	columns, err := c.schema.IndexColumns(table)
	if err != nil {
		return SelectionID{}, err
	}
	return SelectionID{TableID: c.DataID(table), Columns: columns}, nil
}

// DayObsColumn returns the day_obs column that filters rows of table: the
// table's own when it has one, otherwise that of the nearest joinable table.
func (c *Connection) DayObsColumn(table string) (string, error) {
	if _, err := c.schema.Table(table); err != nil {
		return "", err
	}
	found, ok := c.graph.Nearest(table, func(t string) bool {
		_, err := c.schema.Column(schema.Qualify(t, "day_obs"))
		return err == nil
	})
	if !ok {
		return "", &joingraph.JoinPathError{From: table, Reason: "no joinable table has a day_obs column"}
	}
	return schema.Qualify(found, "day_obs"), nil
}
