package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/surveydb/internal/database"
	"github.com/roach88/surveydb/internal/queryir"
)

// Command names and their response types.
const (
	CommandLoadColumns = "load columns"
	CommandGetBounds   = "get bounds"
	CommandLoadSchema  = "load schema"

	ResponseTableColumns   = "table columns"
	ResponseColumnBounds   = "column bounds"
	ResponseDatabaseSchema = "database schema"
)

func registerDatabaseCommands(commands map[string]definition) {
	register(commands, CommandLoadColumns, ResponseTableColumns, loadColumns)
	register(commands, CommandGetBounds, ResponseColumnBounds, getBounds)
	register(commands, CommandLoadSchema, ResponseDatabaseSchema, loadSchema)
}

// LoadColumnsParams are the parameters of "load columns".
type LoadColumnsParams struct {
	// Database is the configured database name.
	Database string `json:"database"`

	// Columns are "table.column" names, or a single table name to load all
	// of that table's columns.
	Columns []string `json:"columns"`

	// Query selects rows for one widget. Optional.
	Query any `json:"query,omitempty"`

	// GlobalQuery selects rows for every widget of the client's workspace.
	// It is ANDed with Query. Optional.
	GlobalQuery any `json:"global_query,omitempty"`

	// DayObs ("YYYY-MM-DD") restricts rows to one observing night.
	DayObs string `json:"day_obs,omitempty"`

	// DataIDs restricts rows to these (day_obs, seq_num) pairs.
	DataIDs []database.DataID `json:"data_ids,omitempty"`

	// Aggregator is one of count, sum, avg, min or max.
	Aggregator string `json:"aggregator,omitempty"`
}

func (p *LoadColumnsParams) validate() error {
	if p.Database == "" {
		return errors.New("missing parameter 'database'")
	}
	if len(p.Columns) == 0 {
		return errors.New("missing parameter 'columns'")
	}
	return nil
}

// TableColumns is the content of a "table columns" response. Data maps each
// column to its values, or to a single aggregate value when an aggregator
// was given.
type TableColumns struct {
	Schema  string   `json:"schema"`
	Columns []string `json:"columns"`
	Data    any      `json:"data"`
}

func loadColumns(ctx context.Context, d *Dispatcher, p *LoadColumnsParams) (any, error) {
	conn, err := d.database(p.Database)
	if err != nil {
		return nil, err
	}

	var query, global, night queryir.Node
	if p.Query != nil {
		if query, err = queryir.FromValue(p.Query); err != nil {
			return nil, err
		}
	}
	if p.GlobalQuery != nil {
		if global, err = queryir.FromValue(p.GlobalQuery); err != nil {
			return nil, err
		}
	}
	if p.DayObs != "" {
		if night, err = dayObsQuery(conn, p.DayObs, p.Columns[0]); err != nil {
			return nil, err
		}
	}

	result, err := conn.Query(ctx, database.Request{
		Columns:    p.Columns,
		Query:      queryir.All(query, global, night),
		DataIDs:    p.DataIDs,
		Aggregator: p.Aggregator,
	})
	if err != nil {
		return nil, err
	}

	content := TableColumns{Schema: p.Database, Columns: result.Columns, Data: result.Data}
	if result.Aggregates != nil {
		content.Data = result.Aggregates
	}
	return content, nil
}

// dayObsQuery selects one observing night on the day_obs column that
// governs the table of the first requested column.
func dayObsQuery(conn *database.Connection, dayObs, firstColumn string) (queryir.Node, error) {
	value, err := ParseDayObs(dayObs)
	if err != nil {
		return nil, err
	}
	table, _, _ := strings.Cut(firstColumn, ".")
	column, err := conn.DayObsColumn(table)
	if err != nil {
		return nil, err
	}
	return &queryir.Comparison{Column: column, Operator: queryir.OpEq, Value: value}, nil
}

// ParseDayObs converts "YYYY-MM-DD" (or "YYYYMMDD") to the integer day_obs
// stored in the database, e.g. 20230519.
func ParseDayObs(s string) (int64, error) {
	var day time.Time
	var err error
	if strings.Contains(s, "-") {
		day, err = time.Parse("2006-01-02", s)
	} else {
		day, err = time.Parse("20060102", s)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid day_obs %q: expected YYYY-MM-DD", s)
	}
	return int64(day.Year()*10000 + int(day.Month())*100 + day.Day()), nil
}

// GetBoundsParams are the parameters of "get bounds".
type GetBoundsParams struct {
	Database string `json:"database"`
	Column   string `json:"column"`
}

func (p *GetBoundsParams) validate() error {
	if p.Database == "" {
		return errors.New("missing parameter 'database'")
	}
	if p.Column == "" {
		return errors.New("missing parameter 'column'")
	}
	return nil
}

// ColumnBounds is the content of a "column bounds" response.
type ColumnBounds struct {
	Column string          `json:"column"`
	Bounds database.Bounds `json:"bounds"`
}

func getBounds(ctx context.Context, d *Dispatcher, p *GetBoundsParams) (any, error) {
	conn, err := d.database(p.Database)
	if err != nil {
		return nil, err
	}
	bounds, err := conn.CalculateBounds(ctx, p.Column)
	if err != nil {
		return nil, err
	}
	return ColumnBounds{Column: p.Column, Bounds: bounds}, nil
}

// LoadSchemaParams are the parameters of "load schema".
type LoadSchemaParams struct {
	Database string `json:"database"`
}

func (p *LoadSchemaParams) validate() error {
	if p.Database == "" {
		return errors.New("missing parameter 'database'")
	}
	return nil
}

func loadSchema(_ context.Context, d *Dispatcher, p *LoadSchemaParams) (any, error) {
	conn, err := d.database(p.Database)
	if err != nil {
		return nil, err
	}
	return conn.Schema().Describe(), nil
}
