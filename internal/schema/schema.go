package schema

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// DataType is the normalised type tag of a column.
type DataType string

const (
	TypeInteger  DataType = "integer"
	TypeReal     DataType = "real"
	TypeText     DataType = "text"
	TypeDateTime DataType = "datetime"
	TypeBinary   DataType = "binary"
	// TypeOther tags columns whose declared datatype is not recognised.
	// They can be selected and compared for equality but never matched
	// as text.
	TypeOther DataType = "other"
)

// ParseDataType maps a datatype name from a schema document onto a DataType.
// Both the felis-style names ("long", "double", "char") and the normalised
// names are accepted.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(name) {
	case "int", "long", "short", "byte", "boolean", "bool", "integer":
		return TypeInteger, nil
	case "float", "double", "real":
		return TypeReal, nil
	case "char", "string", "text", "unicode":
		return TypeText, nil
	case "date", "datetime", "timestamp":
		return TypeDateTime, nil
	case "binary":
		return TypeBinary, nil
	default:
		return "", fmt.Errorf("unsupported datatype %q", name)
	}
}

// Column describes one column of a table.
type Column struct {
	Name        string
	Table       string
	DataType    DataType
	Description string
	Unit        string
}

// Qualified returns the "table.column" name of the column.
func (c *Column) Qualified() string {
	return Qualify(c.Table, c.Name)
}

// IsText reports whether string matching operators apply to the column.
func (c *Column) IsText() bool {
	return c.DataType == TypeText
}

// Table describes one table. IndexColumns is the minimal tuple that
// identifies a row; it is always returned to the client.
type Table struct {
	Name         string
	Description  string
	Columns      []*Column
	IndexColumns []string

	byName map[string]*Column
}

// NewTable builds a table and indexes its columns. The Table field of every
// column is overwritten with name.
func NewTable(name string, columns []*Column, indexColumns []string) (*Table, error) {
	t := &Table{
		Name:         name,
		Columns:      columns,
		IndexColumns: indexColumns,
		byName:       make(map[string]*Column, len(columns)),
	}
	for _, col := range columns {
		col.Table = name
		if _, dup := t.byName[col.Name]; dup {
			return nil, fmt.Errorf("table %q: duplicate column %q", name, col.Name)
		}
		t.byName[col.Name] = col
	}
	for _, idx := range indexColumns {
		if _, ok := t.byName[idx]; !ok {
			return nil, fmt.Errorf("table %q: index column %q is not a column of the table", name, idx)
		}
	}
	return t, nil
}

// Column looks up a column of the table by its bare name.
func (t *Table) Column(name string) (*Column, bool) {
	col, ok := t.byName[name]
	return col, ok
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// JoinSide is one table of a join template and its matched columns, in the
// order they pair with the other side.
type JoinSide struct {
	Table   string
	Columns []string
}

// JoinTemplate declares that two tables are equi-joinable. Left.Columns[i]
// pairs with Right.Columns[i].
type JoinTemplate struct {
	Type  string
	Left  JoinSide
	Right JoinSide
}

// JoinTypeInner is the only join type supported.
const JoinTypeInner = "inner"

func (j JoinTemplate) validate() error {
	if j.Type != JoinTypeInner {
		return fmt.Errorf("join type %q is not implemented", j.Type)
	}
	if j.Left.Table == "" || j.Right.Table == "" {
		return fmt.Errorf("inner joins must have exactly two tables")
	}
	if len(j.Left.Columns) == 0 {
		return fmt.Errorf("join %s-%s: no columns to match", j.Left.Table, j.Right.Table)
	}
	if len(j.Left.Columns) != len(j.Right.Columns) {
		return fmt.Errorf(
			"inner joins must have the same number of fields for each table: got %d and %d",
			len(j.Left.Columns), len(j.Right.Columns),
		)
	}
	return nil
}

// Schema is a named collection of tables and join templates.
type Schema struct {
	Name   string
	Tables []*Table
	Joins  []JoinTemplate

	tables  map[string]*Table
	columns map[string]*Column
	log     *zap.Logger
}

// New builds an immutable schema.
//
// Duplicate tables and malformed join templates are errors. Join templates
// that reference a table the schema does not contain are dropped with a
// warning: the configuration may describe tables that are not deployed yet.
func New(name string, tables []*Table, joins []JoinTemplate, log *zap.Logger) (*Schema, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Schema{
		Name:    name,
		Tables:  tables,
		tables:  make(map[string]*Table, len(tables)),
		columns: make(map[string]*Column),
		log:     log,
	}

	for _, t := range tables {
		if _, dup := s.tables[t.Name]; dup {
			return nil, fmt.Errorf("schema %q: duplicate table %q", name, t.Name)
		}
		s.tables[t.Name] = t
		for _, col := range t.Columns {
			s.columns[norm.NFC.String(col.Qualified())] = col
		}
	}

	for _, j := range joins {
		if err := j.validate(); err != nil {
			return nil, fmt.Errorf("schema %q: %w", name, err)
		}
		missing := ""
		if _, ok := s.tables[j.Left.Table]; !ok {
			missing = j.Left.Table
		} else if _, ok := s.tables[j.Right.Table]; !ok {
			missing = j.Right.Table
		}
		if missing != "" {
			log.Warn("dropping join template that references an unknown table",
				zap.String("schema", name),
				zap.String("table", missing),
				zap.String("left", j.Left.Table),
				zap.String("right", j.Right.Table),
			)
			continue
		}
		s.Joins = append(s.Joins, j)
	}

	return s, nil
}

// Logger returns the logger the schema was built with.
func (s *Schema) Logger() *zap.Logger {
	return s.log
}

// Table returns the named table or an *UnrecognizedTableError.
func (s *Schema) Table(name string) (*Table, error) {
	t, ok := s.tables[norm.NFC.String(name)]
	if !ok {
		s.log.Debug("unrecognized table", zap.String("schema", s.Name), zap.String("table", name))
		return nil, &UnrecognizedTableError{Table: name, Schema: s.Name}
	}
	return t, nil
}

// HasTable reports whether the schema contains the named table.
func (s *Schema) HasTable(name string) bool {
	_, ok := s.tables[norm.NFC.String(name)]
	return ok
}

// Column resolves a qualified "table.column" reference.
func (s *Schema) Column(reference string) (*Column, error) {
	table, column, err := ParseQualified(reference)
	if err != nil {
		s.log.Debug("malformed column reference", zap.String("reference", reference), zap.Error(err))
		return nil, err
	}

	if col, ok := s.columns[Qualify(table, column)]; ok {
		return col, nil
	}

	if _, terr := s.Table(table); terr != nil {
		return nil, &InvalidReferenceError{Reference: reference, Reason: "unknown table", Err: terr}
	}

	s.log.Debug("unknown column", zap.String("table", table), zap.String("column", column))
	return nil, &InvalidReferenceError{Reference: reference, Reason: fmt.Sprintf("table %q has no column %q", table, column)}
}

// IndexColumns returns the index column names of a table, in order.
func (s *Schema) IndexColumns(table string) ([]string, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.IndexColumns))
	copy(out, t.IndexColumns)
	return out, nil
}

// TableNames returns the table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}
