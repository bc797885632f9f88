package schema

// Description is the client-facing view of a schema, returned by the
// "load schema" command.
type Description struct {
	Name   string             `json:"name"`
	Tables []TableDescription `json:"tables"`
	Joins  []JoinDescription  `json:"joins"`
}

type TableDescription struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	IndexColumns []string            `json:"index_columns"`
	Columns      []ColumnDescription `json:"columns"`
}

type ColumnDescription struct {
	Name        string   `json:"name"`
	DataType    DataType `json:"datatype"`
	Description string   `json:"description,omitempty"`
	Unit        string   `json:"unit,omitempty"`
}

type JoinDescription struct {
	Type    string              `json:"type"`
	Matches map[string][]string `json:"matches"`
}

// Describe returns the client-facing description of the schema.
func (s *Schema) Describe() Description {
	d := Description{
		Name:   s.Name,
		Tables: make([]TableDescription, 0, len(s.Tables)),
		Joins:  make([]JoinDescription, 0, len(s.Joins)),
	}
	for _, t := range s.Tables {
		td := TableDescription{
			Name:         t.Name,
			Description:  t.Description,
			IndexColumns: append([]string{}, t.IndexColumns...),
			Columns:      make([]ColumnDescription, 0, len(t.Columns)),
		}
		for _, c := range t.Columns {
			td.Columns = append(td.Columns, ColumnDescription{
				Name:        c.Name,
				DataType:    c.DataType,
				Description: c.Description,
				Unit:        c.Unit,
			})
		}
		d.Tables = append(d.Tables, td)
	}
	for _, j := range s.Joins {
		d.Joins = append(d.Joins, JoinDescription{
			Type: j.Type,
			Matches: map[string][]string{
				j.Left.Table:  append([]string{}, j.Left.Columns...),
				j.Right.Table: append([]string{}, j.Right.Columns...),
			},
		})
	}
	return d
}
