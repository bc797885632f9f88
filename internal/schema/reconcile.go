package schema

import (
	"go.uber.org/zap"
)

// Reconcile returns a copy of the schema trimmed to what the live database
// contains. live maps table names to their column names.
//
// Tables absent from the database are removed, as are columns the live table
// does not have. A table that loses one of its index columns is removed
// entirely, since its rows could no longer be identified. Join templates that
// reference a removed table are dropped by New. None of this is fatal: the
// schema definitions are allowed to run ahead of the deployed database.
func (s *Schema) Reconcile(live map[string][]string) (*Schema, error) {
	tables := make([]*Table, 0, len(s.Tables))

	for _, t := range s.Tables {
		liveColumns, ok := live[t.Name]
		if !ok {
			s.log.Warn("table is not in the database, removing it from the schema",
				zap.String("schema", s.Name),
				zap.String("table", t.Name),
			)
			continue
		}

		present := make(map[string]struct{}, len(liveColumns))
		for _, c := range liveColumns {
			present[c] = struct{}{}
		}

		var columns []*Column
		var missing []string
		for _, col := range t.Columns {
			if _, ok := present[col.Name]; !ok {
				missing = append(missing, col.Name)
				continue
			}
			cp := *col
			columns = append(columns, &cp)
		}
		if len(missing) > 0 {
			s.log.Warn("columns are not in the database, removing them from the schema",
				zap.String("schema", s.Name),
				zap.String("table", t.Name),
				zap.Strings("columns", missing),
			)
		}

		if idx := firstMissing(t.IndexColumns, present); idx != "" {
			s.log.Warn("index column is not in the database, removing the table from the schema",
				zap.String("schema", s.Name),
				zap.String("table", t.Name),
				zap.String("column", idx),
			)
			continue
		}

		nt, err := NewTable(t.Name, columns, t.IndexColumns)
		if err != nil {
			return nil, err
		}
		nt.Description = t.Description
		tables = append(tables, nt)
	}

	return New(s.Name, tables, s.Joins, s.log)
}

func firstMissing(names []string, present map[string]struct{}) string {
	for _, n := range names {
		if _, ok := present[n]; !ok {
			return n
		}
	}
	return ""
}
