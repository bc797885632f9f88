package store

import (
	"context"
	"fmt"

	"github.com/roach88/surveydb/internal/querysql"
)

// Tables returns the live tables of the database and their columns, in
// declaration order. For PostgreSQL only the store's namespace is listed.
func (s *Store) Tables(ctx context.Context) (map[string][]string, error) {
	conn, err := s.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var query string
	var args []any
	switch s.dialect {
	case querysql.SQLite:
		query = `
			SELECT m.name, p.name
			FROM sqlite_master AS m
			JOIN pragma_table_info(m.name) AS p
			WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
			ORDER BY m.name, p.cid
		`
	case querysql.Postgres:
		query = `
			SELECT table_name, column_name
			FROM information_schema.columns
			WHERE table_schema = $1
			ORDER BY table_name, ordinal_position
		`
		args = []any{s.namespace}
	default:
		return nil, fmt.Errorf("unsupported dialect %s", s.dialect)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan table column: %w", err)
		}
		tables[table] = append(tables[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}
