// Package history reads logged rows back out of the database files for
// charting. It only ever opens read-only connections; WAL mode on the
// writer's side keeps these queries from blocking inserts.
package history

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/plcwatch/plclogger/internal/schema"
)

const defaultLimit = 500

func openRO(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s read-only: %w", path, err)
	}
	return db, nil
}

// Columns returns the plc_data column names of one database file.
func Columns(path string) ([]string, error) {
	db, err := openRO(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var cols []struct {
		Name string `db:"name"`
	}
	query := fmt.Sprintf("SELECT name FROM pragma_table_info(%q)", schema.TableName)
	if err := db.Select(&cols, query); err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", path, err)
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out, nil
}

// Rows returns up to limit logged rows, oldest first. When tag is non-empty
// only that tag's column (plus id and timestamp) is selected; the tag must
// name an existing column, which also keeps arbitrary text out of the SQL
// identifier position.
func Rows(path, tag string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	selected := "*"
	if tag != "" {
		ident, err := schema.SanitizeIdentifier(tag)
		if err != nil {
			return nil, err
		}
		cols, err := Columns(path)
		if err != nil {
			return nil, err
		}
		found := false
		for _, c := range cols {
			if c == ident {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no column %q in %s", ident, path)
		}
		selected = fmt.Sprintf("id, timestamp, %q", ident)
	}

	db, err := openRO(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id LIMIT ?", selected, schema.TableName)
	rows, err := db.Queryx(query, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row from %s: %w", path, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
