package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Backend keeps every store table as a SQL table of TEXT columns inside a
// single SQLite file. Tables are rewritten whole on save.
type Backend struct {
	db *sql.DB
}

// Open opens the SQLite file at path, creating it when its directory
// exists, and switches the journal to WAL.
func Open(ctx context.Context, path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Readers keep the last committed copy of a table while a save
	// replaces it inside a transaction.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &Backend{db: db}, nil
}

// Close closes the database connection
func (b *Backend) Close() error {
	return b.db.Close()
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (b *Backend) columns(ctx context.Context, name string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(name)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			col     string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (b *Backend) ReadTable(ctx context.Context, name string) ([]string, [][]string, error) {
	header, err := b.columns(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(header) == 0 {
		return nil, nil, nil
	}

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quote(name)))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer rows.Close()

	var records [][]string
	for rows.Next() {
		cells := make([]sql.NullString, len(header))
		dest := make([]any, len(header))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", name, err)
		}
		rec := make([]string, len(header))
		for i, c := range cells {
			if c.Valid {
				rec[i] = c.String
			}
		}
		records = append(records, rec)
	}
	return header, records, rows.Err()
}

// WriteTable drops and recreates the table inside one transaction. Empty
// cells are stored as NULL.
func (b *Backend) WriteTable(ctx context.Context, name string, header []string, records [][]string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if len(header) == 0 {
		return tx.Commit()
	}

	cols := make([]string, len(header))
	marks := make([]string, len(header))
	for i, h := range header {
		cols[i] = quote(h) + " TEXT"
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quote(name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quote(name), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(header))
	for _, rec := range records {
		for i := range header {
			if i < len(rec) && rec[i] != "" {
				args[i] = rec[i]
			} else {
				args[i] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (b *Backend) DeleteTable(ctx context.Context, name string) error {
	if _, err := b.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(name)); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	return nil
}
