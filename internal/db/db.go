package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultNotebookName is seeded so the local backend always has somewhere to write.
const DefaultNotebookName = "Inbox"

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS plugin_data (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notebooks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT NOT NULL DEFAULT '',
			sort INTEGER NOT NULL DEFAULT 0,
			closed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			notebook_id TEXT NOT NULL,
			path TEXT NOT NULL,
			markdown TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(notebook_id) REFERENCES notebooks(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS assets (
			stored_path TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			uploaded_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_notebook ON documents(notebook_id, path);`,
		`CREATE INDEX IF NOT EXISTS idx_notebooks_sort ON notebooks(sort);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}

	const insertDefault = `
	INSERT INTO notebooks (id, name, icon, sort, closed, created_at)
	SELECT ?, ?, '', 0, 0, ?
	WHERE NOT EXISTS (SELECT 1 FROM notebooks);`
	if _, err := db.Exec(insertDefault, "inbox", DefaultNotebookName, time.Now().UTC()); err != nil {
		return fmt.Errorf("seed default notebook: %w", err)
	}

	return nil
}
