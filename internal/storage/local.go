package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"siyuan-ocr/internal/models"
)

// ErrNotFound is returned when a notebook or document does not exist.
var ErrNotFound = errors.New("not found")

// LocalStore is a self-contained notes backend: notebooks and documents live
// in sqlite, asset files under dir/assets.
type LocalStore struct {
	db  *sql.DB
	dir string
	now func() time.Time
}

func NewLocalStore(db *sql.DB, dir string) *LocalStore {
	return &LocalStore{db: db, dir: dir, now: time.Now}
}

// ListNotebooks returns the open notebooks ordered by sort key.
func (s *LocalStore) ListNotebooks(ctx context.Context) ([]models.Notebook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, icon, sort, closed
		FROM notebooks
		WHERE closed = 0
		ORDER BY sort ASC, name ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	defer rows.Close()

	var out []models.Notebook
	for rows.Next() {
		var nb models.Notebook
		if err := rows.Scan(&nb.ID, &nb.Name, &nb.Icon, &nb.Sort, &nb.Closed); err != nil {
			return nil, fmt.Errorf("scan notebook: %w", err)
		}
		out = append(out, nb)
	}
	return out, rows.Err()
}

// CreateNotebook adds an open notebook at the end of the sort order.
func (s *LocalStore) CreateNotebook(ctx context.Context, name, icon string) (*models.Notebook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("notebook name is required")
	}

	var maxSort sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sort) FROM notebooks;`).Scan(&maxSort); err != nil {
		return nil, fmt.Errorf("read notebook sort: %w", err)
	}

	nb := models.Notebook{
		ID:   newNodeID(s.now()),
		Name: name,
		Icon: icon,
		Sort: int(maxSort.Int64) + 1,
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO notebooks (id, name, icon, sort, closed, created_at)
		VALUES (?, ?, ?, ?, 0, ?);
	`, nb.ID, nb.Name, nb.Icon, nb.Sort, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("insert notebook: %w", err)
	}
	return &nb, nil
}

// CreateDocWithMarkdown stores markdown as a new document at path.
func (s *LocalStore) CreateDocWithMarkdown(ctx context.Context, notebookID, path, markdown string) (string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM notebooks WHERE id = ?;`, notebookID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("notebook %s: %w", notebookID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup notebook: %w", err)
	}

	now := s.now()
	id := newNodeID(now)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, notebook_id, path, markdown, created_at)
		VALUES (?, ?, ?, ?, ?);
	`, id, notebookID, path, markdown, now.UTC()); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (s *LocalStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, notebook_id, path, markdown, created_at
		FROM documents WHERE id = ?;
	`, id)
	var doc models.Document
	if err := row.Scan(&doc.ID, &doc.NotebookID, &doc.Path, &doc.Markdown, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// UploadAsset writes data under dir/assets and returns "assets/<name>".
func (s *LocalStore) UploadAsset(ctx context.Context, data []byte, filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid asset name %q", filename)
	}

	assetsDir := filepath.Join(s.dir, "assets")
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure assets dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(assetsDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}

	stored := "assets/" + name
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (stored_path, size, uploaded_at) VALUES (?, ?, ?)
		ON CONFLICT(stored_path) DO UPDATE SET size = excluded.size, uploaded_at = excluded.uploaded_at;
	`, stored, len(data), s.now().UTC()); err != nil {
		return "", fmt.Errorf("record asset: %w", err)
	}
	return stored, nil
}

// newNodeID mimics the kernel's block IDs: a second-resolution timestamp
// plus a 7 character random suffix.
func newNodeID(t time.Time) string {
	return t.Format("20060102150405") + "-" + RandomSuffix(7)
}

// RandomSuffix returns n lowercase hex characters (n <= 32).
func RandomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
