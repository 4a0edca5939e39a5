// Package documents keeps composed documents in a local SQLite file.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/compose"
	"github.com/loqalabs/loqa-scribe/internal/config"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrEmptyContent = errors.New("document content is empty")
)

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	StyleID   string    `json:"formatId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open creates the database and schema. A path of ":memory:" keeps
// documents for the life of the process.
func Open(ctx context.Context, cfg config.DocumentsConfig, log *slog.Logger) (*Store, error) {
	dsn := ":memory:"
	if cfg.Path != "" && cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, log: log.With(slog.String("component", "documents")), clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS documents (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    style_id TEXT,
    created_at TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores doc under a new id. An empty title takes the style's title.
func (s *Store) Save(ctx context.Context, doc Document) (Document, error) {
	doc.Content = strings.TrimSpace(doc.Content)
	if doc.Content == "" {
		return Document{}, ErrEmptyContent
	}
	doc.Title = strings.TrimSpace(doc.Title)
	if doc.Title == "" {
		style, _ := compose.LookupStyle(doc.StyleID)
		doc.Title = style.Title
	}
	doc.ID = uuid.NewString()
	doc.CreatedAt = s.clock().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(id, title, content, style_id, created_at) VALUES(?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.StyleID, doc.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	s.log.Debug("document saved", slog.String("id", doc.ID), slog.String("style", doc.StyleID))
	return doc, nil
}

// List returns documents in the order they were saved.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, style_id, created_at FROM documents ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, style_id, created_at FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		d       Document
		style   sql.NullString
		created string
	)
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &style, &created); err != nil {
		return Document{}, err
	}
	d.StyleID = style.String
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		d.CreatedAt = ts
	}
	return d, nil
}
