// Package sqlite implements documents.Repository on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// schema contains the DDL executed on open. Using IF NOT EXISTS makes it
// safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id                 TEXT PRIMARY KEY,
    project_id         TEXT NOT NULL,
    title              TEXT NOT NULL DEFAULT '',
    latex_source       TEXT NOT NULL DEFAULT '',
    latex_config       TEXT,
    compilation_status TEXT NOT NULL DEFAULT 'PENDING',
    compilation_error  TEXT NOT NULL DEFAULT '',
    pdf_key            TEXT NOT NULL DEFAULT '',
    last_compiled_at   TEXT,
    latest_version     INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL,
    deleted_at         TEXT
);

CREATE TABLE IF NOT EXISTS members (
    project_id TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    role       TEXT NOT NULL,
    PRIMARY KEY (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS blocks (
    id           TEXT PRIMARY KEY,
    document_id  TEXT NOT NULL REFERENCES documents(id),
    block_def_id TEXT NOT NULL,
    ord          INTEGER NOT NULL,
    name         TEXT NOT NULL DEFAULT '',
    config       TEXT NOT NULL DEFAULT '{}',
    latex_source TEXT NOT NULL DEFAULT '',
    packages     TEXT NOT NULL DEFAULT '[]',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS blocks_document_ord ON blocks (document_id, ord);

CREATE TABLE IF NOT EXISTS versions (
    id           TEXT PRIMARY KEY,
    document_id  TEXT NOT NULL REFERENCES documents(id),
    version      INTEGER NOT NULL,
    hash         TEXT NOT NULL,
    pdf_key      TEXT NOT NULL,
    latex_source TEXT NOT NULL,
    latex_config TEXT,
    title        TEXT NOT NULL DEFAULT '',
    note         TEXT NOT NULL DEFAULT '',
    created_by   TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    UNIQUE (document_id, version)
);
`

// timeFormat is fixed width so text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements documents.Repository using a local SQLite database in WAL mode.
type Store struct {
	db *sql.DB
}

var _ documents.Repository = (*Store)(nil)

// Open opens (or creates) a SQLite database at path, enables WAL mode and
// busy timeout, and creates the schema tables if they do not exist.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// SQLite has a single writer; one pooled connection keeps the pragmas
	// below in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema tables idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodePageConfig(cfg *latex.PageConfig) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodePageConfig(ns sql.NullString) (*latex.PageConfig, error) {
	if !ns.Valid {
		return nil, nil
	}
	var cfg latex.PageConfig
	if err := json.Unmarshal([]byte(ns.String), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc documents.Document) (*documents.Document, error) {
	cfg, err := encodePageConfig(doc.LatexConfig)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode page config: %w", err)
	}
	const q = `
		INSERT INTO documents (id, project_id, title, latex_source, latex_config, compilation_status,
			compilation_error, pdf_key, last_compiled_at, latest_version, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q,
		doc.ID, doc.ProjectID, doc.Title, doc.LatexSource, cfg, string(doc.CompilationStatus),
		doc.CompilationError, doc.PDFKey, formatTimePtr(doc.LastCompiledAt), doc.LatestVersion,
		formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt), formatTimePtr(doc.DeletedAt))
	if err != nil {
		return nil, fmt.Errorf("sqlite: create document %q: %w", doc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, documents.ErrConflict
	}
	return s.GetDocument(ctx, doc.ID)
}

func (s *Store) GetDocument(ctx context.Context, documentID string) (*documents.Document, error) {
	const q = `
		SELECT id, project_id, title, latex_source, latex_config, compilation_status, compilation_error,
			pdf_key, last_compiled_at, latest_version, created_at, updated_at, deleted_at
		FROM documents WHERE id = ?`
	var (
		doc                  documents.Document
		status               string
		cfg                  sql.NullString
		compiledAt, deleted  sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, q, documentID).Scan(
		&doc.ID, &doc.ProjectID, &doc.Title, &doc.LatexSource, &cfg, &status, &doc.CompilationError,
		&doc.PDFKey, &compiledAt, &doc.LatestVersion, &createdAt, &updatedAt, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, documents.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get document %q: %w", documentID, err)
	}
	doc.CompilationStatus = documents.CompilationStatus(status)
	if doc.LatexConfig, err = decodePageConfig(cfg); err != nil {
		return nil, fmt.Errorf("sqlite: decode page config of %q: %w", documentID, err)
	}
	if doc.LastCompiledAt, err = parseTimePtr(compiledAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse document timestamp: %w", err)
	}
	if doc.DeletedAt, err = parseTimePtr(deleted); err != nil {
		return nil, fmt.Errorf("sqlite: parse document timestamp: %w", err)
	}
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse document timestamp: %w", err)
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse document timestamp: %w", err)
	}
	return &doc, nil
}

// execDocument runs an UPDATE on one document and maps a missing row to
// documents.ErrNotFound.
func (s *Store) execDocument(ctx context.Context, verb, documentID, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s %q: %w", verb, documentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return documents.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteDocument(ctx context.Context, documentID string) error {
	now := formatTime(time.Now())
	return s.execDocument(ctx, "soft delete document", documentID,
		`UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, documentID)
}

func (s *Store) UpdatePageConfig(ctx context.Context, documentID string, cfg latex.PageConfig) error {
	encoded, err := encodePageConfig(&cfg)
	if err != nil {
		return fmt.Errorf("sqlite: encode page config: %w", err)
	}
	return s.execDocument(ctx, "update page config", documentID,
		`UPDATE documents SET latex_config = ?, updated_at = ? WHERE id = ?`,
		encoded, formatTime(time.Now()), documentID)
}

func (s *Store) SaveCompileSuccess(ctx context.Context, documentID, latexSource, pdfKey string, at time.Time) error {
	const q = `
		UPDATE documents SET latex_source = ?, pdf_key = ?, compilation_status = ?, compilation_error = '',
			last_compiled_at = ?, updated_at = ?
		WHERE id = ?`
	return s.execDocument(ctx, "save compile success", documentID, q,
		latexSource, pdfKey, string(documents.StatusSuccess), formatTime(at), formatTime(at), documentID)
}

func (s *Store) SaveCompileFailure(ctx context.Context, documentID, diagnostic string) error {
	const q = `UPDATE documents SET compilation_status = ?, compilation_error = ?, updated_at = ? WHERE id = ?`
	return s.execDocument(ctx, "save compile failure", documentID, q,
		string(documents.StatusFailed), diagnostic, formatTime(time.Now()), documentID)
}

func (s *Store) SetMemberRole(ctx context.Context, projectID, userID string, role documents.Role) error {
	const q = `
		INSERT INTO members (project_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role`
	if _, err := s.db.ExecContext(ctx, q, projectID, userID, string(role)); err != nil {
		return fmt.Errorf("sqlite: set member role %q/%q: %w", projectID, userID, err)
	}
	return nil
}

func (s *Store) MemberRole(ctx context.Context, projectID, userID string) (documents.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM members WHERE project_id = ? AND user_id = ?`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get member role %q/%q: %w", projectID, userID, err)
	}
	return documents.Role(role), nil
}
