package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
)

const versionColumns = `id, document_id, version, hash, pdf_key, latex_source, latex_config, title, note, created_by, created_at`

func (s *Store) CountVersions(ctx context.Context, documentID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE document_id = ?`, documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count versions of %q: %w", documentID, err)
	}
	return n, nil
}

func (s *Store) LatestVersion(ctx context.Context, documentID string) (*documents.DocumentVersion, error) {
	return s.queryVersion(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE document_id = ? ORDER BY version DESC LIMIT 1`, documentID)
}

func (s *Store) GetVersion(ctx context.Context, documentID string, version int) (*documents.DocumentVersion, error) {
	return s.queryVersion(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE document_id = ? AND version = ?`, documentID, version)
}

func (s *Store) queryVersion(ctx context.Context, query string, args ...any) (*documents.DocumentVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, documents.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, documentID string) ([]documents.DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE document_id = ? ORDER BY version DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query versions: %w", err)
	}
	defer rows.Close()

	result := []documents.DocumentVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate versions: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*documents.DocumentVersion, error) {
	var (
		v         documents.DocumentVersion
		cfg       sql.NullString
		createdAt string
	)
	err := row.Scan(&v.ID, &v.DocumentID, &v.Version, &v.Hash, &v.PDFKey, &v.LatexSource, &cfg,
		&v.Title, &v.Note, &v.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan version: %w", err)
	}
	if v.LatexConfig, err = decodePageConfig(cfg); err != nil {
		return nil, fmt.Errorf("sqlite: decode version page config: %w", err)
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse version timestamp: %w", err)
	}
	return &v, nil
}

func (s *Store) CreateVersion(ctx context.Context, version documents.DocumentVersion) (*documents.DocumentVersion, error) {
	if err := version.Validate(); err != nil {
		return nil, err
	}
	cfg, err := encodePageConfig(version.LatexConfig)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode version page config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx for version: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var latest int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM versions WHERE document_id = ?`, version.DocumentID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("sqlite: latest version of %q: %w", version.DocumentID, err)
	}
	if version.Version <= latest {
		return nil, documents.ErrConflict
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET pdf_key = ?, latest_version = ?, updated_at = ? WHERE id = ?`,
		version.PDFKey, version.Version, formatTime(version.CreatedAt), version.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: point document %q at version: %w", version.DocumentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, documents.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.DocumentID, version.Version, version.Hash, version.PDFKey, version.LatexSource, cfg,
		version.Title, version.Note, version.CreatedBy, formatTime(version.CreatedAt)); err != nil {
		return nil, fmt.Errorf("sqlite: insert version %d of %q: %w", version.Version, version.DocumentID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit version: %w", err)
	}
	clone := version
	return &clone, nil
}
