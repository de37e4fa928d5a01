// Package postgres implements documents.Repository on PostgreSQL using GORM.
//
// Block ordering and version snapshots are written inside GORM transactions so
// a failed request never leaves a partially renumbered document behind.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// Store implements documents.Repository using PostgreSQL with GORM.
type Store struct {
	db *gorm.DB
}

var _ documents.Repository = (*Store)(nil)

// Open connects to the database at dsn and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&documentRow{},
		&memberRow{},
		&blockRow{},
		&versionRow{},
	)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return documents.ErrNotFound
	}
	return err
}

func (s *Store) CreateDocument(ctx context.Context, doc documents.Document) (*documents.Document, error) {
	row, err := newDocumentRow(doc)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode document %q: %w", doc.ID, err)
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("postgres: create document %q: %w", doc.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, documents.ErrConflict
	}
	return s.GetDocument(ctx, doc.ID)
}

func (s *Store) GetDocument(ctx context.Context, documentID string) (*documents.Document, error) {
	var row documentRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", documentID).Error; err != nil {
		return nil, notFound(err)
	}
	doc, err := row.toDocument()
	if err != nil {
		return nil, fmt.Errorf("postgres: decode document %q: %w", documentID, err)
	}
	return doc, nil
}

// updateDocument applies columns to one document and maps a missing row to
// documents.ErrNotFound.
func (s *Store) updateDocument(ctx context.Context, documentID string, columns map[string]any) error {
	res := s.db.WithContext(ctx).Model(&documentRow{}).Where("id = ?", documentID).Updates(columns)
	if res.Error != nil {
		return fmt.Errorf("postgres: update document %q: %w", documentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return documents.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteDocument(ctx context.Context, documentID string) error {
	now := time.Now().UTC()
	return s.updateDocument(ctx, documentID, map[string]any{"deleted_at": now, "updated_at": now})
}

func (s *Store) UpdatePageConfig(ctx context.Context, documentID string, cfg latex.PageConfig) error {
	encoded, err := encodePageConfig(&cfg)
	if err != nil {
		return fmt.Errorf("postgres: encode page config: %w", err)
	}
	return s.updateDocument(ctx, documentID, map[string]any{"latex_config": encoded, "updated_at": time.Now().UTC()})
}

func (s *Store) SaveCompileSuccess(ctx context.Context, documentID, latexSource, pdfKey string, at time.Time) error {
	return s.updateDocument(ctx, documentID, map[string]any{
		"latex_source":       latexSource,
		"pdf_key":            pdfKey,
		"compilation_status": string(documents.StatusSuccess),
		"compilation_error":  "",
		"last_compiled_at":   at,
		"updated_at":         at,
	})
}

func (s *Store) SaveCompileFailure(ctx context.Context, documentID, diagnostic string) error {
	return s.updateDocument(ctx, documentID, map[string]any{
		"compilation_status": string(documents.StatusFailed),
		"compilation_error":  diagnostic,
		"updated_at":         time.Now().UTC(),
	})
}

func (s *Store) SetMemberRole(ctx context.Context, projectID, userID string, role documents.Role) error {
	row := memberRow{ProjectID: projectID, UserID: userID, Role: string(role)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("postgres: set member role %q/%q: %w", projectID, userID, err)
	}
	return nil
}

func (s *Store) MemberRole(ctx context.Context, projectID, userID string) (documents.Role, error) {
	var row memberRow
	err := s.db.WithContext(ctx).First(&row, "project_id = ? AND user_id = ?", projectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get member role %q/%q: %w", projectID, userID, err)
	}
	return documents.Role(row.Role), nil
}
