package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
)

func (s *Store) CountVersions(ctx context.Context, documentID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&versionRow{}).Where("document_id = ?", documentID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("postgres: count versions of %q: %w", documentID, err)
	}
	return int(n), nil
}

func (s *Store) LatestVersion(ctx context.Context, documentID string) (*documents.DocumentVersion, error) {
	return s.firstVersion(s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("version DESC"))
}

func (s *Store) GetVersion(ctx context.Context, documentID string, version int) (*documents.DocumentVersion, error) {
	return s.firstVersion(s.db.WithContext(ctx).Where("document_id = ? AND version = ?", documentID, version))
}

func (s *Store) firstVersion(q *gorm.DB) (*documents.DocumentVersion, error) {
	var row versionRow
	if err := q.First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	v, err := row.toVersion()
	if err != nil {
		return nil, fmt.Errorf("postgres: decode version: %w", err)
	}
	return &v, nil
}

func (s *Store) ListVersions(ctx context.Context, documentID string) ([]documents.DocumentVersion, error) {
	var rows []versionRow
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("version DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres: list versions: %w", err)
	}
	result := make([]documents.DocumentVersion, 0, len(rows))
	for _, row := range rows {
		v, err := row.toVersion()
		if err != nil {
			return nil, fmt.Errorf("postgres: decode version %d: %w", row.Version, err)
		}
		result = append(result, v)
	}
	return result, nil
}

func (s *Store) CreateVersion(ctx context.Context, version documents.DocumentVersion) (*documents.DocumentVersion, error) {
	if err := version.Validate(); err != nil {
		return nil, err
	}
	row, err := newVersionRow(version)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode version: %w", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, version.DocumentID); err != nil {
			return err
		}
		var latest int
		if err := tx.Model(&versionRow{}).Where("document_id = ?", version.DocumentID).
			Select("COALESCE(MAX(version), 0)").Scan(&latest).Error; err != nil {
			return err
		}
		if version.Version <= latest {
			return documents.ErrConflict
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&documentRow{}).Where("id = ?", version.DocumentID).Updates(map[string]any{
			"pdf_key":        version.PDFKey,
			"latest_version": version.Version,
			"updated_at":     version.CreatedAt,
		}).Error
	})
	if err := wrapTx("create version", err); err != nil {
		return nil, err
	}
	clone := version
	return &clone, nil
}
