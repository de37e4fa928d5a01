package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
)

const blockOrder = "ord, created_at, id"

func (s *Store) ListBlocks(ctx context.Context, documentID string) ([]documents.DocumentBlock, error) {
	var rows []blockRow
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order(blockOrder).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres: list blocks: %w", err)
	}
	result := make([]documents.DocumentBlock, 0, len(rows))
	for _, row := range rows {
		b, err := row.toBlock()
		if err != nil {
			return nil, fmt.Errorf("postgres: decode block %q: %w", row.ID, err)
		}
		result = append(result, b)
	}
	return result, nil
}

func (s *Store) UpsertBlock(ctx context.Context, block documents.DocumentBlock) (*documents.DocumentBlock, error) {
	row, err := newBlockRow(block)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode block %q: %w", block.ID, err)
	}
	now := time.Now().UTC()
	row.UpdatedAt = now
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, block.DocumentID); err != nil {
			return err
		}
		var existing blockRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, "id = ?", block.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&row).Error
		case err != nil:
			return err
		case existing.DocumentID != block.DocumentID:
			return documents.ErrConflict
		}
		row.CreatedAt = existing.CreatedAt
		return tx.Model(&blockRow{}).Where("id = ?", block.ID).Updates(map[string]any{
			"block_def_id": row.BlockDefID,
			"ord":          row.Ord,
			"name":         row.Name,
			"config":       row.Config,
			"latex_source": row.LatexSource,
			"packages":     row.Packages,
			"updated_at":   row.UpdatedAt,
		}).Error
	})
	if errors.Is(err, documents.ErrNotFound) || errors.Is(err, documents.ErrConflict) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert block %q: %w", block.ID, err)
	}
	block.CreatedAt = row.CreatedAt
	block.UpdatedAt = row.UpdatedAt
	return &block, nil
}

// lockDocument takes a row lock on the document, serialising writers of its
// blocks and versions.
func lockDocument(tx *gorm.DB, documentID string) error {
	var doc documentRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&doc, "id = ?", documentID).Error
	return notFound(err)
}

func (s *Store) RemoveBlocks(ctx context.Context, documentID string, blockIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, documentID); err != nil {
			return err
		}
		if len(blockIDs) > 0 {
			if err := tx.Where("document_id = ? AND id IN ?", documentID, blockIDs).Delete(&blockRow{}).Error; err != nil {
				return err
			}
		}
		return renumber(tx, documentID)
	})
	return wrapTx("remove blocks", err)
}

func (s *Store) ApplyOrderUpdates(ctx context.Context, documentID string, updates []documents.OrderUpdate) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockDocument(tx, documentID); err != nil {
			return err
		}
		for _, u := range updates {
			err := tx.Model(&blockRow{}).
				Where("document_id = ? AND id = ?", documentID, u.ID).
				Update("ord", u.Order).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	return wrapTx("apply order updates", err)
}

func (s *Store) NormalizeOrder(ctx context.Context, documentID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return renumber(tx, documentID)
	})
	return wrapTx("normalize order", err)
}

// renumber rewrites block orders to 1..N inside tx.
func renumber(tx *gorm.DB, documentID string) error {
	var rows []blockRow
	if err := tx.Select("id", "ord").Where("document_id = ?", documentID).Order(blockOrder).Find(&rows).Error; err != nil {
		return err
	}
	for i, row := range rows {
		if row.Ord == i+1 {
			continue
		}
		if err := tx.Model(&blockRow{}).Where("id = ?", row.ID).Update("ord", i+1).Error; err != nil {
			return err
		}
	}
	return nil
}

// wrapTx keeps domain sentinels intact and annotates everything else.
func wrapTx(verb string, err error) error {
	if err == nil || errors.Is(err, documents.ErrNotFound) || errors.Is(err, documents.ErrConflict) {
		return err
	}
	return fmt.Errorf("postgres: %s: %w", verb, err)
}
