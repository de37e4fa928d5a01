package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
)

const blockColumns = `id, document_id, block_def_id, ord, name, config, latex_source, packages, created_at, updated_at`

// blockOrder sorts blocks by position, ties broken by age then id.
const blockOrder = `ORDER BY ord, created_at, id`

func (s *Store) ListBlocks(ctx context.Context, documentID string) ([]documents.DocumentBlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE document_id = ? `+blockOrder, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query blocks: %w", err)
	}
	defer rows.Close()

	var result []documents.DocumentBlock
	for rows.Next() {
		var (
			b                    documents.DocumentBlock
			config, packages     string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&b.ID, &b.DocumentID, &b.BlockDefID, &b.Order, &b.Name, &config,
			&b.LatexSource, &packages, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan block: %w", err)
		}
		if err := json.Unmarshal([]byte(config), &b.Config); err != nil {
			return nil, fmt.Errorf("sqlite: decode block %q config: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(packages), &b.Packages); err != nil {
			return nil, fmt.Errorf("sqlite: decode block %q packages: %w", b.ID, err)
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse block timestamp: %w", err)
		}
		if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse block timestamp: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate blocks: %w", err)
	}
	return result, nil
}

func (s *Store) UpsertBlock(ctx context.Context, block documents.DocumentBlock) (*documents.DocumentBlock, error) {
	config, err := json.Marshal(block.Config)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode block %q config: %w", block.ID, err)
	}
	if block.Config == nil {
		config = []byte("{}")
	}
	packages, err := json.Marshal(block.Packages)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode block %q packages: %w", block.ID, err)
	}
	if block.Packages == nil {
		packages = []byte("[]")
	}
	now := time.Now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx for block upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := documentExists(ctx, tx, block.DocumentID); err != nil {
		return nil, err
	}

	// The WHERE clause keeps an id owned by another document untouched.
	const q = `
		INSERT INTO blocks (` + blockColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			block_def_id = excluded.block_def_id,
			ord          = excluded.ord,
			name         = excluded.name,
			config       = excluded.config,
			latex_source = excluded.latex_source,
			packages     = excluded.packages,
			updated_at   = excluded.updated_at
		WHERE blocks.document_id = excluded.document_id`
	res, err := tx.ExecContext(ctx, q,
		block.ID, block.DocumentID, block.BlockDefID, block.Order, block.Name, string(config),
		block.LatexSource, string(packages), formatTime(block.CreatedAt), formatTime(block.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("sqlite: upsert block %q: %w", block.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, documents.ErrConflict
	}
	var createdAt string
	if err := tx.QueryRowContext(ctx, `SELECT created_at FROM blocks WHERE id = ?`, block.ID).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: reload block %q: %w", block.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit block upsert: %w", err)
	}
	if block.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse block timestamp: %w", err)
	}
	return &block, nil
}

func (s *Store) RemoveBlocks(ctx context.Context, documentID string, blockIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx for block removal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := documentExists(ctx, tx, documentID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM blocks WHERE document_id = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare block delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range blockIDs {
		if _, err := stmt.ExecContext(ctx, documentID, id); err != nil {
			return fmt.Errorf("sqlite: delete block %q: %w", id, err)
		}
	}
	if err := renumber(ctx, tx, documentID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit block removal: %w", err)
	}
	return nil
}

func (s *Store) ApplyOrderUpdates(ctx context.Context, documentID string, updates []documents.OrderUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx for order updates: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := documentExists(ctx, tx, documentID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE blocks SET ord = ? WHERE document_id = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare order update: %w", err)
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Order, documentID, u.ID); err != nil {
			return fmt.Errorf("sqlite: update order of %q: %w", u.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit order updates: %w", err)
	}
	return nil
}

func (s *Store) NormalizeOrder(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx for order normalisation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := renumber(ctx, tx, documentID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit order normalisation: %w", err)
	}
	return nil
}

func documentExists(ctx context.Context, tx *sql.Tx, documentID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return documents.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: lookup document %q: %w", documentID, err)
	}
	return nil
}

// renumber rewrites block orders to 1..N inside tx.
func renumber(ctx context.Context, tx *sql.Tx, documentID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, ord FROM blocks WHERE document_id = ? `+blockOrder, documentID)
	if err != nil {
		return fmt.Errorf("sqlite: query block order: %w", err)
	}
	type position struct {
		id  string
		ord int
	}
	var positions []position
	for rows.Next() {
		var p position
		if err := rows.Scan(&p.id, &p.ord); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scan block order: %w", err)
		}
		positions = append(positions, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterate block order: %w", err)
	}

	for i, p := range positions {
		if p.ord == i+1 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE blocks SET ord = ? WHERE id = ?`, i+1, p.id); err != nil {
			return fmt.Errorf("sqlite: renumber block %q: %w", p.id, err)
		}
	}
	return nil
}
