package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/documents/repotest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "docbuilder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) documents.Repository {
		return openTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docbuilder.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.CreateDocument(ctx, documents.Document{ID: "d1", ProjectID: "p1", Title: "Kept"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "Kept", doc.Title)
}

func TestTimeFormatSortsLexically(t *testing.T) {
	a, err := parseTime("2024-01-02T03:04:05.100000000Z")
	require.NoError(t, err)
	b, err := parseTime("2024-01-02T03:04:05.020000000Z")
	require.NoError(t, err)
	require.True(t, b.Before(a))
	require.Less(t, formatTime(b), formatTime(a))
}

func TestUpsertBlockChecksDocumentWithoutForeignKeys(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys=OFF")
	require.NoError(t, err)

	_, err = s.UpsertBlock(ctx, documents.DocumentBlock{ID: "b1", DocumentID: "missing", BlockDefID: "heading", Order: 1})
	require.ErrorIs(t, err, documents.ErrNotFound)

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&n))
	require.Zero(t, n)
}
