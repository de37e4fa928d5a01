package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/documents/repotest"
	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// openTestStore connects to DOCBUILDER_TEST_POSTGRES_DSN and empties every
// table. Tests are skipped without it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DOCBUILDER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCBUILDER_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.db.Exec("TRUNCATE document_versions, document_blocks, project_members, documents").Error)
	return s
}

func TestRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) documents.Repository {
		return openTestStore(t)
	})
}

func TestPageConfigCodec(t *testing.T) {
	cfg, err := decodePageConfig(nil)
	require.NoError(t, err)
	require.Nil(t, cfg)

	raw, err := encodePageConfig(&latex.PageConfig{Orientation: latex.OrientationLandscape})
	require.NoError(t, err)
	cfg, err = decodePageConfig(raw)
	require.NoError(t, err)
	require.Equal(t, latex.OrientationLandscape, cfg.Orientation)

	raw, err = encodePageConfig(nil)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestBlockRowDefaults(t *testing.T) {
	row, err := newBlockRow(documents.DocumentBlock{ID: "b1", DocumentID: "d1"})
	require.NoError(t, err)
	require.JSONEq(t, "{}", string(row.Config))
	require.JSONEq(t, "[]", string(row.Packages))

	b, err := row.toBlock()
	require.NoError(t, err)
	require.Empty(t, b.Config)
	require.Empty(t, b.Packages)
}
