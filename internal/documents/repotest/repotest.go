// Package repotest holds behaviour tests every documents.Repository
// implementation must pass.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// Factory returns an empty repository. Cleanup is registered on t.
type Factory func(t *testing.T) documents.Repository

// Run executes the suite against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo documents.Repository)
	}{
		{"Documents", testDocuments},
		{"Members", testMembers},
		{"BlockUpsert", testBlockUpsert},
		{"BlockOwnership", testBlockOwnership},
		{"RemoveRenumbers", testRemoveRenumbers},
		{"OrderUpdates", testOrderUpdates},
		{"ConcurrentUpserts", testConcurrentUpserts},
		{"Versions", testVersions},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRepo(t))
		})
	}
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seedDocument(t *testing.T, repo documents.Repository, id string) *documents.Document {
	t.Helper()
	doc, err := repo.CreateDocument(context.Background(), documents.Document{
		ID:                id,
		ProjectID:         "p1",
		Title:             "Doc " + id,
		CompilationStatus: documents.StatusPending,
		CreatedAt:         epoch,
		UpdatedAt:         epoch,
	})
	require.NoError(t, err)
	return doc
}

func seedBlock(t *testing.T, repo documents.Repository, docID, id string, order int, created time.Time) {
	t.Helper()
	_, err := repo.UpsertBlock(context.Background(), documents.DocumentBlock{
		ID:          id,
		DocumentID:  docID,
		BlockDefID:  "heading",
		Order:       order,
		Name:        "block " + id,
		Config:      map[string]any{"title": id},
		LatexSource: "\\section{" + id + "}",
		Packages:    []latex.Package{{Name: "xcolor", Options: []string{"dvipsnames"}}},
		CreatedAt:   created,
	})
	require.NoError(t, err)
}

func blockIDs(t *testing.T, repo documents.Repository, docID string) ([]string, []int) {
	t.Helper()
	blocks, err := repo.ListBlocks(context.Background(), docID)
	require.NoError(t, err)
	ids := make([]string, 0, len(blocks))
	orders := make([]int, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.ID)
		orders = append(orders, b.Order)
	}
	return ids, orders
}

func testDocuments(t *testing.T, repo documents.Repository) {
	ctx := context.Background()
	doc := seedDocument(t, repo, "d1")
	require.Equal(t, "p1", doc.ProjectID)
	require.Equal(t, documents.StatusPending, doc.CompilationStatus)
	require.Nil(t, doc.LatexConfig)

	_, err := repo.CreateDocument(ctx, documents.Document{ID: "d1", ProjectID: "p1", CreatedAt: epoch, UpdatedAt: epoch})
	require.ErrorIs(t, err, documents.ErrConflict)

	_, err = repo.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, documents.ErrNotFound)

	cfg := latex.PageConfig{
		Orientation: latex.OrientationLandscape,
		Margins:     latex.Margins{Top: 2, Bottom: 2, Left: 2.5, Right: 2.5},
		LineSpacing: latex.LineSpacingOneHalf,
	}
	require.NoError(t, repo.UpdatePageConfig(ctx, "d1", cfg))
	require.ErrorIs(t, repo.UpdatePageConfig(ctx, "missing", cfg), documents.ErrNotFound)

	compiled := epoch.Add(time.Hour)
	require.NoError(t, repo.SaveCompileSuccess(ctx, "d1", "\\begin{document}\\end{document}", "documents/d1/compiled/a.pdf", compiled))
	got, err := repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, documents.StatusSuccess, got.CompilationStatus)
	require.Equal(t, "documents/d1/compiled/a.pdf", got.PDFKey)
	require.NotNil(t, got.LatexConfig)
	require.Equal(t, cfg, *got.LatexConfig)
	require.NotNil(t, got.LastCompiledAt)
	require.True(t, compiled.Equal(*got.LastCompiledAt))

	require.NoError(t, repo.SaveCompileFailure(ctx, "d1", "! Undefined control sequence."))
	got, err = repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, documents.StatusFailed, got.CompilationStatus)
	require.Equal(t, "! Undefined control sequence.", got.CompilationError)
	require.Equal(t, "documents/d1/compiled/a.pdf", got.PDFKey, "failure keeps the last good pdf")
	require.Equal(t, "\\begin{document}\\end{document}", got.LatexSource)

	require.NoError(t, repo.SaveCompileSuccess(ctx, "d1", "src", "documents/d1/compiled/b.pdf", compiled))
	got, err = repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, got.CompilationError)

	require.NoError(t, repo.SoftDeleteDocument(ctx, "d1"))
	got, err = repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	require.ErrorIs(t, repo.SoftDeleteDocument(ctx, "missing"), documents.ErrNotFound)
}

func testMembers(t *testing.T, repo documents.Repository) {
	ctx := context.Background()
	role, err := repo.MemberRole(ctx, "p1", "u1")
	require.NoError(t, err)
	require.Empty(t, role)

	require.NoError(t, repo.SetMemberRole(ctx, "p1", "u1", documents.RoleViewer))
	require.NoError(t, repo.SetMemberRole(ctx, "p1", "u1", documents.RoleEditor))
	role, err = repo.MemberRole(ctx, "p1", "u1")
	require.NoError(t, err)
	require.Equal(t, documents.RoleEditor, role)

	role, err = repo.MemberRole(ctx, "p2", "u1")
	require.NoError(t, err)
	require.Empty(t, role)
}

func testBlockUpsert(t *testing.T, repo documents.Repository) {
	ctx := context.Background()
	seedDocument(t, repo, "d1")
	seedBlock(t, repo, "d1", "b1", 1, epoch)

	updated, err := repo.UpsertBlock(ctx, documents.DocumentBlock{
		ID:          "b1",
		DocumentID:  "d1",
		BlockDefID:  "heading",
		Order:       1,
		Config:      map[string]any{"title": "changed", "nested": map[string]any{"n": 2.0}},
		LatexSource: "\\section{changed}",
	})
	require.NoError(t, err)
	require.True(t, epoch.Equal(updated.CreatedAt), "update keeps createdAt")

	blocks, err := repo.ListBlocks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, "\\section{changed}", blocks[0].LatexSource)
	require.Equal(t, map[string]any{"title": "changed", "nested": map[string]any{"n": 2.0}}, blocks[0].Config)
	require.Empty(t, blocks[0].Packages)

	_, err = repo.UpsertBlock(ctx, documents.DocumentBlock{ID: "b2", DocumentID: "missing", BlockDefID: "heading", Order: 1})
	require.ErrorIs(t, err, documents.ErrNotFound)
}

func testBlockOwnership(t *testing.T, repo documents.Repository) {
	ctx := context.Background()
	seedDocument(t, repo, "d1")
	seedDocument(t, repo, "d2")
	seedBlock(t, repo, "d1", "b1", 1, epoch)

	_, err := repo.UpsertBlock(ctx, documents.DocumentBlock{ID: "b1", DocumentID: "d2", BlockDefID: "heading", Order: 1})
	require.ErrorIs(t, err, documents.ErrConflict)

	ids, _ := blockIDs(t, repo, "d2")
	require.Empty(t, ids)

	// removing a foreign id is a no-op
	require.NoError(t, repo.RemoveBlocks(ctx, "d2", []string{"b1"}))
	ids, _ = blockIDs(t, repo, "d1")
	require.Equal(t, []string{"b1"}, ids)
}

func testRemoveRenumbers(t *testing.T, repo documents.Repository) {
	ctx := context.Background()
	seedDocument(t, repo, "d1")
	for i, id := range []string{"a", "b", "c", "d"} {
		seedBlock(t, repo, "d1", id, i+1, epoch.Add(time.Duration(i)*time.Second))
	}

	require.NoError(t, repo.RemoveBlocks(ctx, "d1", []string{"b", "missing"}))
	ids, orders := blockIDs(t, repo, "d1")
	require.Equal(t, []string{"a", "c", "d"}, ids)
	require.Equal(t, []int{1, 2, 3}, orders)

	require.ErrorIs(t, repo.RemoveBlocks(ctx, "missing", []string{"a"}), documents.ErrNotFound)
}

func testOrderUpdates(t *testing.T, repo documents.Repository) {
	ctx := context.Background()
	seedDocument(t, repo, "d1")
	seedBlock(t, repo, "d1", "a", 1, epoch)
	seedBlock(t, repo, "d1", "b", 2, epoch.Add(time.Second))
	seedBlock(t, repo, "d1", "c", 3, epoch.Add(2*time.Second))

	require.NoError(t, repo.ApplyOrderUpdates(ctx, "d1", []documents.OrderUpdate{
		{ID: "c", Order: 1},
		{ID: "ghost", Order: 2},
	}))
	// a and c now share order 1; the older block wins the tie
	require.NoError(t, repo.NormalizeOrder(ctx, "d1"))
	ids, orders := blockIDs(t, repo, "d1")
	require.Equal(t, []string{"a", "c", "b"}, ids)
	require.Equal(t, []int{1, 2, 3}, orders)

	require.ErrorIs(t, repo.ApplyOrderUpdates(ctx, "missing", nil), documents.ErrNotFound)
}

func testConcurrentUpserts(t *testing.T, repo documents.Repository) {
	seedDocument(t, repo, "d1")
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpsertBlock(context.Background(), documents.DocumentBlock{
				ID:         fmt.Sprintf("b%02d", i),
				DocumentID: "d1",
				BlockDefID: "heading",
				Order:      i + 1,
				CreatedAt:  epoch,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, repo.NormalizeOrder(context.Background(), "d1"))
	_, orders := blockIDs(t, repo, "d1")
	require.Len(t, orders, 16)
	for i, o := range orders {
		require.Equal(t, i+1, o)
	}
}

func testVersions(t *testing.T, repo documents.Repository) {
	ctx := context.Background()
	seedDocument(t, repo, "d1")

	n, err := repo.CountVersions(ctx, "d1")
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = repo.LatestVersion(ctx, "d1")
	require.ErrorIs(t, err, documents.ErrNotFound)

	cfg := &latex.PageConfig{LineSpacing: latex.LineSpacingDouble}
	version := func(n int, hash string) documents.DocumentVersion {
		return documents.DocumentVersion{
			ID:          fmt.Sprintf("v%d", n),
			DocumentID:  "d1",
			Version:     n,
			Hash:        hash,
			PDFKey:      fmt.Sprintf("documents/d1/versions/%d.pdf", n),
			LatexSource: "source " + hash,
			LatexConfig: cfg,
			Title:       "Doc d1",
			CreatedBy:   "u1",
			CreatedAt:   epoch.Add(time.Duration(n) * time.Minute),
		}
	}

	_, err = repo.CreateVersion(ctx, version(1, "h1"))
	require.NoError(t, err)
	_, err = repo.CreateVersion(ctx, version(2, "h2"))
	require.NoError(t, err)

	_, err = repo.CreateVersion(ctx, version(2, "h3"))
	require.ErrorIs(t, err, documents.ErrConflict)
	_, err = repo.CreateVersion(ctx, documents.DocumentVersion{DocumentID: "d1", Version: 3})
	require.Error(t, err)
	missing := version(1, "h1")
	missing.DocumentID = "missing"
	_, err = repo.CreateVersion(ctx, missing)
	require.ErrorIs(t, err, documents.ErrNotFound)

	n, err = repo.CountVersions(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	latest, err := repo.LatestVersion(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
	require.Equal(t, "h2", latest.Hash)
	require.Equal(t, "source h2", latest.LatexSource)
	require.Equal(t, cfg, latest.LatexConfig)

	doc, err := repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 2, doc.LatestVersion)
	require.Equal(t, "documents/d1/versions/2.pdf", doc.PDFKey)

	first, err := repo.GetVersion(ctx, "d1", 1)
	require.NoError(t, err)
	require.Equal(t, "h1", first.Hash)
	_, err = repo.GetVersion(ctx, "d1", 9)
	require.ErrorIs(t, err, documents.ErrNotFound)

	list, err := repo.ListVersions(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 2, list[0].Version)
	require.Equal(t, 1, list[1].Version)
}
