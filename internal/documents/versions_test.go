package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) version(t *testing.T, note string) (*DocumentVersion, error) {
	t.Helper()
	return f.svc.CreateVersion(context.Background(), CreateVersionRequest{DocumentID: f.doc.ID, UserID: editor, Note: note})
}

func TestCreateVersionRequiresCompiledContent(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.version(t, "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.compile(t, CompileRequest{})
	require.NoError(t, err)
	_, err = f.version(t, "")
	assert.ErrorIs(t, err, ErrConflict, "an empty document cannot be versioned")
}

func TestCreateVersionHashGate(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.compile(t, CompileRequest{Added: []ChangedBlock{bold("b1", "One", 1)}})
	require.NoError(t, err)

	v1, err := f.version(t, "first draft")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, ContentHash(f.document(t).LatexSource), v1.Hash)
	assert.Equal(t, "first draft", v1.Note)
	assert.Equal(t, editor, v1.CreatedBy)
	assert.Equal(t, "Report", v1.Title)

	calls := f.conv.calls()
	_, err = f.version(t, "")
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, calls, f.conv.calls())

	_, err = f.compile(t, CompileRequest{Updated: []ChangedBlock{bold("b1", "Two", 1)}})
	require.NoError(t, err)
	v2, err := f.version(t, "")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.NotEqual(t, v1.Hash, v2.Hash)

	doc := f.document(t)
	assert.Equal(t, v2.PDFKey, doc.PDFKey)
	assert.Equal(t, 2, doc.LatestVersion)
	pdf, err := f.objects.Get(context.Background(), v2.PDFKey)
	require.NoError(t, err)
	assert.Contains(t, string(pdf), `\textbf{Two}`)
}

func TestCreateVersionCap(t *testing.T) {
	f := newFixture(t, Options{MaxVersions: 2})
	for i, title := range []string{"A", "B", "C"} {
		_, err := f.compile(t, CompileRequest{Updated: []ChangedBlock{bold("b1", title, 1)}})
		require.NoError(t, err)
		_, err = f.version(t, "")
		if i < 2 {
			require.NoError(t, err)
			continue
		}
		require.ErrorIs(t, err, ErrConflict)
	}
	count, err := f.repo.CountVersions(context.Background(), f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCreateVersionForbiddenForViewer(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.compile(t, CompileRequest{Added: []ChangedBlock{bold("b1", "One", 1)}})
	require.NoError(t, err)

	_, err = f.svc.CreateVersion(context.Background(), CreateVersionRequest{DocumentID: f.doc.ID, UserID: viewer})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateVersionConversionFailure(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.compile(t, CompileRequest{Added: []ChangedBlock{bold("b1", "One", 1)}})
	require.NoError(t, err)

	f.conv.err = assert.AnError
	_, err = f.version(t, "")
	require.ErrorIs(t, err, ErrCompilation)
	count, err := f.repo.CountVersions(context.Background(), f.doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListVersionsAndDownload(t *testing.T) {
	f := newFixture(t, Options{})
	for _, title := range []string{"A", "B"} {
		_, err := f.compile(t, CompileRequest{Updated: []ChangedBlock{bold("b1", title, 1)}})
		require.NoError(t, err)
		_, err = f.version(t, title)
		require.NoError(t, err)
	}

	versions, err := f.svc.ListVersions(context.Background(), f.doc.ID, viewer)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[1].Version)

	pdf, err := f.svc.VersionPDF(context.Background(), f.doc.ID, viewer, 1)
	require.NoError(t, err)
	assert.Contains(t, string(pdf), `\textbf{A}`)

	_, err = f.svc.VersionPDF(context.Background(), f.doc.ID, viewer, 9)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.ListVersions(context.Background(), f.doc.ID, "nobody")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRenderBlockLeavesConfigUntouched(t *testing.T) {
	reg := testDefinitions(t)
	def, err := reg.Get(context.Background(), "colored")
	require.NoError(t, err)
	cfg := map[string]any{"color": "#FF8000", "title": "x"}

	out := RenderBlock(def, cfg)
	assert.NotContains(t, out, "#FF8000")
	assert.Equal(t, "#FF8000", cfg["color"])
}
