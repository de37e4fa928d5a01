package blockdefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

const headingTOML = `
name = "Heading"
category = "text"
latex_template = '\section{${title}}\n\textcolor{${color}}{x}'

[[required_packages]]
name = "xcolor"
options = ["table"]

[variable_rules.color]
combine = ""

[[variable_rules.color.fields]]
key = "color"
default = "black"

[config_schema]
type = "object"
required = ["title"]

[config_schema.properties.title]
type = "string"
maxLength = 80

[config_schema.properties.body]
"ui:widget" = "textarea"

[config_schema.properties.color]
type = "string"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	def, err := LoadFile(writeFile(t, dir, "heading.toml", headingTOML))
	require.NoError(t, err)

	assert.Equal(t, "heading", def.ID)
	assert.Equal(t, "Heading", def.Name)
	assert.Equal(t, `\section{${title}}\n\textcolor{${color}}{x}`, def.LatexTemplate)
	assert.Equal(t, []latex.Package{{Name: "xcolor", Options: []string{"table"}}}, def.RequiredPackages)
	require.Contains(t, def.VariableRules, "color")
	require.Len(t, def.VariableRules["color"].Fields, 1)
	field, ok := def.VariableRules["color"].Fields[0].(latex.ConfigField)
	require.True(t, ok)
	assert.Equal(t, "color", field.Key)
	assert.True(t, field.HasDefault)
	assert.Equal(t, []string{"body"}, def.TextareaFields())
	require.NoError(t, def.Validate())
}

func TestLoadDirSkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.toml", `latex_template = "B"`)
	writeFile(t, dir, "a.toml", `latex_template = "A"`)
	writeFile(t, dir, "notes.md", "ignored")
	writeFile(t, dir, ".hidden.toml", "not = [valid")

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].ID)
	assert.Equal(t, "b", defs[1].ID)
}

func TestLoadFileRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile(writeFile(t, dir, "bad.toml", "latex_template = "))
	require.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	dir := t.TempDir()
	def, err := LoadFile(writeFile(t, dir, "heading.toml", headingTOML))
	require.NoError(t, err)

	assert.NoError(t, def.ValidateConfig(map[string]any{"title": "Intro", "color": "#000000"}))
	assert.ErrorIs(t, def.ValidateConfig(map[string]any{"color": "#000000"}), ErrInvalidInput)
	assert.ErrorIs(t, def.ValidateConfig(map[string]any{"title": 12}), ErrInvalidInput)

	bare := Definition{ID: "bare", LatexTemplate: "x"}
	assert.NoError(t, bare.ValidateConfig(map[string]any{"anything": []int{1}}))
}

func TestDefinitionValidate(t *testing.T) {
	assert.Error(t, (&Definition{LatexTemplate: "x"}).Validate())
	assert.Error(t, (&Definition{ID: "x"}).Validate())
	assert.Error(t, (&Definition{ID: "x", LatexTemplate: "x", RequiredPackages: []latex.Package{{}}}).Validate())
	assert.Error(t, (&Definition{ID: "x", LatexTemplate: "x", ConfigSchema: map[string]any{"type": 5}}).Validate())
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Put(Definition{ID: "title", Name: "Title page", LatexTemplate: "T"}))
	require.NoError(t, reg.Put(Definition{ID: "table", Name: "Table", Category: "data", LatexTemplate: "X"}))
	assert.ErrorIs(t, reg.Put(Definition{ID: "broken"}), ErrInvalidInput)

	def, err := reg.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "Title page", def.Name)
	assert.False(t, def.UpdatedAt.IsZero())

	_, err = reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := reg.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "table", all[0].ID)

	data, err := reg.List(ctx, ListOptions{Category: "data"})
	require.NoError(t, err)
	require.Len(t, data, 1)

	found, err := reg.List(ctx, ListOptions{Search: "PAGE"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "title", found[0].ID)

	paged, err := reg.List(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "title", paged[0].ID)

	require.NoError(t, reg.Delete("table"))
	assert.ErrorIs(t, reg.Delete("table"), ErrNotFound)
}

func TestRegistryReplaceIsAllOrNothing(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Put(Definition{ID: "keep", LatexTemplate: "K"}))

	err := reg.Replace([]Definition{{ID: "a", LatexTemplate: "A"}, {ID: "b"}})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1, reg.Len())

	err = reg.Replace([]Definition{{ID: "a", LatexTemplate: "A"}, {ID: "a", LatexTemplate: "A2"}})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, reg.Replace([]Definition{{ID: "a", LatexTemplate: "A"}}))
	assert.Equal(t, 1, reg.Len())
	_, err = reg.Get(context.Background(), "keep")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatcherReloadsRegistry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.toml", `latex_template = "A"`)

	reg := NewRegistry()
	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Replace(defs))

	w, err := NewWatcher(dir, reg, zerolog.Nop())
	require.NoError(t, err)
	w.Debounce = 20 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, dir, "b.toml", `latex_template = "B"`)

	select {
	case <-w.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("catalog was not reloaded")
	}
	require.Eventually(t, func() bool { return reg.Len() == 2 }, 5*time.Second, 20*time.Millisecond)
}
