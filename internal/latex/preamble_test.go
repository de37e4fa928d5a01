package latex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorRegistryIdempotent(t *testing.T) {
	reg := NewColorRegistry()
	first, err := reg.Register("#3b82f6")
	require.NoError(t, err)
	second, err := reg.Register("#3b82f6")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, `^color[0-9a-f]{8}$`, first)
	assert.Equal(t, 1, reg.Len())
}

func TestColorRegistryDistinctNames(t *testing.T) {
	reg := NewColorRegistry()
	hexes := []string{"#000000", "#FFFFFF", "#ffffff", "#3b82f6", "#ef4444"}
	names := map[string]bool{}
	for _, h := range hexes {
		name, err := reg.Register(h)
		require.NoError(t, err)
		names[name] = true
	}
	assert.Len(t, names, len(hexes))
	assert.Len(t, reg.Definitions(), len(hexes))
}

func TestColorRegistryRejectsInvalidHex(t *testing.T) {
	reg := NewColorRegistry()
	for _, bad := range []string{"3b82f6", "#3b82f", "#3b82f6a", "#zzzzzz", "red"} {
		_, err := reg.Register(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, 0, reg.Len())
}

func TestDefinitionsFormat(t *testing.T) {
	reg := NewColorRegistry()
	name, err := reg.Register("#FF8000")
	require.NoError(t, err)
	assert.Equal(t, []string{`\definecolor{` + name + `}{rgb}{1.00,0.50,0.00}`}, reg.Definitions())
}

func TestExtractColorsIsShallow(t *testing.T) {
	reg := NewColorRegistry()
	ExtractColors(map[string]any{
		"fg":     "#111111",
		"title":  "not a color",
		"nested": map[string]any{"bg": "#222222"},
		"list":   []any{"#333333"},
	}, reg)

	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Name("#111111")
	assert.True(t, ok)
	_, ok = reg.Name("#222222")
	assert.False(t, ok)
}

func TestReplaceColorsCopies(t *testing.T) {
	reg := NewColorRegistry()
	cfg := map[string]any{"fg": "#111111", "n": 1.0}
	ExtractColors(cfg, reg)
	out := ReplaceColors(cfg, reg)

	assert.Equal(t, ColorName("#111111"), out["fg"])
	assert.Equal(t, 1.0, out["n"])
	assert.Equal(t, "#111111", cfg["fg"])
}

func TestAssemblePackages(t *testing.T) {
	reg := NewColorRegistry()
	_, err := reg.Register("#000000")
	require.NoError(t, err)

	got := AssemblePackages([][]Package{
		{{Name: "xcolor", Options: []string{"table"}}, {Name: "graphicx"}},
		{{Name: "xcolor", Options: []string{"dvipsnames", "table"}}, {Name: "multicol"}},
		{{Name: "graphicx"}},
	}, reg)

	want := "\\usepackage[table,dvipsnames]{xcolor}\n" +
		"\\usepackage{graphicx}\n" +
		"\\usepackage{multicol}\n" +
		"\\definecolor{" + ColorName("#000000") + "}{rgb}{0.00,0.00,0.00}\n"
	assert.Equal(t, want, got)
}

func TestRenderPageConfigDefault(t *testing.T) {
	assert.Equal(t, DefaultPreamble, RenderPageConfig(nil))
}

func TestRenderPageConfig(t *testing.T) {
	cfg := &PageConfig{
		DocumentClass: DocumentClass{Type: "report", FontSize: "11pt", PaperSize: "letterpaper", TwoSide: true},
		Orientation:   OrientationLandscape,
		Margins:       Margins{Top: 2.5, Bottom: 2.5, Left: 2, Right: 1.75},
		LineSpacing:   LineSpacingOneHalf,
	}
	want := "\\documentclass[11pt,letterpaper,twoside,landscape]{report}\n" +
		"\\usepackage[top=2.5cm,bottom=2.5cm,left=2cm,right=1.75cm]{geometry}\n" +
		"\\usepackage{setspace}\n\\onehalfspacing\n"
	assert.Equal(t, want, RenderPageConfig(cfg))

	cfg.LineSpacing = LineSpacingSingle
	cfg.Orientation = OrientationPortrait
	got := RenderPageConfig(cfg)
	assert.NotContains(t, got, "setspace")
	assert.NotContains(t, got, "landscape")

	cfg.LineSpacing = LineSpacingDouble
	assert.Contains(t, RenderPageConfig(cfg), "\\doublespacing")
}

func TestPageConfigValidate(t *testing.T) {
	assert.NoError(t, PageConfig{}.Validate())
	assert.Error(t, PageConfig{Orientation: "sideways"}.Validate())
	assert.Error(t, PageConfig{LineSpacing: "triple"}.Validate())
	assert.Error(t, PageConfig{Margins: Margins{Top: -1}}.Validate())
}

func TestEmptyDocument(t *testing.T) {
	src := EmptyDocument(nil)
	assert.True(t, strings.HasPrefix(src, DefaultPreamble))
	assert.Contains(t, src, "\\begin{document}\nThis document is empty.")
	assert.True(t, strings.HasSuffix(src, "\\end{document}\n"))
}

func TestAssembleDocument(t *testing.T) {
	got := AssembleDocument("PRE\n", "PKG\n", []string{"one", "two"})
	assert.Equal(t, "PRE\nPKG\n\\begin{document}\none\n\ntwo\n\\end{document}\n", got)
}
