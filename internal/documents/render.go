package documents

import (
	"github.com/lumiforge/docbuilder-backend/internal/blockdefs"
	"github.com/lumiforge/docbuilder-backend/internal/latex"
	"github.com/lumiforge/docbuilder-backend/internal/richdoc"
)

// RenderBlock compiles one block configuration into its LaTeX fragment.
// Textarea fields are converted from rich documents first, then hex colors
// are swapped for their registered names before template substitution. The
// input config is not modified.
func RenderBlock(def *blockdefs.Definition, config map[string]any) string {
	converted := make(map[string]any, len(config))
	for k, v := range config {
		converted[k] = v
	}
	for _, key := range def.TextareaFields() {
		if v, ok := converted[key]; ok {
			converted[key] = richdoc.ToLatex(v)
		}
	}

	colors := latex.NewColorRegistry()
	latex.ExtractColors(converted, colors)
	return latex.Compile(def.LatexTemplate, def.VariableRules, latex.ReplaceColors(converted, colors))
}

// AssembleSource builds the full document source from blocks already sorted
// by order. Without blocks the empty-document placeholder is returned and no
// color or package extraction happens.
func AssembleSource(blocks []DocumentBlock, pageConfig *latex.PageConfig) string {
	if len(blocks) == 0 {
		return latex.EmptyDocument(pageConfig)
	}
	colors := latex.NewColorRegistry()
	packages := make([][]latex.Package, 0, len(blocks))
	fragments := make([]string, 0, len(blocks))
	for _, b := range blocks {
		latex.ExtractColors(b.Config, colors)
		packages = append(packages, b.Packages)
		fragments = append(fragments, b.LatexSource)
	}
	return latex.AssembleDocument(
		latex.RenderPageConfig(pageConfig),
		latex.AssemblePackages(packages, colors),
		fragments,
	)
}
