package richdoc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
	"version": "1.0",
	"nodes": [
		{"type": "paragraph", "children": [
			{"type": "text", "content": "Plain "},
			{"type": "text", "content": "bold", "styles": {"bold": true}}
		]},
		{"type": "paragraph", "alignment": "center", "children": [
			{"type": "text", "content": "Centered"}
		]},
		{"type": "columns", "count": 2, "columns": [
			{"type": "column", "children": [{"type": "text", "content": "A"}]},
			{"type": "column", "children": [{"type": "text", "content": "B", "styles": {"bold": true}}]}
		]},
		{"type": "paragraph", "alignment": "right", "children": [
			{"type": "text", "content": "Right"}
		]}
	]
}`

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":"2.0","nodes":[]}`))
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode([]byte(`{"nodes":[]}`))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestImportExportRoundTrip(t *testing.T) {
	doc, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)

	exported := Export(Import(doc))
	assert.Equal(t, doc, exported)

	again := Export(Import(exported))
	assert.Equal(t, exported, again)

	a, err := json.Marshal(doc)
	require.NoError(t, err)
	b, err := json.Marshal(exported)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestExportOmitsLeftAlignment(t *testing.T) {
	state := EditorState{Root: EditorNode{Type: EditorRoot, Children: []EditorNode{
		{Type: EditorParagraph, Format: "left", Children: []EditorNode{{Type: EditorText, Text: "x"}}},
		{Type: EditorParagraph, Format: "justify", Children: []EditorNode{{Type: EditorText, Text: "y"}}},
	}}}

	out, err := json.Marshal(Export(state))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "alignment")
}

func TestDecodeNormalisesLeftAlignment(t *testing.T) {
	doc, err := Decode([]byte(`{"version":"1.0","nodes":[{"type":"paragraph","alignment":"left","children":[]}]}`))
	require.NoError(t, err)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, Alignment(""), doc.Nodes[0].(Paragraph).Alignment)
}

func TestExportFlattensColumnParagraphs(t *testing.T) {
	state := EditorState{Root: EditorNode{Type: EditorRoot, Children: []EditorNode{{
		Type:    EditorLayoutContainer,
		Columns: 3,
		Children: []EditorNode{
			{Type: EditorLayoutItem, Children: []EditorNode{
				{Type: EditorParagraph, Children: []EditorNode{{Type: EditorText, Text: "one"}}},
				{Type: EditorParagraph, Children: []EditorNode{{Type: EditorText, Text: "two", TextFormat: TextFormatBold}}},
			}},
		},
	}}}}

	doc := Export(state)
	require.Len(t, doc.Nodes, 1)
	cols := doc.Nodes[0].(Columns)
	assert.Equal(t, 3, cols.Count)
	require.Len(t, cols.Columns, 1)
	assert.Equal(t, []Text{{Content: "one"}, {Content: "two", Bold: true}}, cols.Columns[0].Children)
}

func TestUnknownNodesSurviveEncoding(t *testing.T) {
	in := `{"version":"1.0","nodes":[{"type":"image","src":"x.png"}]}`
	doc, err := Decode([]byte(in))
	require.NoError(t, err)
	require.IsType(t, Unknown{}, doc.Nodes[0])

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a\b`, `a\textbackslash{}b`},
		{`50% & $5 #1 a_b {x}`, `50\% \& \$5 \#1 a\_b \{x\}`},
		{`~^`, `\textasciitilde{}\textasciicircum{}`},
		{"line\nbreak", "line break"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestEscapeLeavesNoBareMetacharacters(t *testing.T) {
	out := Escape(`\&%$#_{}~^`)
	stripped := strings.NewReplacer(
		`\textbackslash{}`, "",
		`\textasciitilde{}`, "",
		`\textasciicircum{}`, "",
		`\&`, "", `\%`, "", `\$`, "", `\#`, "", `\_`, "", `\{`, "", `\}`, "",
	).Replace(out)
	assert.Empty(t, stripped)
}

func TestToLatexDocument(t *testing.T) {
	got := ToLatex(sampleDoc)
	want := "Plain \\textbf{bold}\n" +
		"\\begin{center}\nCentered\n\\end{center}\n" +
		"\\begin{multicols}{2}\nA\n\\par\n\\textbf{B}\n\\end{multicols}\n" +
		"\\begin{flushright}\nRight\n\\end{flushright}"
	assert.Equal(t, want, got)
}

func TestToLatexNewlineBetweenPlainParagraphs(t *testing.T) {
	in := `{"version":"1.0","nodes":[
		{"type":"paragraph","children":[{"type":"text","content":"one"}]},
		{"type":"paragraph","children":[]},
		{"type":"paragraph","children":[{"type":"text","content":"two"}]}
	]}`
	assert.Equal(t, "one\n\\newline\ntwo", ToLatex(in))
}

func TestToLatexKeepsEmptyAlignedParagraphs(t *testing.T) {
	tests := []struct {
		name      string
		alignment string
		want      string
	}{
		{"center", "center", "a\n\\begin{center}\n\n\\end{center}\nb"},
		{"right", "right", "a\n\\begin{flushright}\n\n\\end{flushright}\nb"},
		{"left is dropped", "left", "a\n\\newline\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := `{"version":"1.0","nodes":[
				{"type":"paragraph","children":[{"type":"text","content":"a"}]},
				{"type":"paragraph","alignment":"` + tt.alignment + `","children":[]},
				{"type":"paragraph","children":[{"type":"text","content":"b"}]}
			]}`
			assert.Equal(t, tt.want, ToLatex(in))
		})
	}
}

func TestToLatexColumnsUseDeclaredCount(t *testing.T) {
	doc := Document{Version: FormatVersion, Nodes: []Node{
		Columns{Count: 3, Columns: []Column{{Children: []Text{{Content: "only"}}}}},
	}}
	assert.Equal(t, "\\begin{multicols}{3}\nonly\n\\end{multicols}", ToLatex(doc))
}

func TestToLatexFallbacks(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"literal string", "Tom & Jerry", `Tom \& Jerry`},
		{"empty string", "", ""},
		{"json number", "42", ""},
		{"no nodes", `{"version":"1.0","nodes":[]}`, ""},
		{"missing nodes", `{"version":"1.0"}`, ""},
		{"unsupported version", `{"version":"9","nodes":[{"type":"paragraph","children":[{"type":"text","content":"x"}]}]}`, ""},
		{"unknown node only", `{"version":"1.0","nodes":[{"type":"table"}]}`, ""},
		{"decoded map", map[string]any{
			"version": "1.0",
			"nodes": []any{map[string]any{
				"type":     "paragraph",
				"children": []any{map[string]any{"type": "text", "content": "50%"}},
			}},
		}, `50\%`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToLatex(tt.in))
		})
	}
}

func TestIsBlockEnvironment(t *testing.T) {
	assert.True(t, isBlockEnvironment("  \\begin{center}\nx\n\\end{center} "))
	assert.True(t, isBlockEnvironment("\\begin{multicols}{2}\nx\n\\end{multicols}"))
	assert.False(t, isBlockEnvironment("\\begin{center}x\\end{flushright}"))
	assert.False(t, isBlockEnvironment("text \\begin{center}x\\end{center}"))
	assert.False(t, isBlockEnvironment("\\textbf{x}"))
}
