package richdoc

// Editor node types produced by the block-form editor.
const (
	EditorRoot            = "root"
	EditorParagraph       = "paragraph"
	EditorText            = "text"
	EditorLayoutContainer = "layout-container"
	EditorLayoutItem      = "layout-item"
)

// TextFormatBold is the bold bit of EditorNode.TextFormat.
const TextFormatBold = 1

// EditorState is the in-memory tree of the rich-text editor.
type EditorState struct {
	Root EditorNode `json:"root"`
}

// EditorNode is one node of the editor tree. Element nodes use Format for
// alignment; text nodes use Text and the TextFormat bitmask; layout
// containers declare their column count in Columns.
type EditorNode struct {
	Type       string       `json:"type"`
	Format     string       `json:"format,omitempty"`
	Text       string       `json:"text,omitempty"`
	TextFormat int          `json:"textFormat,omitempty"`
	Columns    int          `json:"columns,omitempty"`
	Children   []EditorNode `json:"children,omitempty"`
}

// Export converts editor state into a Document. Left alignment is the
// implicit default and is never encoded. Editor nodes outside the document
// vocabulary are dropped.
func Export(state EditorState) Document {
	nodes := make([]Node, 0, len(state.Root.Children))
	for _, child := range state.Root.Children {
		switch child.Type {
		case EditorParagraph:
			nodes = append(nodes, Paragraph{
				Alignment: exportAlignment(child.Format),
				Children:  directTexts(child),
			})
		case EditorLayoutContainer:
			cols := make([]Column, 0, len(child.Children))
			for _, item := range child.Children {
				if item.Type != EditorLayoutItem {
					continue
				}
				cols = append(cols, Column{Children: collectTexts(item, nil)})
			}
			count := child.Columns
			if count == 0 {
				count = len(cols)
			}
			nodes = append(nodes, Columns{Count: count, Columns: cols})
		}
	}
	return Document{Version: FormatVersion, Nodes: nodes}
}

// Import builds editor state from a Document. Unknown nodes are skipped.
func Import(doc Document) EditorState {
	root := EditorNode{Type: EditorRoot}
	for _, n := range doc.Nodes {
		switch n := n.(type) {
		case Paragraph:
			root.Children = append(root.Children, EditorNode{
				Type:     EditorParagraph,
				Format:   string(n.Alignment),
				Children: importTexts(n.Children),
			})
		case Columns:
			container := EditorNode{Type: EditorLayoutContainer, Columns: n.Count}
			for _, col := range n.Columns {
				container.Children = append(container.Children, EditorNode{
					Type: EditorLayoutItem,
					Children: []EditorNode{{
						Type:     EditorParagraph,
						Children: importTexts(col.Children),
					}},
				})
			}
			root.Children = append(root.Children, container)
		case Unknown:
		}
	}
	return EditorState{Root: root}
}

func exportAlignment(format string) Alignment {
	switch Alignment(format) {
	case AlignCenter, AlignRight:
		return Alignment(format)
	default:
		return ""
	}
}

func directTexts(n EditorNode) []Text {
	out := make([]Text, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Type == EditorText {
			out = append(out, Text{Content: c.Text, Bold: c.TextFormat&TextFormatBold != 0})
		}
	}
	return out
}

func collectTexts(n EditorNode, acc []Text) []Text {
	if acc == nil {
		acc = []Text{}
	}
	for _, c := range n.Children {
		if c.Type == EditorText {
			acc = append(acc, Text{Content: c.Text, Bold: c.TextFormat&TextFormatBold != 0})
			continue
		}
		acc = collectTexts(c, acc)
	}
	return acc
}

func importTexts(texts []Text) []EditorNode {
	out := make([]EditorNode, 0, len(texts))
	for _, t := range texts {
		n := EditorNode{Type: EditorText, Text: t.Content}
		if t.Bold {
			n.TextFormat = TextFormatBold
		}
		out = append(out, n)
	}
	return out
}
