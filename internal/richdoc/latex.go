package richdoc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Escape makes s safe to embed as LaTeX text. The substitution is a single
// pass, so the backslashes and braces introduced for one character are never
// escaped again.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\textbackslash{}`)
		case '&', '%', '$', '#', '_', '{', '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '~':
			b.WriteString(`\textasciitilde{}`)
		case '^':
			b.WriteString(`\textasciicircum{}`)
		case '\n':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToLatex renders a rich document to LaTeX. Input may be a Document, a JSON
// string or byte slice, or an already decoded JSON value. A string that is not
// JSON is rendered as escaped literal text. Anything that is not a document
// with at least one node renders as the empty string.
func ToLatex(input any) string {
	var raw []byte
	switch v := input.(type) {
	case nil:
		return ""
	case Document:
		return render(v)
	case *Document:
		if v == nil {
			return ""
		}
		return render(*v)
	case string:
		if !json.Valid([]byte(v)) {
			return Escape(v)
		}
		raw = []byte(v)
	case []byte:
		if !json.Valid(v) {
			return Escape(string(v))
		}
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		raw = b
	}
	doc, ok := decodeLoose(raw)
	if !ok {
		return ""
	}
	return render(doc)
}

func decodeLoose(raw []byte) (Document, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || probe == nil {
		return Document{}, false
	}
	var nodes []json.RawMessage
	if err := json.Unmarshal(probe["nodes"], &nodes); err != nil || len(nodes) == 0 {
		return Document{}, false
	}
	doc, err := Decode(raw)
	if err != nil {
		return Document{}, false
	}
	return doc, true
}

func render(doc Document) string {
	if len(doc.Nodes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if out := renderNode(n); out != "" {
			parts = append(parts, out)
		}
	}

	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			if !isBlockEnvironment(parts[i-1]) && !isBlockEnvironment(part) {
				b.WriteString("\n\\newline\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(part)
	}
	return b.String()
}

func renderNode(n Node) string {
	switch n := n.(type) {
	case Paragraph:
		content := renderRuns(n.Children, "")
		// Aligned paragraphs keep their environment even when empty.
		switch n.Alignment {
		case AlignCenter:
			return "\\begin{center}\n" + content + "\n\\end{center}"
		case AlignRight:
			return "\\begin{flushright}\n" + content + "\n\\end{flushright}"
		default:
			return content
		}
	case Columns:
		cols := make([]string, 0, len(n.Columns))
		for _, c := range n.Columns {
			cols = append(cols, renderRuns(c.Children, "\n\\par\n"))
		}
		return "\\begin{multicols}{" + strconv.Itoa(n.Count) + "}\n" +
			strings.Join(cols, "\n\\par\n") +
			"\n\\end{multicols}"
	case Unknown:
		return ""
	default:
		return ""
	}
}

func renderRuns(texts []Text, sep string) string {
	runs := make([]string, 0, len(texts))
	for _, t := range texts {
		s := Escape(t.Content)
		if t.Bold {
			s = `\textbf{` + s + `}`
		}
		runs = append(runs, s)
	}
	return strings.Join(runs, sep)
}

// isBlockEnvironment reports whether s, once trimmed, is a single
// \begin{X}...\end{X} environment.
func isBlockEnvironment(s string) bool {
	s = strings.TrimSpace(s)
	const begin = `\begin{`
	if !strings.HasPrefix(s, begin) {
		return false
	}
	rest := s[len(begin):]
	end := strings.IndexByte(rest, '}')
	if end <= 0 {
		return false
	}
	name := rest[:end]
	for _, r := range name {
		if !(r == '_' || r == '*' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	closing := `\end{` + name + `}`
	return strings.HasSuffix(s, closing) && len(s) >= len(begin)+end+1+len(closing)
}
