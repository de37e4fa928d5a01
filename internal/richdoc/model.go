// Package richdoc implements the rich-text document format used by textarea
// block fields: a small node tree of paragraphs, styled text runs and
// multi-column layouts, its editor-state import/export and its LaTeX rendering.
package richdoc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FormatVersion is the only document version this package understands.
const FormatVersion = "1.0"

var (
	// ErrUnsupportedVersion is returned when a document declares a version
	// other than FormatVersion.
	ErrUnsupportedVersion = errors.New("richdoc: unsupported document version")
	// ErrMalformed is returned when a document cannot be decoded.
	ErrMalformed = errors.New("richdoc: malformed document")
)

// Alignment enumerates paragraph alignment values.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Document is an immutable rich-text document.
type Document struct {
	Version string
	Nodes   []Node
}

// Node is a top-level document node. The set of implementations is closed:
// Paragraph, Columns and Unknown.
type Node interface {
	node()
}

// Paragraph is a run of text with optional non-default alignment.
type Paragraph struct {
	// Alignment is empty for the implicit left default.
	Alignment Alignment
	Children  []Text
}

// Columns is a multi-column layout. Count is the declared column count and
// is not required to match len(Columns).
type Columns struct {
	Count   int
	Columns []Column
}

// Column holds the text runs of one column. It only appears inside Columns.
type Column struct {
	Children []Text
}

// Unknown keeps a node of an unrecognised type so documents written by newer
// editors survive a decode/encode cycle.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

// Text is a leaf text run. Content may be empty.
type Text struct {
	Content string
	Bold    bool
}

func (Paragraph) node() {}
func (Columns) node()   {}
func (Unknown) node()   {}

type textStyles struct {
	Bold bool `json:"bold,omitempty"`
}

type wireText struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Styles  *textStyles `json:"styles,omitempty"`
}

type wireParagraph struct {
	Type      string     `json:"type"`
	Alignment Alignment  `json:"alignment,omitempty"`
	Children  []wireText `json:"children"`
}

type wireColumn struct {
	Type     string     `json:"type"`
	Children []wireText `json:"children"`
}

type wireColumns struct {
	Type    string       `json:"type"`
	Count   int          `json:"count"`
	Columns []wireColumn `json:"columns"`
}

type wireDocument struct {
	Version string            `json:"version"`
	Nodes   []json.RawMessage `json:"nodes"`
}

func toWireTexts(texts []Text) []wireText {
	out := make([]wireText, 0, len(texts))
	for _, t := range texts {
		w := wireText{Type: "text", Content: t.Content}
		if t.Bold {
			w.Styles = &textStyles{Bold: true}
		}
		out = append(out, w)
	}
	return out
}

func fromWireTexts(texts []wireText) []Text {
	out := make([]Text, 0, len(texts))
	for _, w := range texts {
		out = append(out, Text{Content: w.Content, Bold: w.Styles != nil && w.Styles.Bold})
	}
	return out
}

// MarshalJSON encodes the document in its wire format.
func (d Document) MarshalJSON() ([]byte, error) {
	nodes := make([]json.RawMessage, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		raw, err := marshalNode(n)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, raw)
	}
	return json.Marshal(wireDocument{Version: d.Version, Nodes: nodes})
}

func marshalNode(n Node) (json.RawMessage, error) {
	switch n := n.(type) {
	case Paragraph:
		return json.Marshal(wireParagraph{Type: "paragraph", Alignment: n.Alignment, Children: toWireTexts(n.Children)})
	case Columns:
		cols := make([]wireColumn, 0, len(n.Columns))
		for _, c := range n.Columns {
			cols = append(cols, wireColumn{Type: "column", Children: toWireTexts(c.Children)})
		}
		return json.Marshal(wireColumns{Type: "columns", Count: n.Count, Columns: cols})
	case Unknown:
		return n.Raw, nil
	default:
		return nil, fmt.Errorf("richdoc: cannot encode node %T", n)
	}
}

// UnmarshalJSON decodes the wire format without checking the version.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	nodes := make([]Node, 0, len(w.Nodes))
	for _, raw := range w.Nodes {
		n, err := unmarshalNode(raw)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}
	d.Version = w.Version
	d.Nodes = nodes
	return nil
}

func unmarshalNode(raw json.RawMessage) (Node, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch head.Type {
	case "paragraph":
		var p wireParagraph
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: paragraph: %v", ErrMalformed, err)
		}
		align := p.Alignment
		if align == AlignLeft {
			align = ""
		}
		return Paragraph{Alignment: align, Children: fromWireTexts(p.Children)}, nil
	case "columns":
		var c wireColumns
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: columns: %v", ErrMalformed, err)
		}
		cols := make([]Column, 0, len(c.Columns))
		for _, col := range c.Columns {
			cols = append(cols, Column{Children: fromWireTexts(col.Children)})
		}
		return Columns{Count: c.Count, Columns: cols}, nil
	default:
		return Unknown{Type: head.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// Decode parses a document and rejects unsupported versions.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	if doc.Version != FormatVersion {
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, doc.Version)
	}
	return doc, nil
}
