package latex

import (
	"errors"
	"strconv"
	"strings"
)

// Package is a LaTeX package a block requires.
type Package struct {
	Name    string   `json:"name" toml:"name"`
	Options []string `json:"options,omitempty" toml:"options"`
}

// Orientation enumerates page orientation values.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// LineSpacing enumerates supported line spacing values.
type LineSpacing string

const (
	LineSpacingSingle  LineSpacing = "single"
	LineSpacingOneHalf LineSpacing = "onehalf"
	LineSpacingDouble  LineSpacing = "double"
)

// DocumentClass configures the \documentclass line.
type DocumentClass struct {
	Type      string `json:"type"`
	FontSize  string `json:"fontSize"`
	PaperSize string `json:"paperSize"`
	TwoSide   bool   `json:"twoSide"`
}

// Margins are page margins in centimetres.
type Margins struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// PageConfig describes the page setup of a document.
type PageConfig struct {
	DocumentClass DocumentClass `json:"documentClass"`
	Orientation   Orientation   `json:"orientation"`
	Margins       Margins       `json:"margins"`
	LineSpacing   LineSpacing   `json:"lineSpacing"`
}

// DefaultPreamble is emitted when a document has no page configuration.
const DefaultPreamble = "\\documentclass[12pt,a4paper]{article}\n\\usepackage[margin=1in]{geometry}\n"

// EmptyDocumentMessage is the body of a document without blocks.
const EmptyDocumentMessage = "This document is empty. Add blocks to start building your document."

// Validate checks page configuration values.
func (c PageConfig) Validate() error {
	switch c.Orientation {
	case "", OrientationPortrait, OrientationLandscape:
	default:
		return errors.New("orientation is invalid")
	}
	switch c.LineSpacing {
	case "", LineSpacingSingle, LineSpacingOneHalf, LineSpacingDouble:
	default:
		return errors.New("lineSpacing is invalid")
	}
	m := c.Margins
	if m.Top < 0 || m.Bottom < 0 || m.Left < 0 || m.Right < 0 {
		return errors.New("margins must not be negative")
	}
	return nil
}

// RenderPageConfig renders the document class, geometry and spacing
// preamble. A nil config yields DefaultPreamble.
func RenderPageConfig(c *PageConfig) string {
	if c == nil {
		return DefaultPreamble
	}
	var opts []string
	for _, o := range []string{c.DocumentClass.FontSize, c.DocumentClass.PaperSize} {
		if o != "" {
			opts = append(opts, o)
		}
	}
	if c.DocumentClass.TwoSide {
		opts = append(opts, "twoside")
	}
	if c.Orientation == OrientationLandscape {
		opts = append(opts, "landscape")
	}
	class := c.DocumentClass.Type
	if class == "" {
		class = "article"
	}

	var b strings.Builder
	b.WriteString(`\documentclass`)
	if len(opts) > 0 {
		b.WriteString("[" + strings.Join(opts, ",") + "]")
	}
	b.WriteString("{" + class + "}\n")
	b.WriteString(`\usepackage[top=` + cm(c.Margins.Top) +
		`,bottom=` + cm(c.Margins.Bottom) +
		`,left=` + cm(c.Margins.Left) +
		`,right=` + cm(c.Margins.Right) + "]{geometry}\n")

	switch c.LineSpacing {
	case LineSpacingOneHalf:
		b.WriteString("\\usepackage{setspace}\n\\onehalfspacing\n")
	case LineSpacingDouble:
		b.WriteString("\\usepackage{setspace}\n\\doublespacing\n")
	}
	return b.String()
}

func cm(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "cm"
}

// AssemblePackages merges package requirements across blocks into one
// \usepackage line per package, options unioned in first-seen order,
// followed by one \definecolor line per registered color.
func AssemblePackages(blocks [][]Package, reg *ColorRegistry) string {
	var order []string
	options := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, pkgs := range blocks {
		for _, p := range pkgs {
			if p.Name == "" {
				continue
			}
			if _, ok := seen[p.Name]; !ok {
				seen[p.Name] = make(map[string]bool)
				order = append(order, p.Name)
			}
			for _, o := range p.Options {
				if o == "" || seen[p.Name][o] {
					continue
				}
				seen[p.Name][o] = true
				options[p.Name] = append(options[p.Name], o)
			}
		}
	}

	var b strings.Builder
	for _, name := range order {
		if opts := options[name]; len(opts) > 0 {
			b.WriteString(`\usepackage[` + strings.Join(opts, ",") + `]{` + name + "}\n")
		} else {
			b.WriteString(`\usepackage{` + name + "}\n")
		}
	}
	if reg != nil {
		for _, def := range reg.Definitions() {
			b.WriteString(def + "\n")
		}
	}
	return b.String()
}

// AssembleDocument joins preamble, packages and block fragments into a
// complete LaTeX document. Fragments are separated by a blank line.
func AssembleDocument(preamble, packages string, fragments []string) string {
	return preamble + packages +
		"\\begin{document}\n" +
		strings.Join(fragments, "\n\n") +
		"\n\\end{document}\n"
}

// EmptyDocument is the source compiled for a document without blocks.
func EmptyDocument(c *PageConfig) string {
	return AssembleDocument(RenderPageConfig(c), "", []string{EmptyDocumentMessage})
}
