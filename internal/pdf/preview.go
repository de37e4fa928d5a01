package pdf

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var documentClassRe = regexp.MustCompile(`\\documentclass(?:\[([^\]]*)\])?`)

// Preview renders the document body as plain source text. It needs no TeX
// installation and is meant for development and tests.
type Preview struct {
	Title string
}

// Convert implements documents.Converter.
func (p Preview) Convert(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, ok := documentBody(source)
	if !ok {
		return nil, &Error{Diagnostic: "! LaTeX Error: Missing \\begin{document}."}
	}

	orientation := "P"
	if m := documentClassRe.FindStringSubmatch(source); m != nil {
		for _, opt := range strings.Split(m[1], ",") {
			if strings.TrimSpace(opt) == "landscape" {
				orientation = "L"
			}
		}
	}

	doc := gofpdf.New(orientation, "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	if p.Title != "" {
		doc.SetTitle(p.Title, true)
	}
	doc.SetCreator("docbuilder preview", true)
	doc.AddPage()
	doc.SetFont("Courier", "", 9)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	width, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	doc.MultiCell(width-left-right, 4, tr(body), "", "L", false)

	if doc.Err() {
		return nil, fmt.Errorf("pdf: preview: %w", doc.Error())
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: preview output: %w", err)
	}
	return buf.Bytes(), nil
}

func documentBody(source string) (string, bool) {
	const begin, end = `\begin{document}`, `\end{document}`
	i := strings.Index(source, begin)
	if i < 0 {
		return "", false
	}
	body := source[i+len(begin):]
	if j := strings.LastIndex(body, end); j >= 0 {
		body = body[:j]
	}
	return strings.TrimSpace(body), true
}
