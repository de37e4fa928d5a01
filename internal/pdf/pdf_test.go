package pdf

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

func TestDiagnostic(t *testing.T) {
	log := []byte(`This is pdfTeX, Version 3.141592653
(./document.tex
LaTeX2e <2023-11-01>
! Undefined control sequence.
l.5 \foo
        {bar}
Here is how much of TeX's memory you used:
`)
	assert.Equal(t, "! Undefined control sequence.\nl.5 \\foo\n        {bar}", Diagnostic(log))
	assert.Empty(t, Diagnostic([]byte("all good\n")))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "c\nd", tail("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", tail("a", 5))
}

func TestPreviewConvert(t *testing.T) {
	src := latex.AssembleDocument(latex.DefaultPreamble, "", []string{`\textbf{Hello} — café`})
	data, err := Preview{Title: "Report"}.Convert(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, len(data) > 100)
	assert.Equal(t, "%PDF-", string(data[:5]))
}

func TestPreviewLandscape(t *testing.T) {
	cfg := &latex.PageConfig{Orientation: latex.OrientationLandscape}
	data, err := Preview{}.Convert(context.Background(), latex.EmptyDocument(cfg))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/MediaBox [0 0 841.89 595.28]")
}

func TestPreviewRejectsSourceWithoutBody(t *testing.T) {
	_, err := Preview{}.Convert(context.Background(), `\documentclass{article}`)
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Diagnostic, "Missing")
}

func TestPreviewHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Preview{}.Convert(ctx, latex.EmptyDocument(nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPDFLatexMissingBinary(t *testing.T) {
	conv := NewPDFLatex("/nonexistent/pdflatex", zerolog.Nop())
	_, err := conv.Convert(context.Background(), latex.EmptyDocument(nil))
	require.Error(t, err)
	var pe *Error
	assert.False(t, errors.As(err, &pe))
}

func TestPDFLatexConvert(t *testing.T) {
	path, err := exec.LookPath("pdflatex")
	if err != nil {
		t.Skip("pdflatex not installed")
	}
	conv := NewPDFLatex(path, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	data, err := conv.Convert(ctx, latex.EmptyDocument(nil))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(data[:5]))

	_, err = conv.Convert(ctx, latex.AssembleDocument(latex.DefaultPreamble, "", []string{`\undefinedmacro`}))
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Diagnostic, "Undefined control sequence")
}
