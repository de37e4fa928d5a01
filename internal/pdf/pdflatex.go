// Package pdf turns assembled LaTeX sources into PDF bytes.
package pdf

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	jobName = "document"
	passes  = 2
)

// Error is a failed conversion. Diagnostic holds the relevant part of the
// toolchain log.
type Error struct {
	Diagnostic string
}

func (e *Error) Error() string { return e.Diagnostic }

// PDFLatex converts by running pdflatex twice in a scratch directory so
// cross references resolve.
type PDFLatex struct {
	Path string
	log  zerolog.Logger
}

// NewPDFLatex returns a converter using the pdflatex binary at path, looked
// up in PATH when empty.
func NewPDFLatex(path string, log zerolog.Logger) *PDFLatex {
	if path == "" {
		path = "pdflatex"
	}
	return &PDFLatex{Path: path, log: log.With().Str("component", "pdflatex").Logger()}
}

// Convert implements documents.Converter.
func (p *PDFLatex) Convert(ctx context.Context, source string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "docbuilder-*")
	if err != nil {
		return nil, fmt.Errorf("pdf: creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	texPath := filepath.Join(dir, jobName+".tex")
	if err := os.WriteFile(texPath, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("pdf: writing source: %w", err)
	}

	for pass := 1; pass <= passes; pass++ {
		cmd := exec.CommandContext(ctx, p.Path,
			"-interaction=nonstopmode",
			"-halt-on-error",
			"-no-shell-escape",
			"-jobname="+jobName,
			"-output-directory="+dir,
			texPath,
		)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if cmd.ProcessState == nil {
				return nil, fmt.Errorf("pdf: running %s: %w", p.Path, err)
			}
			logData, _ := os.ReadFile(filepath.Join(dir, jobName+".log"))
			diag := Diagnostic(logData)
			if diag == "" {
				diag = tail(string(out), 20)
			}
			p.log.Debug().Int("pass", pass).Str("diagnostic", diag).Msg("pdflatex failed")
			return nil, &Error{Diagnostic: diag}
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, jobName+".pdf"))
	if err != nil {
		return nil, fmt.Errorf("pdf: reading output: %w", err)
	}
	return data, nil
}

// Diagnostic extracts the error lines of a TeX log: every line starting with
// "!" and the two lines after it.
func Diagnostic(log []byte) string {
	var lines []string
	follow := 0
	scanner := bufio.NewScanner(bytes.NewReader(log))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "!"):
			lines = append(lines, line)
			follow = 2
		case follow > 0:
			lines = append(lines, line)
			follow--
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
