// Package documents assembles documents from compiled blocks, drives the
// compile lifecycle and keeps immutable version snapshots.
package documents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// Role enumerates project membership roles.
type Role string

const (
	RoleViewer Role = "VIEWER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

// CanEdit reports whether the role may compile or version documents.
func (r Role) CanEdit() bool {
	return r == RoleEditor || r == RoleAdmin
}

// CanView reports whether the role may read documents.
func (r Role) CanView() bool {
	return r == RoleViewer || r.CanEdit()
}

// CompilationStatus is the outcome of the last compile attempt.
type CompilationStatus string

const (
	StatusPending CompilationStatus = "PENDING"
	StatusSuccess CompilationStatus = "SUCCESS"
	StatusFailed  CompilationStatus = "FAILED"
)

// Document represents the documents table structure.
type Document struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"projectId"`
	Title             string            `json:"title"`
	LatexSource       string            `json:"latexSource"`
	LatexConfig       *latex.PageConfig `json:"latexConfig,omitempty"`
	CompilationStatus CompilationStatus `json:"compilationStatus"`
	CompilationError  string            `json:"compilationError,omitempty"`
	PDFKey            string            `json:"pdfKey,omitempty"`
	LastCompiledAt    *time.Time        `json:"lastCompiledAt,omitempty"`
	LatestVersion     int               `json:"latestVersion"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	DeletedAt         *time.Time        `json:"deletedAt,omitempty"`
}

// DocumentBlock represents one block instance placed in a document.
type DocumentBlock struct {
	ID          string          `json:"id"`
	DocumentID  string          `json:"documentId"`
	BlockDefID  string          `json:"blockDefId"`
	Order       int             `json:"order"`
	Name        string          `json:"name"`
	Config      map[string]any  `json:"config"`
	LatexSource string          `json:"latexSource"`
	Packages    []latex.Package `json:"packages"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// DocumentVersion is an immutable snapshot of a compiled document.
type DocumentVersion struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"documentId"`
	Version     int               `json:"version"`
	Hash        string            `json:"hash"`
	PDFKey      string            `json:"pdfKey"`
	LatexSource string            `json:"-"`
	LatexConfig *latex.PageConfig `json:"latexConfig,omitempty"`
	Title       string            `json:"title"`
	Note        string            `json:"note,omitempty"`
	CreatedBy   string            `json:"createdBy"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// ChangedBlock is a block added or updated by a compile request.
type ChangedBlock struct {
	ID         string         `json:"id"`
	BlockDefID string         `json:"blockDefId"`
	Config     map[string]any `json:"config"`
	Order      int            `json:"order"`
	Name       string         `json:"name"`
}

// OrderUpdate moves an existing block to a new position.
type OrderUpdate struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// CompileRequest carries the block deltas of one compile call.
type CompileRequest struct {
	DocumentID      string            `json:"documentId"`
	UserID          string            `json:"userId"`
	Added           []ChangedBlock    `json:"added"`
	Updated         []ChangedBlock    `json:"updated"`
	Removed         []string          `json:"removed"`
	OrderUpdates    []OrderUpdate     `json:"orderUpdates"`
	LatexPageConfig *latex.PageConfig `json:"latexPageConfig,omitempty"`
}

// CompileResult is returned by a successful compile. Exactly one of
// PDFBuffer and PDFURL is set.
type CompileResult struct {
	Success   bool   `json:"success"`
	Size      int    `json:"size"`
	PDFBuffer string `json:"pdfBuffer,omitempty"`
	PDFURL    string `json:"pdfUrl,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

// CreateVersionRequest asks for a snapshot of the current document state.
type CreateVersionRequest struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Note       string `json:"note,omitempty"`
}

var (
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("documents: forbidden")
	// ErrNotFound is returned when a document, block or version does not exist.
	ErrNotFound = errors.New("documents: resource not found")
	// ErrConflict is returned when the request contradicts the current state.
	ErrConflict = errors.New("documents: conflict detected")
	// ErrInvalidInput indicates validation error.
	ErrInvalidInput = errors.New("documents: invalid input")
	// ErrCompilation is matched by every *CompilationError.
	ErrCompilation = errors.New("documents: compilation failed")
	// ErrStorage wraps object store failures.
	ErrStorage = errors.New("documents: storage failure")
)

// CompilationError carries the converter diagnostic of a failed compile.
type CompilationError struct {
	Diagnostic string
	Err        error
}

func (e *CompilationError) Error() string {
	return ErrCompilation.Error() + ": " + e.Diagnostic
}

func (e *CompilationError) Unwrap() error { return e.Err }

func (e *CompilationError) Is(target error) bool { return target == ErrCompilation }

// Validate ensures block placement values are usable.
func (b ChangedBlock) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(b.BlockDefID) == "" {
		return errors.New("blockDefId is required")
	}
	if b.Order < 1 {
		return errors.New("order must be positive")
	}
	return nil
}

// Validate checks the request shape before anything is touched.
func (r CompileRequest) Validate() error {
	if r.DocumentID == "" {
		return errors.New("documentId is required")
	}
	if r.UserID == "" {
		return errors.New("userId is required")
	}
	for i, b := range r.Added {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("added[%d]: %w", i, err)
		}
	}
	for i, b := range r.Updated {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("updated[%d]: %w", i, err)
		}
	}
	for i, id := range r.Removed {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("removed[%d]: id is required", i)
		}
	}
	for i, u := range r.OrderUpdates {
		if u.ID == "" {
			return fmt.Errorf("orderUpdates[%d]: id is required", i)
		}
		if u.Order < 1 {
			return fmt.Errorf("orderUpdates[%d]: order must be positive", i)
		}
	}
	if r.LatexPageConfig != nil {
		if err := r.LatexPageConfig.Validate(); err != nil {
			return fmt.Errorf("latexPageConfig: %w", err)
		}
	}
	return nil
}

// changedBlocks merges added and updated blocks by id, later entries winning,
// in first-seen order.
func (r CompileRequest) changedBlocks() []ChangedBlock {
	index := make(map[string]int)
	var out []ChangedBlock
	for _, list := range [][]ChangedBlock{r.Added, r.Updated} {
		for _, b := range list {
			if i, ok := index[b.ID]; ok {
				out[i] = b
				continue
			}
			index[b.ID] = len(out)
			out = append(out, b)
		}
	}
	return out
}

// Validate ensures version business rules.
func (v DocumentVersion) Validate() error {
	if v.DocumentID == "" {
		return errors.New("documentId is required")
	}
	if v.Version <= 0 {
		return errors.New("version must be positive")
	}
	if v.Hash == "" {
		return errors.New("hash is required")
	}
	if v.PDFKey == "" {
		return errors.New("pdfKey is required")
	}
	if v.CreatedBy == "" {
		return errors.New("createdBy is required")
	}
	return nil
}
