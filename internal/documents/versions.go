package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ContentHash is the version hash of a LaTeX source.
func ContentHash(latexSource string) string {
	sum := sha256.Sum256([]byte(latexSource))
	return hex.EncodeToString(sum[:])
}

// CreateVersion snapshots the compiled document. Preconditions are checked in
// order: live document, editor role, compiled content, version cap, changed
// content.
func (s *Service) CreateVersion(ctx context.Context, req CreateVersionRequest) (*DocumentVersion, error) {
	if req.DocumentID == "" || req.UserID == "" {
		return nil, fmt.Errorf("validate version request: %w: documentId and userId are required", ErrInvalidInput)
	}
	unlock, err := s.locks.acquire(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.authorize(ctx, req.DocumentID, req.UserID, Role.CanEdit)
	if err != nil {
		return nil, err
	}
	blocks, err := s.repo.ListBlocks(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	if len(blocks) == 0 || strings.TrimSpace(doc.LatexSource) == "" {
		return nil, fmt.Errorf("document %s has no compiled content: %w", doc.ID, ErrConflict)
	}
	count, err := s.repo.CountVersions(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("count versions: %w", err)
	}
	if count >= s.opts.MaxVersions {
		return nil, fmt.Errorf("document %s reached %d versions: %w", doc.ID, s.opts.MaxVersions, ErrConflict)
	}
	hash := ContentHash(doc.LatexSource)
	next := 1
	latest, err := s.repo.LatestVersion(ctx, doc.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("latest version: %w", err)
	default:
		if latest.Hash == hash {
			return nil, fmt.Errorf("document %s is unchanged since version %d: %w", doc.ID, latest.Version, ErrConflict)
		}
		next = latest.Version + 1
	}

	pdf, err := s.convert(ctx, doc.LatexSource)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("documents/%s/versions/%d.pdf", doc.ID, next)
	if err := s.objects.Put(ctx, key, pdf); err != nil {
		return nil, fmt.Errorf("upload version pdf: %w: %v", ErrStorage, err)
	}

	version := DocumentVersion{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Version:     next,
		Hash:        hash,
		PDFKey:      key,
		LatexSource: doc.LatexSource,
		LatexConfig: doc.LatexConfig,
		Title:       doc.Title,
		Note:        req.Note,
		CreatedBy:   req.UserID,
		CreatedAt:   s.now(),
	}
	created, err := s.repo.CreateVersion(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	s.log.Info().
		Str("document_id", doc.ID).
		Int("version", created.Version).
		Str("hash", hash).
		Msg("document version created")
	return created, nil
}

// ListVersions returns version metadata, newest first.
func (s *Service) ListVersions(ctx context.Context, documentID, userID string) ([]DocumentVersion, error) {
	if _, err := s.authorize(ctx, documentID, userID, Role.CanView); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, documentID)
}

// VersionPDF returns the stored PDF of one version.
func (s *Service) VersionPDF(ctx context.Context, documentID, userID string, version int) ([]byte, error) {
	if _, err := s.authorize(ctx, documentID, userID, Role.CanView); err != nil {
		return nil, err
	}
	v, err := s.repo.GetVersion(ctx, documentID, version)
	if err != nil {
		return nil, fmt.Errorf("version %d of %s: %w", version, documentID, err)
	}
	pdf, err := s.objects.Get(ctx, v.PDFKey)
	if err != nil {
		return nil, fmt.Errorf("download version pdf: %w: %v", ErrStorage, err)
	}
	return pdf, nil
}
