package documents

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// NewInMemoryRepository creates thread-safe repository for prototyping and tests.
func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		documents: make(map[string]Document),
		blocks:    make(map[string]map[string]DocumentBlock),
		versions:  make(map[string][]DocumentVersion),
		members:   make(map[string]Role),
	}
}

// inMemoryRepository is prototyping repository with maps.
type inMemoryRepository struct {
	documents map[string]Document
	blocks    map[string]map[string]DocumentBlock
	versions  map[string][]DocumentVersion
	members   map[string]Role
	mu        sync.RWMutex
}

func memberKey(projectID, userID string) string {
	return projectID + "\x00" + userID
}

func (r *inMemoryRepository) CreateDocument(ctx context.Context, doc Document) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.documents[doc.ID]; exists {
		return nil, ErrConflict
	}
	r.documents[doc.ID] = doc
	clone := doc
	return &clone, nil
}

func (r *inMemoryRepository) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := doc
	return &clone, nil
}

func (r *inMemoryRepository) SoftDeleteDocument(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	doc.DeletedAt = &now
	r.documents[documentID] = doc
	return nil
}

func (r *inMemoryRepository) UpdatePageConfig(ctx context.Context, documentID string, cfg latex.PageConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.LatexConfig = &cfg
	doc.UpdatedAt = time.Now().UTC()
	r.documents[documentID] = doc
	return nil
}

func (r *inMemoryRepository) SaveCompileSuccess(ctx context.Context, documentID, latexSource, pdfKey string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.LatexSource = latexSource
	doc.PDFKey = pdfKey
	doc.CompilationStatus = StatusSuccess
	doc.CompilationError = ""
	doc.LastCompiledAt = &at
	doc.UpdatedAt = at
	r.documents[documentID] = doc
	return nil
}

func (r *inMemoryRepository) SaveCompileFailure(ctx context.Context, documentID, diagnostic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.CompilationStatus = StatusFailed
	doc.CompilationError = diagnostic
	doc.UpdatedAt = time.Now().UTC()
	r.documents[documentID] = doc
	return nil
}

func (r *inMemoryRepository) SetMemberRole(ctx context.Context, projectID, userID string, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[memberKey(projectID, userID)] = role
	return nil
}

func (r *inMemoryRepository) MemberRole(ctx context.Context, projectID, userID string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[memberKey(projectID, userID)], nil
}

// sortedBlocks returns the document's blocks by (order, createdAt, id).
func (r *inMemoryRepository) sortedBlocks(documentID string) []DocumentBlock {
	var res []DocumentBlock
	for _, b := range r.blocks[documentID] {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Order != res[j].Order {
			return res[i].Order < res[j].Order
		}
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res
}

func (r *inMemoryRepository) renumber(documentID string) {
	for i, b := range r.sortedBlocks(documentID) {
		if b.Order != i+1 {
			b.Order = i + 1
			r.blocks[documentID][b.ID] = b
		}
	}
}

func (r *inMemoryRepository) ListBlocks(ctx context.Context, documentID string) ([]DocumentBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	blocks := r.sortedBlocks(documentID)
	for i := range blocks {
		blocks[i] = cloneBlock(blocks[i])
	}
	return blocks, nil
}

func (r *inMemoryRepository) UpsertBlock(ctx context.Context, block DocumentBlock) (*DocumentBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[block.DocumentID]; !ok {
		return nil, ErrNotFound
	}
	blocks := r.blocks[block.DocumentID]
	if blocks == nil {
		blocks = make(map[string]DocumentBlock)
		r.blocks[block.DocumentID] = blocks
	}
	now := time.Now().UTC()
	if existing, ok := blocks[block.ID]; ok {
		block.CreatedAt = existing.CreatedAt
	} else {
		for docID, other := range r.blocks {
			if _, taken := other[block.ID]; taken && docID != block.DocumentID {
				return nil, ErrConflict
			}
		}
		if block.CreatedAt.IsZero() {
			block.CreatedAt = now
		}
	}
	block.UpdatedAt = now
	block = cloneBlock(block)
	blocks[block.ID] = block
	clone := cloneBlock(block)
	return &clone, nil
}

func (r *inMemoryRepository) RemoveBlocks(ctx context.Context, documentID string, blockIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[documentID]; !ok {
		return ErrNotFound
	}
	for _, id := range blockIDs {
		delete(r.blocks[documentID], id)
	}
	r.renumber(documentID)
	return nil
}

func (r *inMemoryRepository) ApplyOrderUpdates(ctx context.Context, documentID string, updates []OrderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[documentID]; !ok {
		return ErrNotFound
	}
	blocks := r.blocks[documentID]
	for _, u := range updates {
		b, ok := blocks[u.ID]
		if !ok {
			continue
		}
		b.Order = u.Order
		blocks[u.ID] = b
	}
	return nil
}

func (r *inMemoryRepository) NormalizeOrder(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renumber(documentID)
	return nil
}

func (r *inMemoryRepository) CountVersions(ctx context.Context, documentID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.versions[documentID]), nil
}

func (r *inMemoryRepository) LatestVersion(ctx context.Context, documentID string) (*DocumentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.versions[documentID]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	clone := versions[len(versions)-1]
	return &clone, nil
}

func (r *inMemoryRepository) GetVersion(ctx context.Context, documentID string, version int) (*DocumentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[documentID] {
		if v.Version == version {
			clone := v
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *inMemoryRepository) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.versions[documentID]
	res := make([]DocumentVersion, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		res = append(res, versions[i])
	}
	return res, nil
}

func (r *inMemoryRepository) CreateVersion(ctx context.Context, version DocumentVersion) (*DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[version.DocumentID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := version.Validate(); err != nil {
		return nil, err
	}
	for _, v := range r.versions[version.DocumentID] {
		if v.Version >= version.Version {
			return nil, ErrConflict
		}
	}
	doc.PDFKey = version.PDFKey
	doc.LatestVersion = version.Version
	doc.UpdatedAt = version.CreatedAt
	r.documents[version.DocumentID] = doc
	r.versions[version.DocumentID] = append(r.versions[version.DocumentID], version)
	clone := version
	return &clone, nil
}

// cloneBlock deep-copies the mutable parts of a block.
func cloneBlock(b DocumentBlock) DocumentBlock {
	b.Config = cloneConfig(b.Config)
	b.Packages = append([]latex.Package(nil), b.Packages...)
	return b
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		out := make(map[string]any, len(cfg))
		for k, v := range cfg {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return cfg
	}
	return out
}
