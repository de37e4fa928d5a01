package documents

import (
	"context"
	"time"

	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// Repository defines persistence layer for documents, blocks and versions.
// Methods documented as transactional must apply completely or not at all.
type Repository interface {
	CreateDocument(ctx context.Context, doc Document) (*Document, error)
	// GetDocument returns soft-deleted documents too; callers check DeletedAt.
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	SoftDeleteDocument(ctx context.Context, documentID string) error
	UpdatePageConfig(ctx context.Context, documentID string, cfg latex.PageConfig) error
	SaveCompileSuccess(ctx context.Context, documentID, latexSource, pdfKey string, at time.Time) error
	SaveCompileFailure(ctx context.Context, documentID, diagnostic string) error

	SetMemberRole(ctx context.Context, projectID, userID string, role Role) error
	// MemberRole returns an empty role when the user is not a member.
	MemberRole(ctx context.Context, projectID, userID string) (Role, error)

	ListBlocks(ctx context.Context, documentID string) ([]DocumentBlock, error)
	UpsertBlock(ctx context.Context, block DocumentBlock) (*DocumentBlock, error)
	// RemoveBlocks deletes blocks and renumbers the rest 1..N in one transaction.
	RemoveBlocks(ctx context.Context, documentID string, blockIDs []string) error
	// ApplyOrderUpdates sets block orders in one transaction. Unknown block
	// ids are ignored.
	ApplyOrderUpdates(ctx context.Context, documentID string, updates []OrderUpdate) error
	// NormalizeOrder renumbers blocks 1..N by (order, createdAt, id).
	NormalizeOrder(ctx context.Context, documentID string) error

	CountVersions(ctx context.Context, documentID string) (int, error)
	// LatestVersion returns ErrNotFound when the document has no versions.
	LatestVersion(ctx context.Context, documentID string) (*DocumentVersion, error)
	GetVersion(ctx context.Context, documentID string, version int) (*DocumentVersion, error)
	// ListVersions returns versions newest first.
	ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error)
	// CreateVersion inserts the version and points the document's PDF key and
	// latest version at it in one transaction.
	CreateVersion(ctx context.Context, version DocumentVersion) (*DocumentVersion, error)
}
