package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

type documentRow struct {
	ID                string         `gorm:"type:text;primaryKey"`
	ProjectID         string         `gorm:"type:text;not null;index"`
	Title             string         `gorm:"type:text;not null;default:''"`
	LatexSource       string         `gorm:"type:text;not null;default:''"`
	LatexConfig       datatypes.JSON `gorm:"type:jsonb"`
	CompilationStatus string         `gorm:"type:text;not null;default:'PENDING'"`
	CompilationError  string         `gorm:"type:text;not null;default:''"`
	PDFKey            string         `gorm:"column:pdf_key;type:text;not null;default:''"`
	LastCompiledAt    *time.Time
	LatestVersion     int `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

func (documentRow) TableName() string { return "documents" }

type memberRow struct {
	ProjectID string `gorm:"type:text;primaryKey"`
	UserID    string `gorm:"type:text;primaryKey"`
	Role      string `gorm:"type:text;not null"`
}

func (memberRow) TableName() string { return "project_members" }

type blockRow struct {
	ID          string         `gorm:"type:text;primaryKey"`
	DocumentID  string         `gorm:"type:text;not null;index:idx_blocks_document_ord,priority:1"`
	BlockDefID  string         `gorm:"type:text;not null"`
	Ord         int            `gorm:"column:ord;not null;index:idx_blocks_document_ord,priority:2"`
	Name        string         `gorm:"type:text;not null;default:''"`
	Config      datatypes.JSON `gorm:"type:jsonb;not null"`
	LatexSource string         `gorm:"type:text;not null;default:''"`
	Packages    datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (blockRow) TableName() string { return "document_blocks" }

type versionRow struct {
	ID          string         `gorm:"type:text;primaryKey"`
	DocumentID  string         `gorm:"type:text;not null;uniqueIndex:idx_versions_document_version,priority:1"`
	Version     int            `gorm:"not null;uniqueIndex:idx_versions_document_version,priority:2"`
	Hash        string         `gorm:"type:text;not null"`
	PDFKey      string         `gorm:"column:pdf_key;type:text;not null"`
	LatexSource string         `gorm:"type:text;not null"`
	LatexConfig datatypes.JSON `gorm:"type:jsonb"`
	Title       string         `gorm:"type:text;not null;default:''"`
	Note        string         `gorm:"type:text;not null;default:''"`
	CreatedBy   string         `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

func (versionRow) TableName() string { return "document_versions" }

func encodePageConfig(cfg *latex.PageConfig) (datatypes.JSON, error) {
	if cfg == nil {
		return nil, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodePageConfig(raw datatypes.JSON) (*latex.PageConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var cfg latex.PageConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newDocumentRow(doc documents.Document) (documentRow, error) {
	cfg, err := encodePageConfig(doc.LatexConfig)
	if err != nil {
		return documentRow{}, err
	}
	return documentRow{
		ID:                doc.ID,
		ProjectID:         doc.ProjectID,
		Title:             doc.Title,
		LatexSource:       doc.LatexSource,
		LatexConfig:       cfg,
		CompilationStatus: string(doc.CompilationStatus),
		CompilationError:  doc.CompilationError,
		PDFKey:            doc.PDFKey,
		LastCompiledAt:    doc.LastCompiledAt,
		LatestVersion:     doc.LatestVersion,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
		DeletedAt:         doc.DeletedAt,
	}, nil
}

func (r documentRow) toDocument() (*documents.Document, error) {
	cfg, err := decodePageConfig(r.LatexConfig)
	if err != nil {
		return nil, err
	}
	return &documents.Document{
		ID:                r.ID,
		ProjectID:         r.ProjectID,
		Title:             r.Title,
		LatexSource:       r.LatexSource,
		LatexConfig:       cfg,
		CompilationStatus: documents.CompilationStatus(r.CompilationStatus),
		CompilationError:  r.CompilationError,
		PDFKey:            r.PDFKey,
		LastCompiledAt:    r.LastCompiledAt,
		LatestVersion:     r.LatestVersion,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		DeletedAt:         r.DeletedAt,
	}, nil
}

func newBlockRow(b documents.DocumentBlock) (blockRow, error) {
	config := []byte("{}")
	if b.Config != nil {
		raw, err := json.Marshal(b.Config)
		if err != nil {
			return blockRow{}, err
		}
		config = raw
	}
	packages := []byte("[]")
	if b.Packages != nil {
		raw, err := json.Marshal(b.Packages)
		if err != nil {
			return blockRow{}, err
		}
		packages = raw
	}
	return blockRow{
		ID:          b.ID,
		DocumentID:  b.DocumentID,
		BlockDefID:  b.BlockDefID,
		Ord:         b.Order,
		Name:        b.Name,
		Config:      config,
		LatexSource: b.LatexSource,
		Packages:    packages,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}, nil
}

func (r blockRow) toBlock() (documents.DocumentBlock, error) {
	b := documents.DocumentBlock{
		ID:          r.ID,
		DocumentID:  r.DocumentID,
		BlockDefID:  r.BlockDefID,
		Order:       r.Ord,
		Name:        r.Name,
		LatexSource: r.LatexSource,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Config, &b.Config); err != nil {
		return b, err
	}
	if err := json.Unmarshal(r.Packages, &b.Packages); err != nil {
		return b, err
	}
	return b, nil
}

func newVersionRow(v documents.DocumentVersion) (versionRow, error) {
	cfg, err := encodePageConfig(v.LatexConfig)
	if err != nil {
		return versionRow{}, err
	}
	return versionRow{
		ID:          v.ID,
		DocumentID:  v.DocumentID,
		Version:     v.Version,
		Hash:        v.Hash,
		PDFKey:      v.PDFKey,
		LatexSource: v.LatexSource,
		LatexConfig: cfg,
		Title:       v.Title,
		Note:        v.Note,
		CreatedBy:   v.CreatedBy,
		CreatedAt:   v.CreatedAt,
	}, nil
}

func (r versionRow) toVersion() (documents.DocumentVersion, error) {
	cfg, err := decodePageConfig(r.LatexConfig)
	if err != nil {
		return documents.DocumentVersion{}, err
	}
	return documents.DocumentVersion{
		ID:          r.ID,
		DocumentID:  r.DocumentID,
		Version:     r.Version,
		Hash:        r.Hash,
		PDFKey:      r.PDFKey,
		LatexSource: r.LatexSource,
		LatexConfig: cfg,
		Title:       r.Title,
		Note:        r.Note,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}, nil
}
