package documents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lumiforge/docbuilder-backend/internal/blockdefs"
)

// Converter turns a LaTeX source into PDF bytes. Errors carry the toolchain
// diagnostic.
type Converter interface {
	Convert(ctx context.Context, source string) ([]byte, error)
}

// ObjectStore persists PDF blobs under stable keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// TempPublisher stores a blob for a limited time and returns a URL to it.
type TempPublisher interface {
	Publish(ctx context.Context, name string, data []byte, ttl time.Duration) (string, error)
}

// Options tune the compile and version policies. Zero values take defaults.
type Options struct {
	ConvertTimeout time.Duration
	InlinePDFLimit int
	TempTTL        time.Duration
	MaxVersions    int
}

const (
	DefaultConvertTimeout = 30 * time.Second
	DefaultInlinePDFLimit = 5 << 20
	DefaultTempTTL        = 5 * time.Minute
	DefaultMaxVersions    = 5
)

func (o Options) withDefaults() Options {
	if o.ConvertTimeout <= 0 {
		o.ConvertTimeout = DefaultConvertTimeout
	}
	if o.InlinePDFLimit <= 0 {
		o.InlinePDFLimit = DefaultInlinePDFLimit
	}
	if o.TempTTL <= 0 {
		o.TempTTL = DefaultTempTTL
	}
	if o.MaxVersions <= 0 {
		o.MaxVersions = DefaultMaxVersions
	}
	return o
}

// Dependencies are the collaborators of a Service. Events and Logger are
// optional.
type Dependencies struct {
	Repo        Repository
	Definitions blockdefs.Source
	Converter   Converter
	Objects     ObjectStore
	Temp        TempPublisher
	Events      EventSink
	Logger      zerolog.Logger
}

// Service orchestrates compilation and versioning of documents.
type Service struct {
	repo      Repository
	defs      blockdefs.Source
	converter Converter
	objects   ObjectStore
	temp      TempPublisher
	events    EventSink
	log       zerolog.Logger
	opts      Options
	locks     *docLocks
	now       func() time.Time
}

// NewService creates service instance.
func NewService(deps Dependencies, opts Options) *Service {
	events := deps.Events
	if events == nil {
		events = nopSink{}
	}
	return &Service{
		repo:      deps.Repo,
		defs:      deps.Definitions,
		converter: deps.Converter,
		objects:   deps.Objects,
		temp:      deps.Temp,
		events:    events,
		log:       deps.Logger.With().Str("component", "documents").Logger(),
		opts:      opts.withDefaults(),
		locks:     newDocLocks(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateDocument stores a new, never compiled document.
func (s *Service) CreateDocument(ctx context.Context, doc Document) (*Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.ProjectID == "" {
		return nil, fmt.Errorf("validate document: %w: projectId is required", ErrInvalidInput)
	}
	if doc.LatexConfig != nil {
		if err := doc.LatexConfig.Validate(); err != nil {
			return nil, fmt.Errorf("validate document: %w: %v", ErrInvalidInput, err)
		}
	}
	now := s.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.CompilationStatus = StatusPending
	return s.repo.CreateDocument(ctx, doc)
}

// GetDocument returns a live document the user may view.
func (s *Service) GetDocument(ctx context.Context, documentID, userID string) (*Document, error) {
	return s.authorize(ctx, documentID, userID, Role.CanView)
}

// authorize loads a live document and checks the caller's role on its project.
func (s *Service) authorize(ctx context.Context, documentID, userID string, allowed func(Role) bool) (*Document, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", documentID, err)
	}
	if doc.DeletedAt != nil {
		return nil, fmt.Errorf("document %s is deleted: %w", documentID, ErrNotFound)
	}
	role, err := s.repo.MemberRole(ctx, doc.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	if !allowed(role) {
		return nil, fmt.Errorf("user %s on document %s: %w", userID, documentID, ErrForbidden)
	}
	return doc, nil
}

// compileRun tracks the stage of one compile call.
type compileRun struct {
	s          *Service
	documentID string
	stage      Stage
	started    time.Time
}

func (r *compileRun) enter(stage Stage) {
	r.stage = stage
	r.s.events.Publish(Event{DocumentID: r.documentID, Stage: stage, At: r.s.now()})
	r.s.log.Debug().Str("document_id", r.documentID).Str("stage", string(stage)).Msg("compile stage")
}

func (r *compileRun) fail(err error) error {
	r.s.events.Publish(Event{DocumentID: r.documentID, Stage: StageFailed, Error: err.Error(), At: r.s.now()})
	r.s.log.Warn().Err(err).
		Str("document_id", r.documentID).
		Str("stage", string(r.stage)).
		Dur("elapsed", time.Since(r.started)).
		Msg("compile failed")
	return err
}

// Compile applies block deltas, recompiles changed blocks, reassembles the
// document and converts it to PDF.
func (s *Service) Compile(ctx context.Context, req CompileRequest) (*CompileResult, error) {
	run := &compileRun{s: s, documentID: req.DocumentID, started: time.Now()}
	run.enter(StageValidating)
	if err := req.Validate(); err != nil {
		return nil, run.fail(fmt.Errorf("validate compile request: %w: %v", ErrInvalidInput, err))
	}

	unlock, err := s.locks.acquire(ctx, req.DocumentID)
	if err != nil {
		return nil, run.fail(err)
	}
	defer unlock()

	doc, err := s.authorize(ctx, req.DocumentID, req.UserID, Role.CanEdit)
	if err != nil {
		return nil, run.fail(err)
	}
	changed := req.changedBlocks()
	defs, err := s.resolveDefinitions(ctx, changed)
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StageApplyingDeltas)
	pageConfig := doc.LatexConfig
	if req.LatexPageConfig != nil {
		pageConfig = req.LatexPageConfig
		if err := s.repo.UpdatePageConfig(ctx, doc.ID, *req.LatexPageConfig); err != nil {
			return nil, run.fail(fmt.Errorf("update page config: %w", err))
		}
	}
	if len(req.Removed) > 0 {
		if err := s.repo.RemoveBlocks(ctx, doc.ID, req.Removed); err != nil {
			return nil, run.fail(fmt.Errorf("remove blocks: %w", err))
		}
	}
	if len(req.OrderUpdates) > 0 {
		if err := s.repo.ApplyOrderUpdates(ctx, doc.ID, req.OrderUpdates); err != nil {
			return nil, run.fail(fmt.Errorf("apply order updates: %w", err))
		}
	}

	run.enter(StageRecompilingBlocks)
	if err := s.recompile(ctx, doc.ID, changed, defs); err != nil {
		return nil, run.fail(err)
	}
	if len(changed) > 0 || len(req.OrderUpdates) > 0 {
		if err := s.repo.NormalizeOrder(ctx, doc.ID); err != nil {
			return nil, run.fail(fmt.Errorf("normalize order: %w", err))
		}
	}

	run.enter(StageAssembling)
	blocks, err := s.repo.ListBlocks(ctx, doc.ID)
	if err != nil {
		return nil, run.fail(fmt.Errorf("list blocks: %w", err))
	}
	source := AssembleSource(blocks, pageConfig)

	run.enter(StageConverting)
	pdf, err := s.convert(ctx, source)
	if err != nil {
		// The failure must be recorded even when the caller went away.
		if serr := s.repo.SaveCompileFailure(context.WithoutCancel(ctx), doc.ID, diagnostic(err)); serr != nil {
			s.log.Error().Err(serr).Str("document_id", doc.ID).Msg("recording compile failure")
		}
		return nil, run.fail(err)
	}

	run.enter(StagePersisting)
	key := fmt.Sprintf("documents/%s/compiled/%s.pdf", doc.ID, uuid.NewString())
	if err := s.objects.Put(ctx, key, pdf); err != nil {
		return nil, run.fail(fmt.Errorf("upload pdf: %w: %v", ErrStorage, err))
	}
	if err := s.repo.SaveCompileSuccess(ctx, doc.ID, source, key, s.now()); err != nil {
		return nil, run.fail(fmt.Errorf("save compile result: %w", err))
	}
	result, err := s.respond(ctx, doc.ID, pdf)
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StageDone)
	s.log.Info().
		Str("document_id", doc.ID).
		Int("blocks", len(blocks)).
		Int("changed", len(changed)).
		Int("size", len(pdf)).
		Dur("elapsed", time.Since(run.started)).
		Msg("document compiled")
	return result, nil
}

// resolveDefinitions loads each referenced definition once and validates
// every changed config against its schema.
func (s *Service) resolveDefinitions(ctx context.Context, changed []ChangedBlock) (map[string]*blockdefs.Definition, error) {
	defs := make(map[string]*blockdefs.Definition)
	for _, b := range changed {
		if _, ok := defs[b.BlockDefID]; ok {
			continue
		}
		def, err := s.defs.Get(ctx, b.BlockDefID)
		if err != nil {
			if errors.Is(err, blockdefs.ErrNotFound) {
				return nil, fmt.Errorf("block %s: definition %s: %w", b.ID, b.BlockDefID, ErrNotFound)
			}
			return nil, fmt.Errorf("block %s: definition %s: %w", b.ID, b.BlockDefID, err)
		}
		defs[b.BlockDefID] = def
	}
	for _, b := range changed {
		if err := defs[b.BlockDefID].ValidateConfig(b.Config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return defs, nil
}

// recompile renders and upserts changed blocks concurrently and returns
// once every upsert finished.
func (s *Service) recompile(ctx context.Context, documentID string, changed []ChangedBlock, defs map[string]*blockdefs.Definition) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cb := range changed {
		cb := cb
		def := defs[cb.BlockDefID]
		g.Go(func() error {
			block := DocumentBlock{
				ID:          cb.ID,
				DocumentID:  documentID,
				BlockDefID:  cb.BlockDefID,
				Order:       cb.Order,
				Name:        cb.Name,
				Config:      cb.Config,
				LatexSource: RenderBlock(def, cb.Config),
				Packages:    def.RequiredPackages,
			}
			if _, err := s.repo.UpsertBlock(gctx, block); err != nil {
				return fmt.Errorf("upsert block %s: %w", cb.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// convert runs the converter under the configured deadline.
func (s *Service) convert(ctx context.Context, source string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ConvertTimeout)
	defer cancel()
	pdf, err := s.converter.Convert(cctx, source)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &CompilationError{
				Diagnostic: fmt.Sprintf("pdf conversion timed out after %s", s.opts.ConvertTimeout),
				Err:        err,
			}
		}
		return nil, &CompilationError{Diagnostic: err.Error(), Err: err}
	}
	if len(pdf) == 0 {
		return nil, &CompilationError{Diagnostic: "converter returned an empty pdf"}
	}
	return pdf, nil
}

func diagnostic(err error) string {
	var ce *CompilationError
	if errors.As(err, &ce) {
		return ce.Diagnostic
	}
	return err.Error()
}

// respond inlines small PDFs and publishes large ones to temp storage.
func (s *Service) respond(ctx context.Context, documentID string, pdf []byte) (*CompileResult, error) {
	result := &CompileResult{Success: true, Size: len(pdf)}
	if len(pdf) < s.opts.InlinePDFLimit {
		result.PDFBuffer = base64.StdEncoding.EncodeToString(pdf)
		return result, nil
	}
	url, err := s.temp.Publish(ctx, documentID+".pdf", pdf, s.opts.TempTTL)
	if err != nil {
		return nil, fmt.Errorf("publish temp pdf: %w: %v", ErrStorage, err)
	}
	result.PDFURL = url
	result.ExpiresIn = int(s.opts.TempTTL / time.Second)
	return result, nil
}
