package services

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pageresizer/internal/config"
	"github.com/Lllllllleong/pageresizer/internal/discovery"
	"github.com/Lllllllleong/pageresizer/internal/docstore"
	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// ProgressObserver is told about run progress. DocumentDone is called exactly
// once per document, from a single goroutine, in completion order.
type ProgressObserver interface {
	Started(mode string, total int)
	DocumentDone(res models.DocumentResult, done, total int)
	Finished(report *models.RunReport)
}

type nopProgress struct{}

func (nopProgress) Started(string, int)                         {}
func (nopProgress) DocumentDone(models.DocumentResult, int, int) {}
func (nopProgress) Finished(*models.RunReport)                   {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetadata replaces the filesystem metadata provider.
func WithMetadata(m discovery.MetadataProvider) Option {
	return func(p *Pipeline) { p.meta = m }
}

// WithProgress registers a progress observer.
func WithProgress(o ProgressObserver) Option {
	return func(p *Pipeline) { p.progress = o }
}

// Pipeline wires discovery, ordering and manifest persistence to a bounded
// pool of transformers.
type Pipeline struct {
	cfg         config.Resolved
	meta        discovery.MetadataProvider
	transformer *Transformer
	progress    ProgressObserver
}

// NewPipeline validates cfg and resolves the target dimensions once for the
// whole run. Configuration errors are returned before any work starts.
func NewPipeline(cfg config.Config, store docstore.Store, opts ...Option) (*Pipeline, error) {
	resolved, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:         resolved,
		meta:        discovery.OSMetadata{},
		transformer: NewTransformer(store, resolved.Target),
		progress:    nopProgress{},
	}
	for _, opt := range opts {
		opt(p)
	}
	slog.Info("Pipeline initialized.", "format", resolved.Format, "target", resolved.Target.String(), "workers", resolved.Workers)
	return p, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() config.Resolved { return p.cfg }

// Run picks the mode from the configuration: manifest mode when requested,
// otherwise single-file or directory mode depending on the input path.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	if p.cfg.UseManifest {
		return p.RunFromManifest(ctx)
	}
	switch config.StatInput(p.cfg.InputPath) {
	case config.InputFile:
		return p.RunSingleFile(ctx)
	case config.InputDirectory:
		return p.RunDirectory(ctx)
	default:
		return nil, invalidInput(p.cfg.InputPath)
	}
}

// RunSingleFile resizes the one document named by the input path.
func (p *Pipeline) RunSingleFile(ctx context.Context) (*models.RunReport, error) {
	path := p.cfg.InputPath
	if config.StatInput(path) != config.InputFile {
		return nil, invalidInput(path)
	}
	if !discovery.DocumentPredicate(filepath.Base(path), p.cfg.DocumentTypeSuffix) {
		return nil, resizeerr.Config(resizeerr.ErrInvalidConfig,
			"only ."+p.cfg.DocumentTypeSuffix+" documents are supported",
			"%s is not a %s document", filepath.Base(path), p.cfg.DocumentTypeSuffix)
	}
	created, modified, err := p.meta.Metadata(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read metadata for %s", path)
	}
	doc, err := models.NewDocumentRef(filepath.Base(path), path, created, modified)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, models.ModeSingleFile, []models.DocumentRef{doc}, 1), nil
}

// ListDirectory scans the input directory and orders the documents by the
// configured policy. It never writes the manifest.
func (p *Pipeline) ListDirectory() ([]models.DocumentRef, []models.UnavailableDocument, error) {
	if config.StatInput(p.cfg.InputPath) != config.InputDirectory {
		return nil, nil, invalidInput(p.cfg.InputPath)
	}
	refs, unavailable, err := discovery.ScanDirectory(p.cfg.InputPath, p.cfg.DocumentTypeSuffix, p.meta)
	if err != nil {
		return nil, nil, err
	}
	ordered, err := discovery.Order(refs, p.cfg.Order)
	if err != nil {
		return nil, nil, err
	}
	return ordered, unavailable, nil
}

// DiscoverDirectory lists the input directory and overwrites the manifest
// with the resulting order.
func (p *Pipeline) DiscoverDirectory() ([]models.DocumentRef, []models.UnavailableDocument, error) {
	ordered, unavailable, err := p.ListDirectory()
	if err != nil {
		return nil, nil, err
	}
	if err := discovery.SaveManifest(ordered, p.cfg.ManifestPath, p.cfg.ManifestFullPath); err != nil {
		return nil, nil, err
	}
	slog.Info("Documents discovered.",
		"dir", p.cfg.InputPath,
		"count", len(ordered),
		"unavailable", len(unavailable),
		"order", p.cfg.Order,
		"manifest", p.cfg.ManifestPath)
	return ordered, unavailable, nil
}

// RunDirectory discovers, orders and persists, then fans the documents out to
// the worker pool.
func (p *Pipeline) RunDirectory(ctx context.Context) (*models.RunReport, error) {
	refs, unavailable, err := p.DiscoverDirectory()
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		slog.Warn("No documents found in the directory.", "dir", p.cfg.InputPath, "suffix", p.cfg.DocumentTypeSuffix)
	}
	report := p.run(ctx, models.ModeDirectory, refs, p.cfg.Workers)
	report.Unavailable = unavailable
	return report, nil
}

// ManifestDocuments loads and resolves the manifest. Load failures are logged
// and produce an empty list.
func (p *Pipeline) ManifestDocuments() ([]models.DocumentRef, []models.UnavailableDocument) {
	paths, err := discovery.LoadManifest(p.cfg.ManifestPath)
	switch {
	case errors.Is(err, resizeerr.ErrManifestNotFound):
		slog.Warn("Manifest not found. Please check for misspelled paths.", "manifest", p.cfg.ManifestPath)
	case err != nil:
		slog.Error("Error while reading manifest.", "manifest", p.cfg.ManifestPath, "error", err)
	}

	var baseDir string
	if p.cfg.InputPath != "" && config.StatInput(p.cfg.InputPath) == config.InputDirectory {
		baseDir = p.cfg.InputPath
	}
	return discovery.ResolveManifest(paths, baseDir, p.meta)
}

// RunFromManifest processes documents in manifest order. It runs with one
// worker unless ManifestParallel is set.
func (p *Pipeline) RunFromManifest(ctx context.Context) (*models.RunReport, error) {
	refs, unavailable := p.ManifestDocuments()
	workers := 1
	if p.cfg.ManifestParallel {
		workers = p.cfg.Workers
	}
	report := p.run(ctx, models.ModeManifest, refs, workers)
	report.Unavailable = unavailable
	return report, nil
}

// RunWithReport processes the directory sequentially and logs the time spent
// on each document and in total. It is a diagnostic mode.
func (p *Pipeline) RunWithReport(ctx context.Context) (*models.RunReport, error) {
	refs, unavailable, err := p.DiscoverDirectory()
	if err != nil {
		return nil, err
	}
	slog.Info("Number of documents to process.", "count", len(refs))
	report := p.run(ctx, models.ModeReport, refs, 1)
	report.Unavailable = unavailable
	for _, res := range report.Results {
		slog.Info("Time taken to process document.", "document", res.Document.Name, "duration", res.Duration, "ok", res.OK())
	}
	slog.Info("Total time taken to process all documents.", "duration", report.TotalDuration)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, mode string, refs []models.DocumentRef, workers int) *models.RunReport {
	report := models.NewRunReport(mode)
	report.Total = len(refs)
	logCtx := slog.With("runId", report.RunID, "mode", mode)
	logCtx.Info("Converting documents.", "count", len(refs), "workers", min(workers, max(len(refs), 1)))
	p.progress.Started(mode, len(refs))

	switch len(refs) {
	case 0:
	case 1:
		res := p.claim(ctx, refs[0])
		report.Record(res)
		p.progress.DocumentDone(res, 1, 1)
	default:
		p.dispatch(ctx, report, refs, workers)
	}

	report.Finish()
	logCtx.Info("Run complete.",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", report.TotalDuration)
	p.progress.Finished(report)
	return report
}

// dispatch fans refs out to at most workers goroutines. Results are funneled
// through one channel to a single aggregator, so the report needs no lock.
func (p *Pipeline) dispatch(ctx context.Context, report *models.RunReport, refs []models.DocumentRef, workers int) {
	if workers < 1 {
		workers = 1
	}
	results := make(chan models.DocumentResult)
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		done := 0
		for res := range results {
			done++
			report.Record(res)
			p.progress.DocumentDone(res, done, len(refs))
		}
	}()

	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, doc := range refs {
		if ctx.Err() != nil {
			results <- p.skipped(ctx, doc)
			continue
		}
		eg.Go(func() error {
			results <- p.claim(ctx, doc)
			return nil
		})
	}
	_ = eg.Wait()
	close(results)
	<-aggregated
}

// claim runs one document unless the run was cancelled before a worker got to
// it. A started document runs to completion: its context is detached from
// run cancellation and bounded only by the per-document timeout.
func (p *Pipeline) claim(ctx context.Context, doc models.DocumentRef) models.DocumentResult {
	if ctx.Err() != nil {
		return p.skipped(ctx, doc)
	}
	dctx := context.WithoutCancel(ctx)
	if p.cfg.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, p.cfg.DocumentTimeout)
		defer cancel()
	}
	return p.transformer.Transform(dctx, doc, p.outputFor(doc))
}

func (p *Pipeline) skipped(ctx context.Context, doc models.DocumentRef) models.DocumentResult {
	return models.DocumentResult{
		Document:   doc,
		OutputPath: p.outputFor(doc),
		Skipped:    true,
		Err:        resizeerr.New(resizeerr.KindCancelled, doc.Name, ctx.Err()),
	}
}

func (p *Pipeline) outputFor(doc models.DocumentRef) string {
	return filepath.Join(p.cfg.OutputPath, doc.Name)
}

func invalidInput(path string) error {
	return resizeerr.Config(resizeerr.ErrInvalidConfig,
		"the input must be an existing file or directory", "invalid input path %q", path)
}
