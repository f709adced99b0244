// Package engine runs one synchronization of a feature file: parse,
// extract candidates, reconcile them with the store, and write the
// assigned identifiers back into the file.
package engine

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gherkinsync/internal/extract"
	"github.com/mesh-intelligence/gherkinsync/internal/gherkin"
	"github.com/mesh-intelligence/gherkinsync/internal/reconcile"
	"github.com/mesh-intelligence/gherkinsync/internal/rewrite"
	"github.com/mesh-intelligence/gherkinsync/internal/tags"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// Plan is what a run is about to do. It is handed to the confirm hook
// before anything is sent to the store.
type Plan struct {
	Path       string
	Options    types.SyncOptions
	Candidates []types.TestCaseCandidate
}

// New counts candidates without an identifier.
func (p Plan) New() int {
	n := 0
	for _, c := range p.Candidates {
		if !c.HasID() {
			n++
		}
	}
	return n
}

// Summary is the outcome of a run.
type Summary struct {
	Path       string
	Candidates int
	Created    int
	Updated    int
	Failed     int
	Added      []int
	Removed    []string
	// Rewritten is true when the feature file was changed on disk.
	Rewritten bool
}

// Engine synchronizes feature files against one store.
type Engine struct {
	store      types.WorkItemStore
	opts       types.SyncOptions
	automation extract.Lookup
	confirm    func(Plan) bool
	logger     *zap.Logger
	reconcile  []reconcile.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. It is also passed to the reconciler.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithAutomation sets the lookup used to bind scenarios to automated tests.
func WithAutomation(l extract.Lookup) Option {
	return func(e *Engine) { e.automation = l }
}

// WithConfirm sets a hook consulted before any store mutation. Returning
// false cancels the run with types.ErrCancelled.
func WithConfirm(f func(Plan) bool) Option {
	return func(e *Engine) { e.confirm = f }
}

// WithReconcileOptions passes options through to the reconciler.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(e *Engine) { e.reconcile = append(e.reconcile, opts...) }
}

// New returns an Engine for store. Zero tag prefixes are replaced by the
// defaults.
func New(store types.WorkItemStore, opts types.SyncOptions, options ...Option) *Engine {
	if opts.Tags == (types.TagPrefixes{}) {
		opts.Tags = types.DefaultTagPrefixes()
	}
	e := &Engine{store: store, opts: opts, logger: zap.NewNop()}
	for _, o := range options {
		o(e)
	}
	return e
}

// Run synchronizes the feature file at path.
//
// Parse errors, malformed tags and invalid options stop the run before the
// store is contacted. When the reconciler fails part way, the identifiers
// of the candidates that did succeed are still written back, so a rerun
// updates them instead of creating duplicates; the reconcile error is
// returned alongside the summary.
func (e *Engine) Run(ctx context.Context, path string) (Summary, error) {
	summary := Summary{Path: path}
	log := e.logger.With(zap.String("path", path))

	doc, err := rewrite.ReadFile(path)
	if err != nil {
		return summary, err
	}
	feature, err := gherkin.ParseBytes(doc.Bytes())
	if err != nil {
		return summary, fmt.Errorf("%s: %w", path, err)
	}

	refs, err := tags.ResolveFeature(feature, e.opts.Tags)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", path, err)
	}
	opts := refs.ApplyTo(e.opts)
	if err := opts.Validate(); err != nil {
		return summary, fmt.Errorf("%s: %w", path, err)
	}

	candidates, err := extract.Extract(feature, extract.OptionsFrom(opts, e.automation))
	if err != nil {
		return summary, fmt.Errorf("%s: %w", path, err)
	}
	summary.Candidates = len(candidates)

	plan := Plan{Path: path, Options: opts, Candidates: candidates}
	if e.confirm != nil && !e.confirm(plan) {
		log.Info("synchronization cancelled before any change")
		return summary, types.ErrCancelled
	}

	rec := reconcile.New(e.store, opts, append([]reconcile.Option{reconcile.WithLogger(e.logger)}, e.reconcile...)...)
	report, runErr := rec.Run(ctx, candidates)

	for _, res := range report.Results {
		switch {
		case !res.OK():
			summary.Failed++
		case res.Created:
			summary.Created++
		default:
			summary.Updated++
		}
	}
	summary.Added = report.Added
	summary.Removed = report.Removed

	if summary.Created+summary.Updated == 0 && runErr != nil {
		return summary, runErr
	}

	lines := rewrite.Apply(doc.Lines, report.Apply(candidates), rewrite.Feature{Line: feature.Line, Refs: refs}, opts)
	if !opts.DryRun && !slices.Equal(lines, doc.Lines) {
		doc.Lines = lines
		if err := rewrite.WriteFile(path, doc); err != nil {
			return summary, err
		}
		summary.Rewritten = true
	}

	log.Info("feature synchronized",
		zap.Int("candidates", summary.Candidates),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Bool("rewritten", summary.Rewritten))

	return summary, runErr
}
