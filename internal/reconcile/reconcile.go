// Package reconcile pushes test-case candidates to a WorkItemStore and keeps
// the configured test suite's membership in step with the feature file.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/gherkinsync/internal/render"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

const defaultWorkers = 4

// Reconciler creates or updates remote test cases and manages suite
// membership. Writes are issued one at a time in candidate order.
type Reconciler struct {
	store   types.WorkItemStore
	opts    types.SyncOptions
	format  render.Formatter
	logger  *zap.Logger
	newID   func() string
	workers int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithFormatter sets the description post-processor. The default wraps
// lines in HTML blocks.
func WithFormatter(f render.Formatter) Option {
	return func(r *Reconciler) { r.format = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithIDGenerator sets the generator for new automated test identifiers.
func WithIDGenerator(f func() string) Option {
	return func(r *Reconciler) { r.newID = f }
}

// WithWorkers bounds the number of concurrent reads during Prefetch.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New returns a Reconciler for store using opts.
func New(store types.WorkItemStore, opts types.SyncOptions, options ...Option) *Reconciler {
	r := &Reconciler{
		store:   store,
		opts:    opts,
		format:  render.HTMLBlocks,
		logger:  zap.NewNop(),
		newID:   func() string { return uuid.New().String() },
		workers: defaultWorkers,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// UpsertError reports a failed create or update for one candidate.
type UpsertError struct {
	TestCaseName string
	ExampleRow   int
	TestCaseID   int
	Err          error
}

func (e *UpsertError) Error() string {
	if e.ExampleRow >= 0 {
		return fmt.Sprintf("upsert test case %q (example row %d): %v", e.TestCaseName, e.ExampleRow+1, e.Err)
	}
	return fmt.Sprintf("upsert test case %q: %v", e.TestCaseName, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// Result is the outcome of one upsert. On failure ID keeps the
// candidate's original identifier and Err is an *UpsertError.
type Result struct {
	Candidate types.TestCaseCandidate
	ID        int
	Created   bool
	Err       error
}

// OK reports whether the upsert succeeded.
func (r Result) OK() bool { return r.Err == nil }

type fetched struct {
	rec types.RemoteTestCase
	err error
}

// ListSuiteMembers returns the current members of the configured suite.
func (r *Reconciler) ListSuiteMembers(ctx context.Context) ([]types.RemoteTestCase, error) {
	members, err := r.store.ListTestCasesInSuite(ctx, r.opts.ProjectName, r.opts.TestPlanID, r.opts.TestSuiteID)
	if err != nil {
		return nil, fmt.Errorf("list suite %d of plan %d: %w", r.opts.TestSuiteID, r.opts.TestPlanID, err)
	}
	return members, nil
}

// Prefetch reads the existing records of every candidate that carries an
// identifier, using a bounded pool of concurrent reads. Per-record errors
// are kept and surface when the candidate is upserted.
func (r *Reconciler) Prefetch(ctx context.Context, candidates []types.TestCaseCandidate) (map[int]fetched, error) {
	var ids []int
	seen := make(map[int]bool)
	for _, c := range candidates {
		if c.HasID() && !seen[c.TestCaseID] {
			seen[c.TestCaseID] = true
			ids = append(ids, c.TestCaseID)
		}
	}

	out := make(map[int]fetched, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			rec, err := r.store.GetWorkItem(gctx, id)
			mu.Lock()
			out[id] = fetched{rec: rec, err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

// Upsert creates or updates the remote record for c and returns the
// resulting identifier.
func (r *Reconciler) Upsert(ctx context.Context, c types.TestCaseCandidate) Result {
	return r.upsert(ctx, c, nil)
}

func (r *Reconciler) upsert(ctx context.Context, c types.TestCaseCandidate, cache map[int]fetched) Result {
	fail := func(err error) Result {
		return Result{
			Candidate: c,
			ID:        c.TestCaseID,
			Err: &UpsertError{
				TestCaseName: c.TestCaseName,
				ExampleRow:   c.ExampleRow,
				TestCaseID:   c.TestCaseID,
				Err:          err,
			},
		}
	}

	var existing types.RemoteTestCase
	exists := false
	if c.HasID() {
		f, ok := cache[c.TestCaseID]
		if !ok {
			f.rec, f.err = r.store.GetWorkItem(ctx, c.TestCaseID)
		}
		switch {
		case f.err == nil:
			existing, exists = f.rec, true
		case errors.Is(f.err, types.ErrNotFound):
			r.logger.Warn("test case not found, creating a new one",
				zap.String("scenario", c.TestCaseName),
				zap.Int("test_case_id", c.TestCaseID))
		default:
			return fail(fmt.Errorf("get work item %d: %w", c.TestCaseID, f.err))
		}
	}

	patch := r.BuildPatch(c, existing)

	if r.opts.DryRun {
		return Result{Candidate: c, ID: c.TestCaseID, Created: !exists}
	}

	var saved types.RemoteTestCase
	var err error
	if exists {
		saved, err = r.store.UpdateWorkItem(ctx, c.TestCaseID, patch)
	} else {
		saved, err = r.store.CreateWorkItem(ctx, r.opts.ProjectName, types.WorkItemTypeTestCase, patch)
	}
	if err != nil {
		return fail(err)
	}
	if saved.ID <= 0 {
		return fail(fmt.Errorf("store returned invalid id %d", saved.ID))
	}

	r.logger.Debug("test case synchronized",
		zap.String("scenario", c.TestCaseName),
		zap.Int("example_row", c.ExampleRow),
		zap.Int("test_case_id", saved.ID),
		zap.Bool("created", !exists))

	return Result{Candidate: c, ID: saved.ID, Created: !exists}
}

// BuildPatch computes the field writes for c against the existing record.
// Fields the record already has are replaced; new fields are added.
func (r *Reconciler) BuildPatch(c types.TestCaseCandidate, existing types.RemoteTestCase) []types.PatchOperation {
	var patch []types.PatchOperation
	set := func(field string, value any) {
		op := types.PatchAdd
		if existing.HasField(field) {
			op = types.PatchReplace
		}
		patch = append(patch, types.PatchOperation{Op: op, Path: types.FieldPath(field), Value: value})
	}

	set(types.FieldTitle, c.TestCaseName)
	set(types.FieldDescription, r.format(render.RenderDescription(r.opts.DescriptionTemplate, c)))
	set(types.FieldSteps, render.StepsXML(c.EffectiveSteps(r.opts.BackgroundAsSteps)))

	// Custom fields are forced to their defaults on every sync.
	for _, f := range r.opts.CustomFields {
		set(f.Name, f.DefaultValue)
	}

	if c.AutomationEnabled {
		testID, ok := existing.Fields[types.FieldAutomatedTestID]
		if !ok || testID == nil || testID == "" {
			testID = r.newID()
		}
		set(types.FieldAutomatedTestID, testID)
		set(types.FieldAutomatedTestName, c.AutomatedTestName)
		set(types.FieldAutomatedTestStorage, c.AutomatedTestStorage)
		set(types.FieldAutomatedTestType, c.AutomatedTestType)
	}
	return patch
}

// EnsureInSuite adds the ids that are not yet members in a single batch and
// returns the ids it added.
func (r *Reconciler) EnsureInSuite(ctx context.Context, members []types.RemoteTestCase, ids []int) ([]int, error) {
	present := make(map[int]bool, len(members))
	for _, m := range members {
		present[m.ID] = true
	}

	var missing []int
	for _, id := range ids {
		if id > 0 && !present[id] {
			present[id] = true
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 || r.opts.DryRun {
		return missing, nil
	}

	if err := r.store.AddTestCasesToSuite(ctx, r.opts.ProjectName, r.opts.TestPlanID, r.opts.TestSuiteID, missing); err != nil {
		return nil, fmt.Errorf("add %d test cases to suite %d: %w", len(missing), r.opts.TestSuiteID, err)
	}
	return missing, nil
}

// PruneSuite removes ids from the suite in one batched call. It is a no-op
// for an empty list.
func (r *Reconciler) PruneSuite(ctx context.Context, ids []string) error {
	if len(ids) == 0 || r.opts.DryRun {
		return nil
	}
	joined := strings.Join(ids, ",")
	if err := r.store.RemoveTestCasesFromSuite(ctx, r.opts.ProjectName, r.opts.TestPlanID, r.opts.TestSuiteID, joined); err != nil {
		return fmt.Errorf("remove %d test cases from suite %d: %w", len(ids), r.opts.TestSuiteID, err)
	}
	return nil
}

// Obsolete returns the suite members, as strings, that no local identifier
// refers to. Comparison is on the decimal string form.
func Obsolete(members []types.RemoteTestCase, localIDs []int) []string {
	local := make(map[string]bool, len(localIDs))
	for _, id := range localIDs {
		local[strconv.Itoa(id)] = true
	}

	var out []string
	for _, m := range members {
		id := strconv.Itoa(m.ID)
		if !local[id] && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
