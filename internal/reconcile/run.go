package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// Report summarizes a reconciliation run.
type Report struct {
	// Results holds one entry per processed candidate, in candidate order.
	// After an aborted run it stops at the failing candidate.
	Results []Result
	// Added lists ids added to the suite.
	Added []int
	// Removed lists ids pruned from the suite.
	Removed []string
}

// Failures returns the failed results.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Created counts the records that were created rather than updated.
func (r Report) Created() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() && res.Created {
			n++
		}
	}
	return n
}

// Apply returns candidates with the identifiers assigned by the run.
// Candidates that failed or were not reached keep their original id.
func (r Report) Apply(candidates []types.TestCaseCandidate) []types.TestCaseCandidate {
	out := make([]types.TestCaseCandidate, len(candidates))
	copy(out, candidates)
	for i, res := range r.Results {
		if i < len(out) && res.OK() {
			out[i].TestCaseID = res.ID
		}
	}
	return out
}

// Run upserts every candidate in order, adds the resulting ids to the
// suite and, when pruning is enabled, removes suite members that no
// candidate refers to.
//
// Under the abort policy the first failed upsert stops the run and is
// returned as an *UpsertError together with the partial report. Under the
// continue policy failures are collected in the report; failed candidates
// keep their original id, so they are never pruned.
func (r *Reconciler) Run(ctx context.Context, candidates []types.TestCaseCandidate) (Report, error) {
	var report Report

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}

	members, err := r.ListSuiteMembers(ctx)
	if err != nil {
		return report, err
	}

	cache, err := r.Prefetch(ctx, candidates)
	if err != nil {
		return report, fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}

	abort := r.opts.OnFailure == "" || r.opts.OnFailure == types.OnFailureAbort

	ids := make([]int, 0, len(candidates))
	for _, c := range candidates {
		res := r.upsert(ctx, c, cache)
		report.Results = append(report.Results, res)
		if !res.OK() {
			r.logger.Error("test case failed to synchronize",
				zap.String("scenario", c.TestCaseName),
				zap.Int("example_row", c.ExampleRow),
				zap.Error(res.Err))
			if abort {
				return report, res.Err
			}
		}
		ids = append(ids, res.ID)
	}

	report.Added, err = r.EnsureInSuite(ctx, members, ids)
	if err != nil {
		return report, err
	}

	if r.opts.RemoveFromSuite {
		obsolete := Obsolete(members, ids)
		if err := r.PruneSuite(ctx, obsolete); err != nil {
			return report, err
		}
		report.Removed = obsolete
	}

	r.logger.Info("suite reconciled",
		zap.Int("candidates", len(candidates)),
		zap.Int("created", report.Created()),
		zap.Int("failed", len(report.Failures())),
		zap.Ints("added", report.Added),
		zap.Strings("removed", report.Removed),
		zap.Bool("dry_run", r.opts.DryRun))

	return report, nil
}
