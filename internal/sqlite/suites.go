package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// ListTestCasesInSuite implements types.WorkItemStore. Members are returned
// in the order they were added.
func (b *Backend) ListTestCasesInSuite(ctx context.Context, project string, planID, suiteID int) ([]types.RemoteTestCase, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, `
SELECT w.id, w.project, w.type, w.fields, w.rev, w.created_at, w.updated_at
FROM suite_members m JOIN work_items w ON w.id = m.work_item_id
WHERE m.project = ? AND m.plan_id = ? AND m.suite_id = ?
ORDER BY m.rowid`, project, planID, suiteID)
	if err != nil {
		return nil, fmt.Errorf("listing suite %d/%d: %w", planID, suiteID, err)
	}
	defer rows.Close()

	var out []types.RemoteTestCase
	for rows.Next() {
		wi, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wi.remote())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating suite %d/%d: %w", planID, suiteID, err)
	}
	return out, nil
}

// AddTestCasesToSuite implements types.WorkItemStore. Every id must name an
// existing work item; ids already in the suite are ignored.
func (b *Backend) AddTestCasesToSuite(ctx context.Context, project string, planID, suiteID int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_items WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking work item %d: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("work item %d: %w", id, types.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO suite_members (project, plan_id, suite_id, work_item_id) VALUES (?, ?, ?, ?)`,
			project, planID, suiteID, id); err != nil {
			return fmt.Errorf("adding %d to suite %d/%d: %w", id, planID, suiteID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing suite add: %w", err)
	}
	return persistSuiteMembers(b.db, b.dataDir)
}

// RemoveTestCasesFromSuite implements types.WorkItemStore. ids is a
// comma-separated list; ids not in the suite are ignored.
func (b *Backend) RemoveTestCasesFromSuite(ctx context.Context, project string, planID, suiteID int, ids string) error {
	parsed, err := parseIDList(ids)
	if err != nil {
		return err
	}
	if len(parsed) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range parsed {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM suite_members WHERE project = ? AND plan_id = ? AND suite_id = ? AND work_item_id = ?`,
			project, planID, suiteID, id); err != nil {
			return fmt.Errorf("removing %d from suite %d/%d: %w", id, planID, suiteID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing suite removal: %w", err)
	}
	return persistSuiteMembers(b.db, b.dataDir)
}

func parseIDList(ids string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(ids, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: test case id %q", types.ErrInvalidPatch, part)
		}
		out = append(out, id)
	}
	return out, nil
}
