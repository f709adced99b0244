package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// loadAllJSONL reads the JSONL files from dataDir and inserts their records
// into SQLite. Loading is transactional: all succeed or the database stays
// empty. Malformed lines and records that violate constraints are skipped.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	items, err := readJSONL(filepath.Join(dataDir, workItemsFile))
	if err != nil {
		return err
	}
	if err := insertWorkItems(tx, items); err != nil {
		return err
	}

	members, err := readJSONL(filepath.Join(dataDir, suiteMembersFile))
	if err != nil {
		return err
	}
	if err := insertSuiteMembers(tx, members); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

func insertWorkItems(tx *sql.Tx, records []json.RawMessage) error {
	stmt, err := tx.Prepare(`INSERT INTO work_items (id, project, type, fields, rev, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing work item insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var wi workItemJSON
		if err := json.Unmarshal(rec, &wi); err != nil || wi.ID <= 0 {
			continue
		}
		fields, err := encodeFields(wi.Fields)
		if err != nil {
			continue
		}
		// Constraint violations (duplicate ids) are skipped.
		_, _ = stmt.Exec(wi.ID, wi.Project, wi.Type, fields, wi.Rev, wi.CreatedAt, wi.UpdatedAt)
	}
	return nil
}

func insertSuiteMembers(tx *sql.Tx, records []json.RawMessage) error {
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO suite_members (project, plan_id, suite_id, work_item_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing suite member insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var m suiteMemberJSON
		if err := json.Unmarshal(rec, &m); err != nil {
			continue
		}
		_, _ = stmt.Exec(m.Project, m.PlanID, m.SuiteID, m.WorkItemID)
	}
	return nil
}
