package sqlite

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	workItemsFile    = "work_items.jsonl"
	suiteMembersFile = "suite_members.jsonl"
)

// initJSONLFiles creates any missing JSONL file as empty.
func initJSONLFiles(dataDir string) error {
	for _, name := range []string{workItemsFile, suiteMembersFile} {
		path := filepath.Join(dataDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", name, err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
	}
	return nil
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail(fmt.Errorf("writing newline: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// persistWorkItems rewrites work_items.jsonl from the database.
func persistWorkItems(db *sql.DB, dataDir string) error {
	rows, err := db.Query(`SELECT id, project, type, fields, rev, created_at, updated_at FROM work_items ORDER BY id`)
	if err != nil {
		return fmt.Errorf("querying work items: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		rec, err := scanWorkItem(rows)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding work item %d: %w", rec.ID, err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating work items: %w", err)
	}
	return writeJSONL(filepath.Join(dataDir, workItemsFile), records)
}

// persistSuiteMembers rewrites suite_members.jsonl from the database.
func persistSuiteMembers(db *sql.DB, dataDir string) error {
	rows, err := db.Query(`SELECT project, plan_id, suite_id, work_item_id FROM suite_members ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("querying suite members: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		var m suiteMemberJSON
		if err := rows.Scan(&m.Project, &m.PlanID, &m.SuiteID, &m.WorkItemID); err != nil {
			return fmt.Errorf("scanning suite member: %w", err)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding suite member: %w", err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating suite members: %w", err)
	}
	return writeJSONL(filepath.Join(dataDir, suiteMembersFile), records)
}
