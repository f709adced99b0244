package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

const fieldPathPrefix = "/fields/"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (workItemJSON, error) {
	var (
		wi     workItemJSON
		fields string
	)
	if err := row.Scan(&wi.ID, &wi.Project, &wi.Type, &fields, &wi.Rev, &wi.CreatedAt, &wi.UpdatedAt); err != nil {
		return workItemJSON{}, err
	}
	if err := json.Unmarshal([]byte(fields), &wi.Fields); err != nil {
		return workItemJSON{}, fmt.Errorf("decoding fields of work item %d: %w", wi.ID, err)
	}
	if wi.Fields == nil {
		wi.Fields = map[string]any{}
	}
	return wi, nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encoding fields: %w", err)
	}
	return string(data), nil
}

func (wi workItemJSON) remote() types.RemoteTestCase {
	return types.RemoteTestCase{ID: wi.ID, Fields: wi.Fields}
}

// applyPatch applies JSON Patch operations to fields. "add" sets a field;
// "replace" requires the field to exist.
func applyPatch(fields map[string]any, patch []types.PatchOperation) error {
	for _, op := range patch {
		if !strings.HasPrefix(op.Path, fieldPathPrefix) || len(op.Path) == len(fieldPathPrefix) {
			return fmt.Errorf("%w: path %q", types.ErrInvalidPatch, op.Path)
		}
		name := strings.TrimPrefix(op.Path, fieldPathPrefix)
		switch op.Op {
		case types.PatchAdd:
		case types.PatchReplace:
			if _, ok := fields[name]; !ok {
				return fmt.Errorf("%w: replace of missing field %s", types.ErrInvalidPatch, name)
			}
		default:
			return fmt.Errorf("%w: op %q", types.ErrInvalidPatch, op.Op)
		}
		fields[name] = op.Value
	}
	return nil
}

func (b *Backend) checkAttached() error {
	if !b.attached {
		return types.ErrStoreDetached
	}
	return nil
}

func (b *Backend) getLocked(ctx context.Context, id int) (workItemJSON, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, project, type, fields, rev, created_at, updated_at FROM work_items WHERE id = ?`, id)
	wi, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workItemJSON{}, fmt.Errorf("work item %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return workItemJSON{}, fmt.Errorf("reading work item %d: %w", id, err)
	}
	return wi, nil
}

// GetWorkItem implements types.WorkItemStore.
func (b *Backend) GetWorkItem(ctx context.Context, id int) (types.RemoteTestCase, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return types.RemoteTestCase{}, err
	}

	wi, err := b.getLocked(ctx, id)
	if err != nil {
		return types.RemoteTestCase{}, err
	}
	return wi.remote(), nil
}

// CreateWorkItem implements types.WorkItemStore. The patch must set
// System.Title.
func (b *Backend) CreateWorkItem(ctx context.Context, project, typeName string, patch []types.PatchOperation) (types.RemoteTestCase, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return types.RemoteTestCase{}, err
	}

	fields := map[string]any{}
	if err := applyPatch(fields, patch); err != nil {
		return types.RemoteTestCase{}, err
	}
	if title, _ := fields[types.FieldTitle].(string); title == "" {
		return types.RemoteTestCase{}, fmt.Errorf("%w: %s is required", types.ErrInvalidPatch, types.FieldTitle)
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return types.RemoteTestCase{}, err
	}

	now := b.timestamp()
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO work_items (project, type, fields, rev, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
		project, typeName, encoded, now, now)
	if err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("inserting work item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("reading new work item id: %w", err)
	}
	if err := persistWorkItems(b.db, b.dataDir); err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("persisting work items: %w", err)
	}

	b.logger.Debug("work item created", zap.Int("test_case_id", int(id)), zap.String("project", project))
	return types.RemoteTestCase{ID: int(id), Fields: fields}, nil
}

// UpdateWorkItem implements types.WorkItemStore.
func (b *Backend) UpdateWorkItem(ctx context.Context, id int, patch []types.PatchOperation) (types.RemoteTestCase, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return types.RemoteTestCase{}, err
	}

	wi, err := b.getLocked(ctx, id)
	if err != nil {
		return types.RemoteTestCase{}, err
	}
	if err := applyPatch(wi.Fields, patch); err != nil {
		return types.RemoteTestCase{}, err
	}
	encoded, err := encodeFields(wi.Fields)
	if err != nil {
		return types.RemoteTestCase{}, err
	}

	wi.Rev++
	if _, err := b.db.ExecContext(ctx,
		`UPDATE work_items SET fields = ?, rev = ?, updated_at = ? WHERE id = ?`,
		encoded, wi.Rev, b.timestamp(), id); err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("updating work item %d: %w", id, err)
	}
	if err := persistWorkItems(b.db, b.dataDir); err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("persisting work items: %w", err)
	}

	b.logger.Debug("work item updated", zap.Int("test_case_id", id), zap.Int("rev", wi.Rev))
	return wi.remote(), nil
}
