package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// fakeStore is an in-memory WorkItemStore that records every call.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int
	items   map[int]types.RemoteTestCase
	members []int

	calls   []string
	patches map[int][]types.PatchOperation

	failCreate map[string]error // keyed by title
	failGet    map[int]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:     100,
		items:      make(map[int]types.RemoteTestCase),
		patches:    make(map[int][]types.PatchOperation),
		failCreate: make(map[string]error),
		failGet:    make(map[int]error),
	}
}

func (s *fakeStore) put(id int, fields map[string]any) {
	s.items[id] = types.RemoteTestCase{ID: id, Fields: fields}
}

func (s *fakeStore) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *fakeStore) writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if !strings.HasPrefix(c, "get") && !strings.HasPrefix(c, "list") {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeStore) GetWorkItem(_ context.Context, id int) (types.RemoteTestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("get %d", id)
	if err := s.failGet[id]; err != nil {
		return types.RemoteTestCase{}, err
	}
	rec, ok := s.items[id]
	if !ok {
		return types.RemoteTestCase{}, types.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) apply(rec *types.RemoteTestCase, patch []types.PatchOperation) {
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	for _, op := range patch {
		rec.Fields[strings.TrimPrefix(op.Path, "/fields/")] = op.Value
	}
}

func title(patch []types.PatchOperation) string {
	for _, op := range patch {
		if op.Path == types.FieldPath(types.FieldTitle) {
			return fmt.Sprint(op.Value)
		}
	}
	return ""
}

func (s *fakeStore) CreateWorkItem(_ context.Context, project, typeName string, patch []types.PatchOperation) (types.RemoteTestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failCreate[title(patch)]; err != nil {
		s.record("create-failed %s", title(patch))
		return types.RemoteTestCase{}, err
	}
	s.nextID++
	rec := types.RemoteTestCase{ID: s.nextID}
	s.apply(&rec, patch)
	s.items[rec.ID] = rec
	s.patches[rec.ID] = patch
	s.record("create %d %s/%s", rec.ID, project, typeName)
	return rec, nil
}

func (s *fakeStore) UpdateWorkItem(_ context.Context, id int, patch []types.PatchOperation) (types.RemoteTestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id]
	if !ok {
		return types.RemoteTestCase{}, types.ErrNotFound
	}
	s.apply(&rec, patch)
	s.items[id] = rec
	s.patches[id] = patch
	s.record("update %d", id)
	return rec, nil
}

func (s *fakeStore) ListTestCasesInSuite(_ context.Context, _ string, _, _ int) ([]types.RemoteTestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("list")
	out := make([]types.RemoteTestCase, 0, len(s.members))
	for _, id := range s.members {
		out = append(out, types.RemoteTestCase{ID: id})
	}
	return out, nil
}

func (s *fakeStore) AddTestCasesToSuite(_ context.Context, _ string, _, _ int, ids []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, ids...)
	s.record("add %v", ids)
	return nil
}

func (s *fakeStore) RemoveTestCasesFromSuite(_ context.Context, _ string, _, _ int, ids string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("remove %s", ids)
	drop := make(map[int]bool)
	for _, p := range strings.Split(ids, ",") {
		id, err := strconv.Atoi(p)
		if err != nil {
			return err
		}
		drop[id] = true
	}
	kept := s.members[:0]
	for _, id := range s.members {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.members = kept
	return nil
}
