package azdo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// recorded is one request captured by the test server.
type recorded struct {
	Method      string
	Path        string
	Query       map[string][]string
	ContentType string
	Body        string
	User        string
	Password    string
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		reqs = append(reqs, recorded{
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       r.URL.Query(),
			ContentType: r.Header.Get("Content-Type"),
			Body:        string(body),
			User:        user,
			Password:    pass,
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "secret-pat", WithHTTPClient(srv.Client())), &reqs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetWorkItem(t *testing.T) {
	c, reqs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     42,
			"rev":    3,
			"fields": map[string]any{types.FieldTitle: "Login"},
		})
	})

	got, err := c.GetWorkItem(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 42, got.ID)
	assert.Equal(t, "Login", got.Fields[types.FieldTitle])

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/_apis/wit/workitems/42", req.Path)
	assert.Equal(t, []string{APIVersion}, req.Query["api-version"])
	assert.Equal(t, "", req.User)
	assert.Equal(t, "secret-pat", req.Password)
}

func TestGetWorkItem_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"not found", http.StatusNotFound, types.ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, types.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, types.ErrUnauthorized},
		{"throttled", http.StatusTooManyRequests, types.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{"message": "nope"})
			})
			_, err := c.GetWorkItem(context.Background(), 7)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "nope", apiErr.Message)
		})
	}
}

func TestAPIError_PlainBody(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom\n")
	})
	_, err := c.GetWorkItem(context.Background(), 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
	assert.NotErrorIs(t, err, types.ErrNotFound)
}

func TestCreateWorkItem(t *testing.T) {
	c, reqs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 100, "rev": 1, "fields": map[string]any{}})
	})
	patch := []types.PatchOperation{
		{Op: types.PatchAdd, Path: types.FieldPath(types.FieldTitle), Value: "Login"},
	}

	got, err := c.CreateWorkItem(context.Background(), "My Project", types.WorkItemTypeTestCase, patch)
	require.NoError(t, err)
	assert.Equal(t, 100, got.ID)

	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/My Project/_apis/wit/workitems/$Test Case", req.Path)
	assert.Equal(t, contentTypeJSONPatch, req.ContentType)
	assert.JSONEq(t, `[{"op":"add","path":"/fields/System.Title","value":"Login"}]`, req.Body)
}

func TestUpdateWorkItem(t *testing.T) {
	c, reqs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 5, "rev": 2})
	})
	patch := []types.PatchOperation{
		{Op: types.PatchReplace, Path: types.FieldPath(types.FieldDescription), Value: "<div>x</div>"},
	}

	got, err := c.UpdateWorkItem(context.Background(), 5, patch)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ID)
	assert.NotNil(t, got.Fields)

	req := (*reqs)[0]
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "/_apis/wit/workitems/5", req.Path)
	assert.Equal(t, contentTypeJSONPatch, req.ContentType)
}

func TestListTestCasesInSuite_FollowsContinuation(t *testing.T) {
	c, reqs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("continuationToken") == "" {
			w.Header().Set(continuationHeader, "page2")
			writeJSON(w, http.StatusOK, map[string]any{
				"value": []any{map[string]any{"workItem": map[string]any{"id": 1, "name": "a"}}},
				"count": 1,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"value": []any{map[string]any{"workItem": map[string]any{"id": 2, "name": "b"}}},
			"count": 1,
		})
	})

	got, err := c.ListTestCasesInSuite(context.Background(), "proj", 3, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, "b", got[1].Fields[types.FieldTitle])

	require.Len(t, *reqs, 2)
	assert.Equal(t, "/proj/_apis/testplan/Plans/3/Suites/4/TestCase", (*reqs)[0].Path)
	assert.Equal(t, []string{"page2"}, (*reqs)[1].Query["continuationToken"])
}

func TestAddTestCasesToSuite(t *testing.T) {
	c, reqs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})

	require.NoError(t, c.AddTestCasesToSuite(context.Background(), "proj", 3, 4, []int{7, 8}))
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/proj/_apis/testplan/Plans/3/Suites/4/TestCase", req.Path)
	assert.JSONEq(t, `[{"workItem":{"id":7}},{"workItem":{"id":8}}]`, req.Body)

	require.NoError(t, c.AddTestCasesToSuite(context.Background(), "proj", 3, 4, nil))
	assert.Len(t, *reqs, 1, "empty add sends nothing")
}

func TestRemoveTestCasesFromSuite(t *testing.T) {
	c, reqs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.RemoveTestCasesFromSuite(context.Background(), "proj", 3, 4, "7,8"))
	req := (*reqs)[0]
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, []string{"7,8"}, req.Query["testCaseIds"])

	require.NoError(t, c.RemoveTestCasesFromSuite(context.Background(), "proj", 3, 4, ""))
	assert.Len(t, *reqs, 1, "empty remove sends nothing")
}

func TestContextCancelled(t *testing.T) {
	c, reqs := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 1})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetWorkItem(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *reqs)
}
