// Package azdo implements types.WorkItemStore against the Azure DevOps
// REST API (work item tracking and test plans, api-version 7.1).
package azdo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// APIVersion is sent with every request.
const APIVersion = "7.1"

const (
	contentTypeJSON      = "application/json"
	contentTypeJSONPatch = "application/json-patch+json"
	continuationHeader   = "x-ms-continuationtoken"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("azure devops: status %d", e.Status)
	}
	return fmt.Sprintf("azure devops: status %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto store sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return types.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.ErrUnauthorized
	case http.StatusTooManyRequests:
		return types.ErrRateLimited
	}
	return nil
}

// Client talks to one Azure DevOps organization.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the organization at baseURL
// (e.g. https://dev.azure.com/acme) authenticating with a personal access
// token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ types.WorkItemStore = (*Client)(nil)

type workItem struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields map[string]any `json:"fields"`
}

func (w workItem) remote() types.RemoteTestCase {
	fields := w.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return types.RemoteTestCase{ID: w.ID, Fields: fields}
}

// GetWorkItem implements types.WorkItemStore.
func (c *Client) GetWorkItem(ctx context.Context, id int) (types.RemoteTestCase, error) {
	var wi workItem
	path := "/_apis/wit/workitems/" + strconv.Itoa(id)
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, "", &wi); err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("get work item %d: %w", id, err)
	}
	return wi.remote(), nil
}

// CreateWorkItem implements types.WorkItemStore.
func (c *Client) CreateWorkItem(ctx context.Context, project, typeName string, patch []types.PatchOperation) (types.RemoteTestCase, error) {
	var wi workItem
	path := "/" + url.PathEscape(project) + "/_apis/wit/workitems/$" + url.PathEscape(typeName)
	if _, err := c.do(ctx, http.MethodPost, path, nil, patch, contentTypeJSONPatch, &wi); err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("create %s: %w", typeName, err)
	}
	c.logger.Debug("work item created", zap.Int("test_case_id", wi.ID), zap.String("project", project))
	return wi.remote(), nil
}

// UpdateWorkItem implements types.WorkItemStore.
func (c *Client) UpdateWorkItem(ctx context.Context, id int, patch []types.PatchOperation) (types.RemoteTestCase, error) {
	var wi workItem
	path := "/_apis/wit/workitems/" + strconv.Itoa(id)
	if _, err := c.do(ctx, http.MethodPatch, path, nil, patch, contentTypeJSONPatch, &wi); err != nil {
		return types.RemoteTestCase{}, fmt.Errorf("update work item %d: %w", id, err)
	}
	c.logger.Debug("work item updated", zap.Int("test_case_id", id), zap.Int("rev", wi.Rev))
	return wi.remote(), nil
}

type suiteTestCase struct {
	WorkItem struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"workItem"`
}

type suiteTestCaseList struct {
	Value []suiteTestCase `json:"value"`
	Count int             `json:"count"`
}

func suitePath(project string, planID, suiteID int) string {
	return fmt.Sprintf("/%s/_apis/testplan/Plans/%d/Suites/%d/TestCase", url.PathEscape(project), planID, suiteID)
}

// ListTestCasesInSuite implements types.WorkItemStore. It follows
// continuation tokens until the listing is complete.
func (c *Client) ListTestCasesInSuite(ctx context.Context, project string, planID, suiteID int) ([]types.RemoteTestCase, error) {
	var out []types.RemoteTestCase
	token := ""
	for {
		q := url.Values{}
		if token != "" {
			q.Set("continuationToken", token)
		}
		var page suiteTestCaseList
		hdr, err := c.do(ctx, http.MethodGet, suitePath(project, planID, suiteID), q, nil, "", &page)
		if err != nil {
			return nil, fmt.Errorf("list suite %d/%d: %w", planID, suiteID, err)
		}
		for _, tc := range page.Value {
			out = append(out, types.RemoteTestCase{
				ID:     tc.WorkItem.ID,
				Fields: map[string]any{types.FieldTitle: tc.WorkItem.Name},
			})
		}
		token = hdr.Get(continuationHeader)
		if token == "" {
			return out, nil
		}
	}
}

type suiteEntry struct {
	WorkItem struct {
		ID int `json:"id"`
	} `json:"workItem"`
}

// AddTestCasesToSuite implements types.WorkItemStore.
func (c *Client) AddTestCasesToSuite(ctx context.Context, project string, planID, suiteID int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	body := make([]suiteEntry, len(ids))
	for i, id := range ids {
		body[i].WorkItem.ID = id
	}
	if _, err := c.do(ctx, http.MethodPost, suitePath(project, planID, suiteID), nil, body, contentTypeJSON, nil); err != nil {
		return fmt.Errorf("add to suite %d/%d: %w", planID, suiteID, err)
	}
	c.logger.Debug("test cases added to suite", zap.Ints("test_case_ids", ids), zap.Int("suite_id", suiteID))
	return nil
}

// RemoveTestCasesFromSuite implements types.WorkItemStore.
func (c *Client) RemoveTestCasesFromSuite(ctx context.Context, project string, planID, suiteID int, ids string) error {
	if ids == "" {
		return nil
	}
	q := url.Values{}
	q.Set("testCaseIds", ids)
	if _, err := c.do(ctx, http.MethodDelete, suitePath(project, planID, suiteID), q, nil, "", nil); err != nil {
		return fmt.Errorf("remove from suite %d/%d: %w", planID, suiteID, err)
	}
	c.logger.Debug("test cases removed from suite", zap.String("test_case_ids", ids), zap.Int("suite_id", suiteID))
	return nil
}

// do sends one request and decodes a JSON response into out when out is
// non-nil. It returns the response headers.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any, contentType string, out any) (http.Header, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", APIVersion)
	u := c.baseURL + path + "?" + query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth("", c.token)
	req.Header.Set("Accept", contentTypeJSON)
	if in != nil {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("azure devops request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}
	if out == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.Header, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
