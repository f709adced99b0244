package types

import (
	"context"
	"errors"
)

// WorkItemTypeTestCase is the remote work item type created for candidates.
const WorkItemTypeTestCase = "Test Case"

// Remote field reference names.
const (
	FieldTitle                = "System.Title"
	FieldDescription          = "System.Description"
	FieldSteps                = "Microsoft.VSTS.TCM.Steps"
	FieldAutomatedTestID      = "Microsoft.VSTS.TCM.AutomatedTestId"
	FieldAutomatedTestName    = "Microsoft.VSTS.TCM.AutomatedTestName"
	FieldAutomatedTestStorage = "Microsoft.VSTS.TCM.AutomatedTestStorage"
	FieldAutomatedTestType    = "Microsoft.VSTS.TCM.AutomatedTestType"
)

// JSON Patch operations accepted by the store.
const (
	PatchAdd     = "add"
	PatchReplace = "replace"
)

// RemoteTestCase is a work item as held by the remote store.
type RemoteTestCase struct {
	ID     int
	Fields map[string]any
}

// HasField reports whether the record already carries the field.
func (r RemoteTestCase) HasField(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

// PatchOperation is one JSON Patch entry against a work item.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// FieldPath returns the JSON Patch path of a work item field.
func FieldPath(field string) string {
	return "/fields/" + field
}

// WorkItemStore is the remote test-management contract used by the
// reconciler. Implementations must be safe for concurrent reads.
type WorkItemStore interface {
	// GetWorkItem returns the work item with the given id, or ErrNotFound.
	GetWorkItem(ctx context.Context, id int) (RemoteTestCase, error)

	// CreateWorkItem creates a work item of typeName in project.
	CreateWorkItem(ctx context.Context, project, typeName string, patch []PatchOperation) (RemoteTestCase, error)

	// UpdateWorkItem applies patch to an existing work item.
	UpdateWorkItem(ctx context.Context, id int, patch []PatchOperation) (RemoteTestCase, error)

	// ListTestCasesInSuite returns the current members of a suite.
	ListTestCasesInSuite(ctx context.Context, project string, planID, suiteID int) ([]RemoteTestCase, error)

	// AddTestCasesToSuite adds work items to a suite in one request.
	AddTestCasesToSuite(ctx context.Context, project string, planID, suiteID int, ids []int) error

	// RemoveTestCasesFromSuite removes the comma-joined ids from a suite.
	RemoveTestCasesFromSuite(ctx context.Context, project string, planID, suiteID int, ids string) error
}

// Backend is a WorkItemStore with an explicit lifecycle. Operations on a
// detached backend return ErrStoreDetached.
type Backend interface {
	WorkItemStore

	// Attach opens the backend with config. It returns ErrAlreadyAttached
	// when called twice.
	Attach(config StoreConfig) error

	// Detach releases resources. It is idempotent.
	Detach() error
}

// Store errors.
var (
	ErrNotFound        = errors.New("work item not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrInvalidPatch    = errors.New("invalid patch operation")
)

// Document errors. These abort a run before any remote mutation.
var (
	ErrParse        = errors.New("parse feature file")
	ErrNoFeature    = errors.New("feature file has no Feature")
	ErrMalformedTag = errors.New("malformed reference tag")
	ErrCancelled    = errors.New("synchronization cancelled")
)
