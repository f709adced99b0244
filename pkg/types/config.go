package types

import (
	"errors"
	"fmt"
)

// Store backends selectable in configuration.
const (
	StoreAzureDevOps = "azdo"
	StoreSQLite      = "sqlite"
)

// Failure policies applied when a single test case fails to upsert.
const (
	// OnFailureAbort stops the run at the first failed upsert.
	OnFailureAbort = "abort"
	// OnFailureContinue records the failure and moves to the next candidate.
	OnFailureContinue = "continue"
)

// Default reference tag prefixes.
const (
	DefaultTestCaseTag  = "TestCaseReference"
	DefaultTestSuiteTag = "TestSuiteReference"
	DefaultTestPlanTag  = "TestPlanReference"
)

// Config validation errors.
var (
	ErrStoreEmpty         = errors.New("store must not be empty")
	ErrStoreUnknown       = errors.New("unknown store")
	ErrProjectEmpty       = errors.New("project must not be empty")
	ErrPlanInvalid        = errors.New("test plan id must be positive")
	ErrSuiteInvalid       = errors.New("test suite id must be positive")
	ErrOnFailureUnknown   = errors.New("unknown failure policy")
	ErrTagPrefixInvalid   = errors.New("tag prefixes must be non-empty and distinct")
	ErrCustomFieldNoName  = errors.New("custom field name must not be empty")
	ErrBaseURLEmpty       = errors.New("base url must not be empty for the azdo store")
	ErrDataDirEmptyConfig = errors.New("data dir must not be empty for the sqlite store")
)

// knownStores lists the stores that Validate accepts.
var knownStores = map[string]bool{
	StoreAzureDevOps: true,
	StoreSQLite:      true,
}

// CustomField is a remote field forced to DefaultValue on every sync.
type CustomField struct {
	Name         string `json:"name" yaml:"name" mapstructure:"name"`
	DefaultValue string `json:"default" yaml:"default" mapstructure:"default"`
}

// TagPrefixes names the three reference tags.
type TagPrefixes struct {
	TestCase  string `json:"test_case" yaml:"test_case" mapstructure:"test_case"`
	TestSuite string `json:"test_suite" yaml:"test_suite" mapstructure:"test_suite"`
	TestPlan  string `json:"test_plan" yaml:"test_plan" mapstructure:"test_plan"`
}

// DefaultTagPrefixes returns the stock tag prefixes.
func DefaultTagPrefixes() TagPrefixes {
	return TagPrefixes{
		TestCase:  DefaultTestCaseTag,
		TestSuite: DefaultTestSuiteTag,
		TestPlan:  DefaultTestPlanTag,
	}
}

// SyncOptions is the explicit configuration passed to every component of a
// synchronization run.
type SyncOptions struct {
	ProjectName         string
	TestPlanID          int
	TestSuiteID         int
	DescriptionTemplate string
	CustomFields        []CustomField

	BackgroundAsSteps    bool
	RemoveFromSuite      bool
	AssociateAutomation  bool
	AutomatedTestStorage string

	Tags      TagPrefixes
	OnFailure string
	DryRun    bool
}

// Validate checks that the options are complete enough to talk to a store.
// It returns a sentinel error from this package on failure.
func (o SyncOptions) Validate() error {
	if o.ProjectName == "" {
		return ErrProjectEmpty
	}
	if o.TestPlanID <= 0 {
		return ErrPlanInvalid
	}
	if o.TestSuiteID <= 0 {
		return ErrSuiteInvalid
	}
	switch o.OnFailure {
	case "", OnFailureAbort, OnFailureContinue:
	default:
		return fmt.Errorf("%w: %q", ErrOnFailureUnknown, o.OnFailure)
	}
	if err := o.Tags.Validate(); err != nil {
		return err
	}
	for _, f := range o.CustomFields {
		if f.Name == "" {
			return ErrCustomFieldNoName
		}
	}
	return nil
}

// Validate checks that every prefix is set and that no two collide.
func (t TagPrefixes) Validate() error {
	if t.TestCase == "" || t.TestSuite == "" || t.TestPlan == "" {
		return ErrTagPrefixInvalid
	}
	if t.TestCase == t.TestSuite || t.TestCase == t.TestPlan || t.TestSuite == t.TestPlan {
		return ErrTagPrefixInvalid
	}
	return nil
}

// StoreConfig selects and parameterizes the WorkItemStore backend.
type StoreConfig struct {
	Store   string `json:"store" yaml:"store"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Token   string `json:"-" yaml:"-"`
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Validate checks that the StoreConfig is well-formed.
func (c StoreConfig) Validate() error {
	if c.Store == "" {
		return ErrStoreEmpty
	}
	if !knownStores[c.Store] {
		return ErrStoreUnknown
	}
	switch c.Store {
	case StoreAzureDevOps:
		if c.BaseURL == "" {
			return ErrBaseURLEmpty
		}
	case StoreSQLite:
		if c.DataDir == "" {
			return ErrDataDirEmptyConfig
		}
	}
	return nil
}
