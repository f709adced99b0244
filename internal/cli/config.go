package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/gherkinsync/internal/paths"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "GHERKINSYNC"
)

// Config keys.
const (
	cfgKeyStore                = "store"
	cfgKeyBaseURL              = "base_url"
	cfgKeyPAT                  = "pat"
	cfgKeyProject              = "project"
	cfgKeyPlanID               = "plan_id"
	cfgKeySuiteID              = "suite_id"
	cfgKeyDescriptionTemplate  = "description_template"
	cfgKeyCustomFields         = "custom_fields"
	cfgKeyBackgroundAsSteps    = "background_as_steps"
	cfgKeyRemoveFromSuite      = "remove_from_suite"
	cfgKeyAssociateAutomation  = "associate_automation"
	cfgKeyAutomatedTestStorage = "automated_test_storage"
	cfgKeyBindingsFile         = "bindings_file"
	cfgKeyTagTestCase          = "tags.test_case"
	cfgKeyTagTestSuite         = "tags.test_suite"
	cfgKeyTagTestPlan          = "tags.test_plan"
	cfgKeyOnFailure            = "on_failure"
	cfgKeyDataDir              = "data_dir"
	cfgKeyPrefetchWorkers      = "prefetch_workers"
)

const defaultPrefetchWorkers = 4

// settings is the decoded configuration. Field tags match the keys above;
// the same struct is written by init.
type settings struct {
	Store                string              `mapstructure:"store" yaml:"store"`
	BaseURL              string              `mapstructure:"base_url" yaml:"base_url"`
	PAT                  string              `mapstructure:"pat" yaml:"pat,omitempty"`
	Project              string              `mapstructure:"project" yaml:"project"`
	PlanID               int                 `mapstructure:"plan_id" yaml:"plan_id"`
	SuiteID              int                 `mapstructure:"suite_id" yaml:"suite_id"`
	DescriptionTemplate  string              `mapstructure:"description_template" yaml:"description_template"`
	CustomFields         []types.CustomField `mapstructure:"custom_fields" yaml:"custom_fields"`
	BackgroundAsSteps    bool                `mapstructure:"background_as_steps" yaml:"background_as_steps"`
	RemoveFromSuite      bool                `mapstructure:"remove_from_suite" yaml:"remove_from_suite"`
	AssociateAutomation  bool                `mapstructure:"associate_automation" yaml:"associate_automation"`
	AutomatedTestStorage string              `mapstructure:"automated_test_storage" yaml:"automated_test_storage"`
	BindingsFile         string              `mapstructure:"bindings_file" yaml:"bindings_file"`
	Tags                 types.TagPrefixes   `mapstructure:"tags" yaml:"tags"`
	OnFailure            string              `mapstructure:"on_failure" yaml:"on_failure"`
	DataDir              string              `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	PrefetchWorkers      int                 `mapstructure:"prefetch_workers" yaml:"prefetch_workers"`
}

// defaultSettings returns the values used when neither config.yaml, the
// environment nor a flag sets a key.
func defaultSettings() settings {
	return settings{
		Store:           types.StoreAzureDevOps,
		CustomFields:    []types.CustomField{},
		Tags:            types.DefaultTagPrefixes(),
		OnFailure:       types.OnFailureAbort,
		BindingsFile:    "bindings.yaml",
		PrefetchWorkers: defaultPrefetchWorkers,
	}
}

// newViper returns a viper instance with defaults and environment
// overrides (GHERKINSYNC_PAT, GHERKINSYNC_TAGS_TEST_CASE, ...).
func newViper() *viper.Viper {
	d := defaultSettings()
	v := viper.New()
	v.SetDefault(cfgKeyStore, d.Store)
	v.SetDefault(cfgKeyBaseURL, d.BaseURL)
	v.SetDefault(cfgKeyPAT, d.PAT)
	v.SetDefault(cfgKeyProject, d.Project)
	v.SetDefault(cfgKeyPlanID, d.PlanID)
	v.SetDefault(cfgKeySuiteID, d.SuiteID)
	v.SetDefault(cfgKeyDescriptionTemplate, d.DescriptionTemplate)
	v.SetDefault(cfgKeyCustomFields, d.CustomFields)
	v.SetDefault(cfgKeyBackgroundAsSteps, d.BackgroundAsSteps)
	v.SetDefault(cfgKeyRemoveFromSuite, d.RemoveFromSuite)
	v.SetDefault(cfgKeyAssociateAutomation, d.AssociateAutomation)
	v.SetDefault(cfgKeyAutomatedTestStorage, d.AutomatedTestStorage)
	v.SetDefault(cfgKeyBindingsFile, d.BindingsFile)
	v.SetDefault(cfgKeyTagTestCase, d.Tags.TestCase)
	v.SetDefault(cfgKeyTagTestSuite, d.Tags.TestSuite)
	v.SetDefault(cfgKeyTagTestPlan, d.Tags.TestPlan)
	v.SetDefault(cfgKeyOnFailure, d.OnFailure)
	v.SetDefault(cfgKeyDataDir, d.DataDir)
	v.SetDefault(cfgKeyPrefetchWorkers, d.PrefetchWorkers)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads config.yaml from configDir using Viper. A missing
// config.yaml is not an error: defaults, environment and flags still apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := newViper()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// decodeSettings unmarshals v into settings.
func decodeSettings(v *viper.Viper) (settings, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// syncOptions maps settings onto the options of a synchronization run.
func (s settings) syncOptions() types.SyncOptions {
	return types.SyncOptions{
		ProjectName:          s.Project,
		TestPlanID:           s.PlanID,
		TestSuiteID:          s.SuiteID,
		DescriptionTemplate:  s.DescriptionTemplate,
		CustomFields:         s.CustomFields,
		BackgroundAsSteps:    s.BackgroundAsSteps,
		RemoveFromSuite:      s.RemoveFromSuite,
		AssociateAutomation:  s.AssociateAutomation,
		AutomatedTestStorage: s.AutomatedTestStorage,
		Tags:                 s.Tags,
		OnFailure:            s.OnFailure,
	}
}

// storeConfig maps settings onto the store configuration. dataDir is the
// resolved local store directory.
func (s settings) storeConfig(dataDir string) types.StoreConfig {
	return types.StoreConfig{
		Store:   s.Store,
		BaseURL: s.BaseURL,
		Token:   s.PAT,
		DataDir: dataDir,
	}
}

// writeConfigIfMissing creates config.yaml with cfg if the file does not
// exist. If it already exists, the function returns false and nil.
func writeConfigIfMissing(path string, cfg settings) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := "# gherkinsync configuration. The personal access token is read from\n# " +
		envPrefix + "_PAT when pat is not set here.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o600); err != nil {
		return false, err
	}
	return true, nil
}

// resolveConfigDir returns the config directory from flag, env, or default.
func resolveConfigDir() (string, error) {
	dir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return dir, nil
}
