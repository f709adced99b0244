package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/gherkinsync/internal/bindings"
	"github.com/mesh-intelligence/gherkinsync/internal/engine"
	"github.com/mesh-intelligence/gherkinsync/internal/extract"
	"github.com/mesh-intelligence/gherkinsync/internal/paths"
	"github.com/mesh-intelligence/gherkinsync/internal/reconcile"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// Messages printed at the end of a sync.
const (
	msgComplete  = "Synchronization complete."
	msgCancelled = "Synchronization cancelled."
)

// errNoFeatureFiles is returned when the arguments match no file.
var errNoFeatureFiles = errors.New("no feature files match")

type syncFlags struct {
	yes    bool
	dryRun bool
}

func newSyncCmd() *cobra.Command {
	var sf syncFlags
	cmd := &cobra.Command{
		Use:   "sync <file|glob>...",
		Short: "Synchronize feature files with remote test cases",
		Long: "Create or update one test case per scenario (one per example row for\n" +
			"scenario outlines), add them to the test suite and write the ids back\n" +
			"into the feature file. Arguments may be doublestar globs such as\n" +
			"'features/**/*.feature'.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, sf)
		},
	}
	cmd.Flags().Int("plan", 0, "test plan id (overrides plan_id)")
	cmd.Flags().Int("suite", 0, "test suite id (overrides suite_id)")
	cmd.Flags().String("project", "", "project name (overrides project)")
	cmd.Flags().Bool("prune", false, "remove suite members that no scenario refers to")
	cmd.Flags().String("on-failure", "", "abort or continue when a test case fails")
	cmd.Flags().BoolVar(&sf.dryRun, "dry-run", false, "compute changes without writing anything")
	cmd.Flags().BoolVarP(&sf.yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// flagKeys maps sync flags onto config keys.
var flagKeys = map[string]string{
	"plan":       cfgKeyPlanID,
	"suite":      cfgKeySuiteID,
	"project":    cfgKeyProject,
	"prune":      cfgKeyRemoveFromSuite,
	"on-failure": cfgKeyOnFailure,
}

func runSync(cmd *cobra.Command, args []string, sf syncFlags) error {
	configDir, err := resolveConfigDir()
	if err != nil {
		return exitError(exitSysError, err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitUserError, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return exitError(exitSysError, fmt.Errorf("bind flag %s: %w", name, err))
		}
	}
	cfg, err := decodeSettings(v)
	if err != nil {
		return exitError(exitUserError, err)
	}

	logger, err := newLogger(flags.verbose)
	if err != nil {
		return exitError(exitSysError, err)
	}
	defer logger.Sync() //nolint:errcheck

	files, err := expandPatterns(args)
	if err != nil {
		return exitError(exitUserError, err)
	}

	dataDir := ""
	if cfg.Store == types.StoreSQLite {
		if dataDir, err = paths.ResolveDataDir(flags.dataDir, cfg.DataDir); err != nil {
			return exitError(exitSysError, err)
		}
	}
	store, closeStore, err := openStore(cfg.storeConfig(dataDir), logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := cfg.syncOptions()
	opts.DryRun = sf.dryRun

	var lookup extract.Lookup
	if opts.AssociateAutomation {
		b, err := loadBindings(paths.ResolveFrom(configDir, cfg.BindingsFile), logger)
		if err != nil {
			return exitError(exitUserError, err)
		}
		if b == nil {
			opts.AssociateAutomation = false
		} else {
			lookup = b.Lookup
			if b.Storage != "" {
				opts.AutomatedTestStorage = b.Storage
			}
		}
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithAutomation(lookup),
		engine.WithReconcileOptions(reconcile.WithWorkers(cfg.PrefetchWorkers)),
	}
	if !sf.yes && !sf.dryRun {
		engineOpts = append(engineOpts, engine.WithConfirm(confirmPrompt(cmd.InOrStdin(), cmd.OutOrStdout())))
	}
	e := engine.New(store, opts, engineOpts...)

	out := cmd.OutOrStdout()
	for _, path := range files {
		summary, err := e.Run(cmd.Context(), path)
		if errors.Is(err, types.ErrCancelled) {
			fmt.Fprintln(out, msgCancelled)
			return nil
		}
		printSummary(out, summary, opts.DryRun)
		if err != nil {
			return exitError(exitCode(err), err)
		}
	}
	fmt.Fprintln(out, msgComplete)
	return nil
}

// expandPatterns resolves each argument as a doublestar glob. Plain paths
// are kept as given so a missing file is reported by the run itself.
func expandPatterns(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, arg := range args {
		if !hasMeta(arg) {
			if !seen[arg] {
				seen[arg] = true
				files = append(files, arg)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w %q", errNoFeatureFiles, arg)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// loadBindings loads the automation bindings file. A missing file disables
// association and is not an error.
func loadBindings(path string, logger *zap.Logger) (*bindings.Bindings, error) {
	if path == "" {
		return nil, nil
	}
	b, err := bindings.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("bindings file not found, automation association disabled", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("bindings loaded", zap.String("path", path), zap.Int("count", b.Len()))
	return b, nil
}

// confirmPrompt asks once per file before anything is sent to the store.
func confirmPrompt(in io.Reader, out io.Writer) func(engine.Plan) bool {
	reader := bufio.NewReader(in)
	return func(p engine.Plan) bool {
		o := p.Options
		fmt.Fprintf(out, "%s: %d test cases (%d new) -> project %s, plan %d, suite %d\n",
			p.Path, len(p.Candidates), p.New(), o.ProjectName, o.TestPlanID, o.TestSuiteID)
		if o.RemoveFromSuite {
			fmt.Fprintln(out, "Suite members not referenced by the file will be removed.")
		}
		fmt.Fprint(out, "Proceed? [y/N] ")
		answer, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func printSummary(out io.Writer, s engine.Summary, dryRun bool) {
	line := fmt.Sprintf("%s: %d created, %d updated", s.Path, s.Created, s.Updated)
	if s.Failed > 0 {
		line += fmt.Sprintf(", %d failed", s.Failed)
	}
	if len(s.Added) > 0 {
		line += fmt.Sprintf(", %d added to suite", len(s.Added))
	}
	if len(s.Removed) > 0 {
		line += fmt.Sprintf(", %d removed from suite", len(s.Removed))
	}
	if dryRun {
		line += " (dry run)"
	}
	fmt.Fprintln(out, line)
}
