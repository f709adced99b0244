// Package cli implements the gherkinsync command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mesh-intelligence/gherkinsync/internal/tags"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "gherkinsync" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags = rootFlags{}

	root := &cobra.Command{
		Use:   "gherkinsync",
		Short: "Keep Gherkin feature files in step with remote test cases",
		Long: "gherkinsync turns the scenarios of a feature file into test case work items,\n" +
			"adds them to a test suite and writes the assigned ids back into the file.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "local store directory (default: .gherkinsync)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newSyncCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	stop()
	os.Exit(exitCode(err))
}

// codedError carries the process exit code for an error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// exitError tags err with an exit code.
func exitError(code int, err error) error {
	return &codedError{code: code, err: err}
}

// userErrors are failures the user can fix by changing input or config.
var userErrors = []error{
	types.ErrParse,
	types.ErrNoFeature,
	types.ErrMalformedTag,
	types.ErrUnauthorized,
	types.ErrStoreEmpty,
	types.ErrStoreUnknown,
	types.ErrProjectEmpty,
	types.ErrPlanInvalid,
	types.ErrSuiteInvalid,
	types.ErrOnFailureUnknown,
	types.ErrTagPrefixInvalid,
	types.ErrCustomFieldNoName,
	types.ErrBaseURLEmpty,
	types.ErrDataDirEmptyConfig,
}

// exitCode returns the exit code attached to err, classifying untagged
// errors as user or system errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	var parseErr *tags.ParseError
	if errors.As(err, &parseErr) {
		return exitUserError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

// newLogger builds the process logger. Debug output is enabled with
// --verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
