package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/gherkinsync/internal/paths"
	"github.com/mesh-intelligence/gherkinsync/pkg/sqlite"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

type initOptions struct {
	store   string
	baseURL string
	project string
}

func newInitCmd() *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration",
		Long: "Create the configuration directory and a default config.yaml. With\n" +
			"--store sqlite the local store directory is initialized as well.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.store, "store", types.StoreAzureDevOps, "store backend: azdo or sqlite")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Azure DevOps organization URL")
	cmd.Flags().StringVar(&opts.project, "project", "", "project name")
	return cmd
}

func runInit(cmd *cobra.Command, opts initOptions) error {
	configDir, err := resolveConfigDir()
	if err != nil {
		return exitError(exitSysError, err)
	}

	cfg := defaultSettings()
	cfg.Store = opts.store
	cfg.BaseURL = opts.baseURL
	cfg.Project = opts.project
	if cfg.Store == types.StoreSQLite && flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if cfg.Store != types.StoreAzureDevOps && cfg.Store != types.StoreSQLite {
		return exitError(exitUserError, fmt.Errorf("%w: %q", types.ErrStoreUnknown, cfg.Store))
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return exitError(exitSysError, fmt.Errorf("create config directory: %w", err))
	}

	configPath := paths.ConfigFile(configDir)
	written, err := writeConfigIfMissing(configPath, cfg)
	if err != nil {
		return exitError(exitSysError, fmt.Errorf("write config: %w", err))
	}

	if cfg.Store == types.StoreSQLite {
		dataDir, err := paths.ResolveDataDir(flags.dataDir, cfg.DataDir)
		if err != nil {
			return exitError(exitSysError, err)
		}
		backend := sqlite.NewBackend()
		if err := backend.Attach(cfg.storeConfig(dataDir)); err != nil {
			return exitError(exitSysError, fmt.Errorf("initialize storage: %w", err))
		}
		if err := backend.Detach(); err != nil {
			return exitError(exitSysError, fmt.Errorf("finalize storage: %w", err))
		}
	}

	if written {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Config already exists: %s\n", configPath)
	}
	return nil
}
