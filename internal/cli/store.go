package cli

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/gherkinsync/internal/azdo"
	"github.com/mesh-intelligence/gherkinsync/pkg/sqlite"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// openStore returns the configured work item store and a function that
// releases it.
func openStore(cfg types.StoreConfig, logger *zap.Logger) (types.WorkItemStore, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Store {
	case types.StoreAzureDevOps:
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, nil, fmt.Errorf("%w: no personal access token (set pat or %s_PAT)", types.ErrUnauthorized, envPrefix)
		}
		client := azdo.New(cfg.BaseURL, cfg.Token, azdo.WithLogger(logger.Named("azdo")))
		return client, func() error { return nil }, nil
	case types.StoreSQLite:
		backend := sqlite.NewLoggedBackend(logger.Named("sqlite"))
		if err := backend.Attach(cfg); err != nil {
			return nil, nil, fmt.Errorf("attach store: %w", err)
		}
		return backend, backend.Detach, nil
	}
	return nil, nil, types.ErrStoreUnknown
}
