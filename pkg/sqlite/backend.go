// Package sqlite exposes the local SQLite work item store while keeping
// implementation details internal.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/gherkinsync/internal/sqlite"
	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

// NewBackend creates a detached local store.
//
// Example:
//
//	backend := sqlite.NewBackend()
//	err := backend.Attach(types.StoreConfig{
//	    Store:   types.StoreSQLite,
//	    DataDir: ".gherkinsync",
//	})
//	defer backend.Detach()
func NewBackend() types.Backend {
	return sqlite.NewBackend()
}

// NewLoggedBackend is NewBackend with debug logging of store operations.
func NewLoggedBackend(logger *zap.Logger) types.Backend {
	b := sqlite.NewBackend()
	b.SetLogger(logger)
	return b
}
