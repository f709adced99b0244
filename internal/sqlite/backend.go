// Package sqlite implements a local types.WorkItemStore. JSONL files in the
// data directory are the source of truth; SQLite is rebuilt from them on
// Attach and serves every query.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/gherkinsync/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

const dbFile = "gherkinsync.db"

// Backend stores work items and suite membership on local disk.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	dataDir  string
	db       *sql.DB
	logger   *zap.Logger
	now      func() time.Time
}

// NewBackend creates a detached backend. Call Attach before use.
func NewBackend() *Backend {
	return &Backend{logger: zap.NewNop(), now: time.Now}
}

// SetLogger replaces the backend logger.
func (b *Backend) SetLogger(l *zap.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = l
}

var _ types.Backend = (*Backend)(nil)

// Attach opens the backend on config.DataDir, creating the directory and
// empty JSONL files if needed, and loads the JSONL records into a fresh
// SQLite database. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.StoreConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// The database is a cache of the JSONL files.
	dbPath := filepath.Join(config.DataDir, dbFile)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}
	if err := initJSONLFiles(config.DataDir); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, config.DataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.dataDir = config.DataDir
	b.attached = true
	b.logger.Debug("sqlite store attached", zap.String("data_dir", config.DataDir))
	return nil
}

// Detach closes the database. After Detach every operation returns
// ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

func (b *Backend) timestamp() string {
	return b.now().UTC().Format(time.RFC3339)
}
