package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// Backends accepted by NewStore.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Options selects and locates a store backend.
type Options struct {
	Backend string
	// Path is the database file for sqlite or the root directory for json.
	Path string
}

// NewStore creates a WorkflowStore for the configured backend. SQLite is the
// default. A sqlite path without a .db extension gets one.
func NewStore(opts Options) (core.WorkflowStore, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	switch backend {
	case "", BackendSQLite:
		path := opts.Path
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		if !strings.HasSuffix(path, ".db") {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
		}
		return NewSQLiteStore(path)
	case BackendJSON:
		if opts.Path == "" {
			return nil, fmt.Errorf("json backend requires a directory")
		}
		return NewJSONStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown state backend %q (valid: %s, %s)", opts.Backend, BackendSQLite, BackendJSON)
	}
}
