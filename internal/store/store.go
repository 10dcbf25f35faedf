package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscrub/internal/model"
)

// ErrNotFound is returned when no job document exists at a path.
var ErrNotFound = eris.New("store: job not found")

// Store defines the job document store: per-upload column configuration,
// the append-only status history and the final results.
type Store interface {
	// GetJob loads the document at path with its full status history.
	GetJob(ctx context.Context, path string) (*model.Job, error)
	// PutConfig creates the document at path or replaces its column config.
	PutConfig(ctx context.Context, path string, cfg model.ColumnConfig) error
	// AppendStatus records a stage transition for runID.
	AppendStatus(ctx context.Context, path, runID string, stage model.Stage) error
	// Complete records DONE together with the results and output paths in
	// one transaction.
	Complete(ctx context.Context, path, runID string, results model.Results, outputs map[string]string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
