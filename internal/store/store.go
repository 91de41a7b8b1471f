package store

import "context"

// Store defines the local persistence contract for flow documents and
// their autosave revisions. All implementations must be safe for
// concurrent use.
type Store interface {
	// Flows
	SaveFlow(ctx context.Context, flow *Flow) error
	GetFlow(ctx context.Context, id string) (*Flow, error)
	ListFlows(ctx context.Context, filter FlowFilter) ([]*Flow, error)
	DeleteFlow(ctx context.Context, id string) error

	// Revisions (append-only)
	AppendRevision(ctx context.Context, rev *Revision) error
	GetRevision(ctx context.Context, flowID string, seq int64) (*Revision, error)
	ListRevisions(ctx context.Context, flowID string, limit int) ([]*Revision, error)
	PruneRevisions(ctx context.Context, policy RetentionPolicy) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
