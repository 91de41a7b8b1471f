package store

import (
	"encoding/json"
	"time"
)

// Flow is a persisted flow document together with its storage metadata.
// Document holds the canonical JSON; the store never interprets it beyond
// round-tripping.
type Flow struct {
	ID        string
	Name      string
	Version   string
	Document  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Revision is an autosaved snapshot of a flow document. Revisions are
// append-only; Seq increases per flow.
type Revision struct {
	ID       int64
	FlowID   string
	Seq      int64
	Label    string
	Document json.RawMessage
	SavedAt  time.Time
}

// FlowFilter narrows ListFlows.
type FlowFilter struct {
	Name   string
	Since  *time.Time
	Limit  int
	Offset int
}

// RetentionPolicy bounds how many revisions a flow keeps.
type RetentionPolicy struct {
	// KeepPerFlow is the number of most recent revisions retained per flow.
	KeepPerFlow int
	// MaxAge drops revisions older than this regardless of count. Zero
	// disables the age check.
	MaxAge time.Duration
}
