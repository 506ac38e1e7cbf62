package mutex

import (
	"encoding/json"
	"time"
)

// Options for a single call. An explicit value wins over the manager's default,
// which wins over the derived value (the previous body, the current time as score).

// CreateOptions configures Create.
type CreateOptions struct {
	Owner string
	Body  json.RawMessage

	// Acquire creates the row already held by the caller instead of unattended.
	Acquire bool
}

// AcquireOptions configures Acquire.
type AcquireOptions struct {
	// Timeout bounds how long Acquire keeps trying. Zero waits forever.
	Timeout time.Duration

	// LockID restricts the search to one lock. Empty takes any acquirable lock.
	LockID string

	Owner string
	Body  json.RawMessage
}

// WriteOptions configures Update, Release and Delete.
type WriteOptions struct {
	Owner string
	Body  json.RawMessage
}
