package types

import "encoding/json"

// capability returned by every successful mutex write
// it goes stale as soon as any other writer succeeds against the same row
type Handle struct {
	Key     string          `json:"key"`
	Version string          `json:"version"`
	Body    json.RawMessage `json:"body,omitempty"`
}
