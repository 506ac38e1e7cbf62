package types

import "encoding/json"

// lock row as stored in the table
// the json field names are the table schema shared with every other client of the table
//
// in a write, a nil Owner or Body means "leave the stored value alone"
// Score is always written
type Row struct {
	Key   string          `json:"key"`
	Score int64           `json:"score"`
	Owner *string         `json:"owner,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// deep copy, rows handed out by a store must not alias its internal state
func (r Row) Clone() Row {
	out := Row{Key: r.Key, Score: r.Score}
	if r.Owner != nil {
		owner := *r.Owner
		out.Owner = &owner
	}
	if r.Body != nil {
		out.Body = append(json.RawMessage{}, r.Body...)
	}
	return out
}

// applies a partial write on top of the stored row
func (r Row) Merge(w Row) Row {
	out := r.Clone()
	out.Score = w.Score
	if w.Owner != nil {
		owner := *w.Owner
		out.Owner = &owner
	}
	if w.Body != nil {
		out.Body = append(json.RawMessage{}, w.Body...)
	}
	return out
}

// row plus the version token the store assigned on its last write
type VersionedRow struct {
	Row     Row    `json:"row"`
	Version string `json:"version"`
}

// identifies a table, Scope is the compartment-like namespace it lives in
type TableInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Scope string `json:"scope,omitempty"`
}

type PutMode uint8

const (
	PutIfAbsent PutMode = iota + 1 // create only
	PutIfPresent                   // update only
)

func (m PutMode) String() string {
	switch m {
	case PutIfAbsent:
		return "if_absent"
	case PutIfPresent:
		return "if_present"
	default:
		return "unknown"
	}
}

// conditional write
// MatchVersion is only honoured for PutIfPresent, empty means unconditional
type PutRequest struct {
	Value        Row     `json:"value"`
	Mode         PutMode `json:"mode"`
	MatchVersion string  `json:"match_version,omitempty"`
	ReturnRow    bool    `json:"return_row,omitempty"`
}

// outcome of a conditional write
// an empty Version means nothing was written, that is not an error
type PutResult struct {
	Version         string `json:"version,omitempty"`
	ExistingVersion string `json:"existing_version,omitempty"`
	ExistingValue   *Row   `json:"existing_value,omitempty"`
}

func (r PutResult) Written() bool {
	return r.Version != ""
}

type Consistency uint8

const (
	Eventual Consistency = iota
	Absolute
)

// range predicate over the score column: MinScore <= score < MaxScore
// Key restricts the scan to a single row when set
type ScanQuery struct {
	MinScore    int64       `json:"min_score"`
	MaxScore    int64       `json:"max_score"`
	Key         string      `json:"key,omitempty"`
	Consistency Consistency `json:"consistency"`
}

func (q ScanQuery) Matches(r Row) bool {
	if q.Key != "" && r.Key != q.Key {
		return false
	}
	return r.Score >= q.MinScore && r.Score < q.MaxScore
}
