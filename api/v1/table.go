// Package v1 is the wire contract of the lock table service.
package v1

import "github.com/pixperk/rowlock/pkg/types"

type GetTableRequest struct {
	NameOrID string `json:"name_or_id"`
}

type GetTableResponse struct {
	Table types.TableInfo `json:"table"`
}

type CreateTableRequest struct {
	Name  string `json:"name"`
	Scope string `json:"scope,omitempty"`
}

type CreateTableResponse struct {
	Table types.TableInfo `json:"table"`
}

type GetRowRequest struct {
	TableID string `json:"table_id"`
	Key     string `json:"key"`
}

// Row is nil when the key does not exist
type GetRowResponse struct {
	Row     *types.Row `json:"row,omitempty"`
	Version string     `json:"version,omitempty"`
}

type PutRowRequest struct {
	TableID string           `json:"table_id"`
	Request types.PutRequest `json:"request"`
}

type PutRowResponse struct {
	Result types.PutResult `json:"result"`
}

type ScanRequest struct {
	TableID string          `json:"table_id"`
	Query   types.ScanQuery `json:"query"`
}

type ScanResponse struct {
	Keys []string `json:"keys"`
}
