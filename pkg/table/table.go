// Package table defines the key-value table capability the mutex manager is built on,
// and the conditional write rules every backend shares.
package table

import (
	"context"

	"github.com/pixperk/rowlock/pkg/types"
)

// Store is the remote table as seen by a lock client.
//
// GetRow returns a nil row (and no error) when the key does not exist.
// PutRow never reports a lost race as an error: an unwritten PutResult is the answer.
// Scan returns the keys whose rows match the query, in no particular order.
type Store interface {
	GetTable(ctx context.Context, nameOrID string) (types.TableInfo, error)
	GetRow(ctx context.Context, tableID, key string) (*types.Row, string, error)
	PutRow(ctx context.Context, tableID string, req types.PutRequest) (types.PutResult, error)
	Scan(ctx context.Context, tableID string, q types.ScanQuery) ([]string, error)
}

// Provisioner creates tables. Not used by the lock protocol itself.
type Provisioner interface {
	CreateTable(ctx context.Context, name, scope string) (types.TableInfo, error)
}

// Backend is what a table server exposes.
type Backend interface {
	Store
	Provisioner
}
