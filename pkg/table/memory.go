package table

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/rowlock/pkg/types"
	"github.com/puzpuzpuz/xsync/v3"
)

// in-process table store
// each row lives in an xsync map and MapOf.Compute is the per-row atomic section,
// scans walk the map with Range and may miss concurrent writes (eventual)
type Memory struct {
	tables *xsync.MapOf[string, *memTable] // table ID -> table
	names  *xsync.MapOf[string, string]    // table name -> table ID
	logger hclog.Logger
}

type memTable struct {
	info types.TableInfo
	rows *xsync.MapOf[string, types.VersionedRow]
}

func NewMemory(logger hclog.Logger) *Memory {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Memory{
		tables: xsync.NewMapOf[string, *memTable](),
		names:  xsync.NewMapOf[string, string](),
		logger: logger.Named("memtable"),
	}
}

func (m *Memory) CreateTable(_ context.Context, name, scope string) (types.TableInfo, error) {
	if name == "" {
		return types.TableInfo{}, fmt.Errorf("%w: table name required", types.ErrInvalidRequest)
	}

	id := "tbl-" + uuid.NewString()
	if _, loaded := m.names.LoadOrStore(name, id); loaded {
		return types.TableInfo{}, fmt.Errorf("%w: %s", types.ErrTableExists, name)
	}

	info := types.TableInfo{ID: id, Name: name, Scope: scope}
	m.tables.Store(id, &memTable{
		info: info,
		rows: xsync.NewMapOf[string, types.VersionedRow](),
	})
	m.logger.Debug("table created", "name", name, "id", id)
	return info, nil
}

func (m *Memory) GetTable(_ context.Context, nameOrID string) (types.TableInfo, error) {
	t, err := m.lookup(nameOrID)
	if err != nil {
		return types.TableInfo{}, err
	}
	return t.info, nil
}

// accepts a table ID or a table name
func (m *Memory) lookup(nameOrID string) (*memTable, error) {
	if t, ok := m.tables.Load(nameOrID); ok {
		return t, nil
	}
	if id, ok := m.names.Load(nameOrID); ok {
		if t, ok := m.tables.Load(id); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, nameOrID)
}

func (m *Memory) GetRow(_ context.Context, tableID, key string) (*types.Row, string, error) {
	t, err := m.lookup(tableID)
	if err != nil {
		return nil, "", err
	}
	stored, ok := t.rows.Load(key)
	if !ok {
		return nil, "", nil
	}
	row := stored.Row.Clone()
	return &row, stored.Version, nil
}

func (m *Memory) PutRow(_ context.Context, tableID string, req types.PutRequest) (types.PutResult, error) {
	if err := ValidatePut(req); err != nil {
		return types.PutResult{}, err
	}
	t, err := m.lookup(tableID)
	if err != nil {
		return types.PutResult{}, err
	}

	var res types.PutResult
	t.rows.Compute(req.Value.Key, func(old types.VersionedRow, loaded bool) (types.VersionedRow, bool) {
		var current *types.VersionedRow
		if loaded {
			current = &old
		}
		next, r, written := ApplyPut(current, req, uuid.NewString())
		res = r
		if !written {
			// keep whatever was there, or store nothing
			return old, !loaded
		}
		return next, false
	})
	return res, nil
}

func (m *Memory) Scan(_ context.Context, tableID string, q types.ScanQuery) ([]string, error) {
	t, err := m.lookup(tableID)
	if err != nil {
		return nil, err
	}

	if q.Key != "" {
		stored, ok := t.rows.Load(q.Key)
		if ok && q.Matches(stored.Row) {
			return []string{q.Key}, nil
		}
		return nil, nil
	}

	var keys []string
	t.rows.Range(func(key string, stored types.VersionedRow) bool {
		if q.Matches(stored.Row) {
			keys = append(keys, key)
		}
		return true
	})
	return keys, nil
}
