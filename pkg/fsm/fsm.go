package fsm

import (
	"fmt"
	"sync"

	"github.com/pixperk/rowlock/pkg/table"
	"github.com/pixperk/rowlock/pkg/types"
)

// replicated lock table state
// critical :
// - every replica must reach the same row and version for the same log, so
//   versions come from the command, never generated here
// - a put is decided by table.ApplyPut, the same rule the other backends use
type FSM struct {
	mu sync.RWMutex

	tables map[string]*tableState // table ID -> table
	names  map[string]string      // table name -> table ID
}

type tableState struct {
	Info types.TableInfo               `json:"info"`
	Rows map[string]types.VersionedRow `json:"rows"`
}

func NewFSM() *FSM {
	return &FSM{
		tables: make(map[string]*tableState),
		names:  make(map[string]string),
	}
}

// applies a command to the FSM and returns the result or error
func (f *FSM) Apply(cmd types.Command) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch c := cmd.(type) {
	case types.CreateTableCmd:
		return f.applyCreateTable(c)
	case types.PutRowCmd:
		return f.applyPutRow(c)
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnknownCommand, cmd)
	}
}

// returned when a table is created
type CreateTableResponse struct {
	Table types.TableInfo
}

func (f *FSM) applyCreateTable(cmd types.CreateTableCmd) (any, error) {
	if cmd.Table.ID == "" || cmd.Table.Name == "" {
		return nil, fmt.Errorf("%w: table id and name required", types.ErrInvalidRequest)
	}
	if _, exists := f.names[cmd.Table.Name]; exists {
		return nil, fmt.Errorf("%w: %s", types.ErrTableExists, cmd.Table.Name)
	}

	f.tables[cmd.Table.ID] = &tableState{
		Info: cmd.Table,
		Rows: make(map[string]types.VersionedRow),
	}
	f.names[cmd.Table.Name] = cmd.Table.ID

	return CreateTableResponse{Table: cmd.Table}, nil
}

// returned for every put, written or not
type PutRowResponse struct {
	Result types.PutResult
}

func (f *FSM) applyPutRow(cmd types.PutRowCmd) (any, error) {
	if err := table.ValidatePut(cmd.Request); err != nil {
		return nil, err
	}
	t, err := f.lookup(cmd.TableID)
	if err != nil {
		return nil, err
	}

	var current *types.VersionedRow
	if stored, ok := t.Rows[cmd.Request.Value.Key]; ok {
		current = &stored
	}

	next, res, written := table.ApplyPut(current, cmd.Request, cmd.NewVersion)
	if written {
		t.Rows[cmd.Request.Value.Key] = next
	}

	return PutRowResponse{Result: res}, nil
}

// accepts a table ID or name, caller holds the lock
func (f *FSM) lookup(nameOrID string) (*tableState, error) {
	if t, ok := f.tables[nameOrID]; ok {
		return t, nil
	}
	if id, ok := f.names[nameOrID]; ok {
		return f.tables[id], nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrTableNotFound, nameOrID)
}

// returns a table by name or ID
func (f *FSM) GetTable(nameOrID string) (types.TableInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t, err := f.lookup(nameOrID)
	if err != nil {
		return types.TableInfo{}, err
	}
	return t.Info, nil
}

// returns a copy of a row and its version, nil if absent
func (f *FSM) GetRow(tableID, key string) (*types.Row, string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t, err := f.lookup(tableID)
	if err != nil {
		return nil, "", err
	}
	stored, ok := t.Rows[key]
	if !ok {
		return nil, "", nil
	}
	row := stored.Row.Clone()
	return &row, stored.Version, nil
}

// returns the keys matching the query on this replica
func (f *FSM) Scan(tableID string, q types.ScanQuery) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t, err := f.lookup(tableID)
	if err != nil {
		return nil, err
	}

	var keys []string
	for key, stored := range t.Rows {
		if q.Matches(stored.Row) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// current fsm stats
type Stats struct {
	Tables int
	Rows   int
}

func (f *FSM) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stats := Stats{Tables: len(f.tables)}
	for _, t := range f.tables {
		stats.Rows += len(t.Rows)
	}
	return stats
}
