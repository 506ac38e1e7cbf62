package fsm

import (
	"encoding/json"
	"io"
	"sync/atomic"

	"github.com/hashicorp/raft"
	"github.com/pixperk/rowlock/pkg/types"
)

// adapter to bridge Raft FSM with our internal FSM
type RaftFSM struct {
	fsm          *FSM
	appliedIndex atomic.Uint64
}

func NewRaftFSM() *RaftFSM {
	return &RaftFSM{
		fsm: NewFSM(),
	}
}

// returns the wrapped state machine for reads
func (rf *RaftFSM) GetFSM() *FSM {
	return rf.fsm
}

// last log index applied
func (rf *RaftFSM) AppliedIndex() uint64 {
	return rf.appliedIndex.Load()
}

func (rf *RaftFSM) Apply(log *raft.Log) any {
	defer rf.appliedIndex.Store(log.Index)

	cmd, err := types.DecodeCommand(log.Data)
	if err != nil {
		return err
	}

	result, err := rf.fsm.Apply(cmd)
	if err != nil {
		return err
	}

	return result
}

// create a snapshot of the current FSM state
func (rf *RaftFSM) Snapshot() (raft.FSMSnapshot, error) {
	rf.fsm.mu.RLock()
	defer rf.fsm.mu.RUnlock()

	snapshot := &fsmSnapshot{
		Tables: make(map[string]*tableState, len(rf.fsm.tables)),
	}

	//deep copy tables and rows
	for id, t := range rf.fsm.tables {
		rows := make(map[string]types.VersionedRow, len(t.Rows))
		for key, stored := range t.Rows {
			rows[key] = types.VersionedRow{Row: stored.Row.Clone(), Version: stored.Version}
		}
		snapshot.Tables[id] = &tableState{Info: t.Info, Rows: rows}
	}

	return snapshot, nil
}

// restores FSM state from snapshot
// when a node falls behind and needs to catch up or a new node joins
func (rf *RaftFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(snapshot).Decode(&snap); err != nil {
		return err
	}

	names := make(map[string]string, len(snap.Tables))
	for id, t := range snap.Tables {
		if t.Rows == nil {
			t.Rows = make(map[string]types.VersionedRow)
		}
		names[t.Info.Name] = id
	}

	rf.fsm.mu.Lock()
	defer rf.fsm.mu.Unlock()

	rf.fsm.tables = snap.Tables
	rf.fsm.names = names
	if rf.fsm.tables == nil {
		rf.fsm.tables = make(map[string]*tableState)
	}

	return nil
}

// point-in-time snapshot of FSM state
type fsmSnapshot struct {
	Tables map[string]*tableState `json:"tables"`
}

// persist snapshot to given sink
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel() //fail snapshot on error
		return err
	}
	return sink.Close() //mark snapshot as complete
}

// called when snapshot is no longer needed
// we have no resources to clean up here
func (s *fsmSnapshot) Release() {}
