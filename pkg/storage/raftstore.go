package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
)

// snapshots kept on disk
const snapshotRetain = 3

// RaftStorage wraps Raft's BoltDB storage components for a replicated lock table
// logstore : stores the Raft log entries (conditional row writes)
// stablestore : stores stable Raft metadata [stable = survives restarts]
// snapshotstore : stores snapshots of the table FSM
type RaftStorage struct {
	LogStore      raft.LogStore
	StableStore   raft.StableStore
	SnapshotStore raft.SnapshotStore

	db *raftboltdb.BoltStore
}

func NewRaftStorage(dataDir string, logger hclog.Logger) (*RaftStorage, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	//boltDB is used for both log and stable storage
	db, err := raftboltdb.New(raftboltdb.Options{
		Path: filepath.Join(dataDir, "raft.db"),
	})
	if err != nil {
		return nil, fmt.Errorf("open raft log: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(
		filepath.Join(dataDir, "snapshots"), snapshotRetain, logger.Named("snapshot"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	return &RaftStorage{
		LogStore:      db,
		StableStore:   db,
		SnapshotStore: snapshots,
		db:            db,
	}, nil
}

func (s *RaftStorage) Close() error {
	return s.db.Close()
}
