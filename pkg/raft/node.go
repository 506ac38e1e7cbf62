package raft

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/pixperk/rowlock/pkg/fsm"
	"github.com/pixperk/rowlock/pkg/metrics"
	"github.com/pixperk/rowlock/pkg/storage"
	"github.com/pixperk/rowlock/pkg/types"
)

const defaultApplyTimeout = 5 * time.Second

// wraps a raft inst with the table fsm and serves it as a lock table
// writes go through the log and must hit the leader
// reads are answered from the local replica, which is exactly the eventual
// consistency lock scans ask for
type Node struct {
	raft      *raft.Raft
	fsm       *fsm.FSM
	raftFSM   *fsm.RaftFSM
	storage   *storage.RaftStorage
	transport *raft.NetworkTransport
	cfg       *Config
	logger    hclog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

type Config struct {
	NodeID        uuid.UUID     //unique ID for this node
	BindAddr      string        //net addr to bind Raft communication
	AdvertiseAddr string        //addr peers reach us on, defaults to the bound addr
	DataDir       string        //data directory for Raft storage
	Bootstrap     bool          //if this is the first node in the cluster
	ApplyTimeout  time.Duration //max time to wait for a write to commit
	Logger        hclog.Logger
}

func NewNode(cfg *Config) (*Node, error) {
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = defaultApplyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	raftFSM := fsm.NewRaftFSM()

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID.String())
	raftCfg.Logger = logger.Named("raft")

	raftCfg.HeartbeatTimeout = 1000 * time.Millisecond
	raftCfg.ElectionTimeout = 1000 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond //time to wait before committing entries
	raftCfg.SnapshotThreshold = 8192              // snapshot after 8K log entries

	raftStorage, err := storage.NewRaftStorage(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stores: %w", err)
	}

	//tcp transport for inter-node communication
	var advertise net.Addr
	if cfg.AdvertiseAddr != "" {
		advertise, err = net.ResolveTCPAddr("tcp", cfg.AdvertiseAddr)
		if err != nil {
			raftStorage.Close()
			return nil, fmt.Errorf("failed to resolve advertise addr: %w", err)
		}
	}

	transport, err := raft.NewTCPTransportWithLogger(cfg.BindAddr, advertise, 3, 10*time.Second, logger.Named("transport"))
	if err != nil {
		raftStorage.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, raftFSM, raftStorage.LogStore, raftStorage.StableStore, raftStorage.SnapshotStore, transport)
	if err != nil {
		transport.Close()
		raftStorage.Close()
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	//bootstrap if needed
	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raftCfg.LocalID,
					Address: transport.LocalAddr(),
				},
			},
		}

		//already bootstrapped on restart, not an error for us
		if err := r.BootstrapCluster(configuration).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			r.Shutdown()
			transport.Close()
			raftStorage.Close()
			return nil, fmt.Errorf("failed to bootstrap: %w", err)
		}
	}

	n := &Node{
		raft:      r,
		fsm:       raftFSM.GetFSM(),
		raftFSM:   raftFSM,
		storage:   raftStorage,
		transport: transport,
		cfg:       cfg,
		logger:    logger.Named("node"),
		stopCh:    make(chan struct{}),
	}
	go n.observe()

	return n, nil
}

// apply a command to the Raft cluster
func (n *Node) Apply(cmd types.Command) (any, error) {
	if !n.IsLeader() {
		return nil, &types.NotLeaderError{Leader: n.GetLeader()}
	}

	data, err := types.EncodeCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	//replicate to cluster via Raft
	future := n.raft.Apply(data, n.cfg.ApplyTimeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, &types.NotLeaderError{Leader: n.GetLeader()}
		}
		return nil, fmt.Errorf("failed to apply command: %w", err)
	}

	//the fsm hands back errors as the response
	if err, ok := future.Response().(error); ok {
		return nil, err
	}
	return future.Response(), nil
}

// table.Backend

func (n *Node) CreateTable(_ context.Context, name, scope string) (types.TableInfo, error) {
	result, err := n.Apply(types.CreateTableCmd{Table: types.TableInfo{
		ID:    "tbl-" + uuid.NewString(),
		Name:  name,
		Scope: scope,
	}})
	if err != nil {
		return types.TableInfo{}, err
	}
	return result.(fsm.CreateTableResponse).Table, nil
}

func (n *Node) GetTable(_ context.Context, nameOrID string) (types.TableInfo, error) {
	return n.fsm.GetTable(nameOrID)
}

func (n *Node) GetRow(_ context.Context, tableID, key string) (*types.Row, string, error) {
	return n.fsm.GetRow(tableID, key)
}

func (n *Node) PutRow(_ context.Context, tableID string, req types.PutRequest) (types.PutResult, error) {
	result, err := n.Apply(types.PutRowCmd{
		TableID:    tableID,
		Request:    req,
		NewVersion: uuid.NewString(),
	})
	if err != nil {
		return types.PutResult{}, err
	}
	return result.(fsm.PutRowResponse).Result, nil
}

func (n *Node) Scan(_ context.Context, tableID string, q types.ScanQuery) ([]string, error) {
	return n.fsm.Scan(tableID, q)
}

// adds a voter to the cluster, leader only
func (n *Node) Join(nodeID, addr string) error {
	if !n.IsLeader() {
		return &types.NotLeaderError{Leader: n.GetLeader()}
	}
	future := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, n.cfg.ApplyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter %s: %w", nodeID, err)
	}
	n.logger.Info("node joined", "id", nodeID, "addr", addr)
	return nil
}

// returns true if this node is the leader
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// returns the leader's address
func (n *Node) GetLeader() string {
	leaderAddr, _ := n.raft.LeaderWithID()
	return string(leaderAddr)
}

// address peers use to reach this node
func (n *Node) Addr() string {
	return string(n.transport.LocalAddr())
}

func (n *Node) GetNodeID() uuid.UUID {
	return n.cfg.NodeID
}

func (n *Node) GetState() raft.RaftState {
	return n.raft.State()
}

// blocks until a leader is elected
func (n *Node) WaitForLeader(timeout time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timeoutCh := time.After(timeout)

	for {
		select {
		case <-timeoutCh:
			return fmt.Errorf("no leader elected within timeout")
		case <-ticker.C:
			if n.GetLeader() != "" {
				return nil
			}
		}
	}
}

// forces a snapshot of the fsm
func (n *Node) Snapshot() error {
	return n.raft.Snapshot().Error()
}

// returns FSM statistics
func (n *Node) Stats() fsm.Stats {
	return n.fsm.Stats()
}

// keeps the raft gauges current
func (n *Node) observe() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	wasLeader := false
	for {
		select {
		case <-ticker.C:
			leader := n.IsLeader()
			if leader != wasLeader {
				n.logger.Info("leadership changed", "leader", leader)
				wasLeader = leader
			}
			if leader {
				metrics.RaftIsLeader.Set(1)
			} else {
				metrics.RaftIsLeader.Set(0)
			}
			metrics.RaftAppliedIndex.Set(float64(n.raftFSM.AppliedIndex()))
			metrics.TableRows.Set(float64(n.fsm.Stats().Rows))
		case <-n.stopCh:
			return
		}
	}
}

// gracefully shuts down the Raft node
func (n *Node) Shutdown() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopCh)
		err = n.raft.Shutdown().Error()
		if cerr := n.transport.Close(); err == nil {
			err = cerr
		}
		if cerr := n.storage.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
