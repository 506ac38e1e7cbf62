package raft

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixperk/rowlock/pkg/mutex"
	"github.com/pixperk/rowlock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNode(t *testing.T, cfg *Config) *Node {
	t.Helper()
	node, err := NewNode(cfg)
	require.NoError(t, err, "failed to create node")

	err = node.WaitForLeader(5 * time.Second)
	require.NoError(t, err, "no leader elected")
	require.Eventually(t, node.IsLeader, 5*time.Second, 50*time.Millisecond, "single node should become leader")
	return node
}

// TestSingleNodeTable tests table operations through the raft log
func TestSingleNodeTable(t *testing.T) {
	node := startNode(t, &Config{
		NodeID:    uuid.New(),
		BindAddr:  "127.0.0.1:0", // 0 = pick random available port
		DataDir:   t.TempDir(),
		Bootstrap: true,
	})
	defer node.Shutdown()
	ctx := context.Background()

	info, err := node.CreateTable(ctx, "locks", "test")
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)

	_, err = node.CreateTable(ctx, "locks", "test")
	assert.ErrorIs(t, err, types.ErrTableExists)

	created, err := node.PutRow(ctx, info.ID, types.PutRequest{
		Value: types.Row{Key: "job-1"},
		Mode:  types.PutIfAbsent,
	})
	require.NoError(t, err)
	require.True(t, created.Written())

	row, version, err := node.GetRow(ctx, "locks", "job-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, created.Version, version)

	stale, err := node.PutRow(ctx, info.ID, types.PutRequest{
		Value:        types.Row{Key: "job-1", Score: 5},
		Mode:         types.PutIfPresent,
		MatchVersion: "bogus",
	})
	require.NoError(t, err)
	assert.False(t, stale.Written())
	assert.Equal(t, created.Version, stale.ExistingVersion)

	keys, err := node.Scan(ctx, info.ID, types.ScanQuery{MinScore: 0, MaxScore: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, keys)

	stats := node.Stats()
	assert.Equal(t, 1, stats.Tables)
	assert.Equal(t, 1, stats.Rows)
}

// TestMutexOverRaft tests the lock protocol against a replicated table
func TestMutexOverRaft(t *testing.T) {
	node := startNode(t, &Config{
		NodeID:    uuid.New(),
		BindAddr:  "127.0.0.1:0",
		DataDir:   t.TempDir(),
		Bootstrap: true,
	})
	defer node.Shutdown()
	ctx := context.Background()

	_, err := node.CreateTable(ctx, "locks", "")
	require.NoError(t, err)

	m, err := mutex.New(ctx, node, mutex.Config{Table: "locks", Owner: "worker-a"})
	require.NoError(t, err)

	_, err = m.Create(ctx, "job-1", mutex.CreateOptions{})
	require.NoError(t, err)

	h, err := m.Acquire(ctx, mutex.AcquireOptions{LockID: "job-1", Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.NotNil(t, h)

	again, err := m.Acquire(ctx, mutex.AcquireOptions{LockID: "job-1", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.Nil(t, again)

	released, err := m.Release(ctx, h, mutex.WriteOptions{})
	require.NoError(t, err)
	require.NotNil(t, released)

	h, err = m.Acquire(ctx, mutex.AcquireOptions{LockID: "job-1", Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.NotNil(t, h)
}

// TestSnapshotAndRestore tests that rows and versions survive a restart from snapshot
func TestSnapshotAndRestore(t *testing.T) {
	cfg := &Config{
		NodeID:    uuid.New(),
		BindAddr:  "127.0.0.1:0",
		DataDir:   t.TempDir(),
		Bootstrap: true,
	}
	node := startNode(t, cfg)
	ctx := context.Background()

	info, err := node.CreateTable(ctx, "locks", "")
	require.NoError(t, err)

	versions := map[string]string{}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("job-%d", i)
		res, err := node.PutRow(ctx, info.ID, types.PutRequest{
			Value: types.Row{Key: key, Score: int64(i)},
			Mode:  types.PutIfAbsent,
		})
		require.NoError(t, err)
		versions[key] = res.Version
	}

	require.NoError(t, node.Snapshot(), "snapshot should succeed")
	require.NoError(t, node.Shutdown())

	// restart on the same data dir, bootstrap again is a no-op
	cfg.BindAddr = "127.0.0.1:0"
	node2 := startNode(t, cfg)
	defer node2.Shutdown()

	assert.Equal(t, 10, node2.Stats().Rows, "rows should be restored")
	for key, version := range versions {
		_, got, err := node2.GetRow(ctx, info.ID, key)
		require.NoError(t, err)
		assert.Equal(t, version, got, "version of %s", key)
	}
}
