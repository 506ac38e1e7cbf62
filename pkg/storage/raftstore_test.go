package storage

import (
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaftStorage(t *testing.T) {
	stores, err := NewRaftStorage(t.TempDir(), nil)
	require.NoError(t, err)
	defer stores.Close()

	assert.NotNil(t, stores.LogStore)
	assert.NotNil(t, stores.StableStore)
	assert.NotNil(t, stores.SnapshotStore)
}

func TestRaftLogStore(t *testing.T) {
	stores, err := NewRaftStorage(t.TempDir(), nil)
	require.NoError(t, err)
	defer stores.Close()

	log := &raft.Log{
		Index: 1,
		Term:  1,
		Type:  raft.LogCommand,
		Data:  []byte("put row"),
	}
	require.NoError(t, stores.LogStore.StoreLog(log))

	got := &raft.Log{}
	require.NoError(t, stores.LogStore.GetLog(1, got))
	assert.Equal(t, uint64(1), got.Index)
	assert.Equal(t, []byte("put row"), got.Data)
}

func TestRaftStoragePersistence(t *testing.T) {
	dir := t.TempDir()

	stores1, err := NewRaftStorage(dir, nil)
	require.NoError(t, err)
	require.NoError(t, stores1.StableStore.SetUint64([]byte("currentTerm"), 42))
	require.NoError(t, stores1.Close())

	stores2, err := NewRaftStorage(dir, nil)
	require.NoError(t, err)
	defer stores2.Close()

	term, err := stores2.StableStore.GetUint64([]byte("currentTerm"))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), term)
}
