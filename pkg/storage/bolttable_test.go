package storage

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pixperk/rowlock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestTable(t *testing.T, dir string) (*BoltTable, types.TableInfo) {
	t.Helper()
	tbl, err := OpenBoltTable(dir, nil)
	require.NoError(t, err)

	info, err := tbl.GetTable(context.Background(), "locks")
	if err != nil {
		require.ErrorIs(t, err, types.ErrTableNotFound)
		info, err = tbl.CreateTable(context.Background(), "locks", "test")
		require.NoError(t, err)
	}
	return tbl, info
}

func TestBoltTableConditionalWrites(t *testing.T) {
	tbl, info := openTestTable(t, t.TempDir())
	defer tbl.Close()
	ctx := context.Background()

	created, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
		Value: types.Row{Key: "job-1", Body: json.RawMessage(`{"a":1}`)},
		Mode:  types.PutIfAbsent,
	})
	require.NoError(t, err)
	require.True(t, created.Written())

	again, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
		Value:     types.Row{Key: "job-1"},
		Mode:      types.PutIfAbsent,
		ReturnRow: true,
	})
	require.NoError(t, err)
	assert.False(t, again.Written())
	assert.Equal(t, created.Version, again.ExistingVersion)
	require.NotNil(t, again.ExistingValue)
	assert.JSONEq(t, `{"a":1}`, string(again.ExistingValue.Body))

	stale, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
		Value:        types.Row{Key: "job-1", Score: 99},
		Mode:         types.PutIfPresent,
		MatchVersion: "not-a-version",
	})
	require.NoError(t, err)
	assert.False(t, stale.Written())

	updated, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
		Value:        types.Row{Key: "job-1", Score: 99},
		Mode:         types.PutIfPresent,
		MatchVersion: created.Version,
	})
	require.NoError(t, err)
	require.True(t, updated.Written())

	row, version, err := tbl.GetRow(ctx, "locks", "job-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, updated.Version, version)
	assert.Equal(t, int64(99), row.Score)
	assert.JSONEq(t, `{"a":1}`, string(row.Body), "partial update keeps the body")
}

func TestBoltTableScan(t *testing.T) {
	tbl, info := openTestTable(t, t.TempDir())
	defer tbl.Close()
	ctx := context.Background()

	for key, score := range map[string]int64{"a": 0, "b": 1, "c": -1, "d": 5000} {
		_, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
			Value: types.Row{Key: key, Score: score},
			Mode:  types.PutIfAbsent,
		})
		require.NoError(t, err)
	}

	keys, err := tbl.Scan(ctx, info.ID, types.ScanQuery{MinScore: 0, MaxScore: 100})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	keys, err = tbl.Scan(ctx, info.ID, types.ScanQuery{MinScore: 0, MaxScore: 100, Key: "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	n, err := tbl.Rows()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBoltTablePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tbl, info := openTestTable(t, dir)
	res, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
		Value: types.Row{Key: "job-1", Score: 7},
		Mode:  types.PutIfAbsent,
	})
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	reopened, info2 := openTestTable(t, dir)
	defer reopened.Close()
	assert.Equal(t, info, info2)

	row, version, err := reopened.GetRow(ctx, info.ID, "job-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, res.Version, version)
	assert.Equal(t, int64(7), row.Score)
}

func TestBoltTableRace(t *testing.T) {
	tbl, info := openTestTable(t, t.TempDir())
	defer tbl.Close()
	ctx := context.Background()

	created, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
		Value: types.Row{Key: "job-1"},
		Mode:  types.PutIfAbsent,
	})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := tbl.PutRow(ctx, info.ID, types.PutRequest{
				Value:        types.Row{Key: "job-1", Score: int64(10 + i)},
				Mode:         types.PutIfPresent,
				MatchVersion: created.Version,
			})
			assert.NoError(t, err)
			if res.Written() {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestBoltTableErrors(t *testing.T) {
	tbl, _ := openTestTable(t, t.TempDir())
	defer tbl.Close()
	ctx := context.Background()

	_, err := tbl.CreateTable(ctx, "locks", "")
	assert.ErrorIs(t, err, types.ErrTableExists)

	_, _, err = tbl.GetRow(ctx, "missing", "k")
	assert.ErrorIs(t, err, types.ErrTableNotFound)

	_, err = tbl.PutRow(ctx, "locks", types.PutRequest{Mode: types.PutIfAbsent})
	assert.ErrorIs(t, err, types.ErrInvalidKey)
}
