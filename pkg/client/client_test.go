package client

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	pb "github.com/pixperk/rowlock/api/v1"
	"github.com/pixperk/rowlock/pkg/mutex"
	"github.com/pixperk/rowlock/pkg/server"
	"github.com/pixperk/rowlock/pkg/table"
	"github.com/pixperk/rowlock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// starts a table server on an in-memory listener
func startServer(t *testing.T, backend table.Backend) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterTableServiceServer(srv, server.NewServer(backend, hclog.NewNullLogger()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestTableRoundTrip(t *testing.T) {
	c := startServer(t, table.NewMemory(nil))
	ctx := context.Background()

	info, err := c.CreateTable(ctx, "locks", "test")
	require.NoError(t, err)
	assert.Equal(t, "locks", info.Name)

	byName, err := c.GetTable(ctx, "locks")
	require.NoError(t, err)
	assert.Equal(t, info.ID, byName.ID)

	row, version, err := c.GetRow(ctx, info.ID, "job-1")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Empty(t, version)

	owner := "worker-a"
	res, err := c.PutRow(ctx, info.ID, types.PutRequest{
		Value: types.Row{Key: "job-1", Owner: &owner, Body: json.RawMessage(`{"n":1}`)},
		Mode:  types.PutIfAbsent,
	})
	require.NoError(t, err)
	require.True(t, res.Written())

	row, version, err = c.GetRow(ctx, info.ID, "job-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, res.Version, version)
	require.NotNil(t, row.Owner)
	assert.Equal(t, "worker-a", *row.Owner)
	assert.JSONEq(t, `{"n":1}`, string(row.Body))

	// lost race is an answer, not an error
	res, err = c.PutRow(ctx, info.ID, types.PutRequest{
		Value:     types.Row{Key: "job-1"},
		Mode:      types.PutIfAbsent,
		ReturnRow: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Written())
	assert.Equal(t, version, res.ExistingVersion)

	keys, err := c.Scan(ctx, info.ID, types.ScanQuery{MinScore: 0, MaxScore: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, keys)
}

func TestErrorsMapToSentinels(t *testing.T) {
	c := startServer(t, table.NewMemory(nil))
	ctx := context.Background()

	_, err := c.GetTable(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrTableNotFound)

	_, err = c.CreateTable(ctx, "locks", "")
	require.NoError(t, err)
	_, err = c.CreateTable(ctx, "locks", "")
	assert.ErrorIs(t, err, types.ErrTableExists)

	_, err = c.CreateTable(ctx, "", "")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

type notLeaderBackend struct {
	table.Backend
}

func (notLeaderBackend) GetTable(context.Context, string) (types.TableInfo, error) {
	return types.TableInfo{}, &types.NotLeaderError{Leader: "10.0.0.2:7000"}
}

func TestNotLeaderCarriesLeaderAddress(t *testing.T) {
	c := startServer(t, notLeaderBackend{table.NewMemory(nil)})

	_, err := c.GetTable(context.Background(), "locks")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotLeader)

	var nl *types.NotLeaderError
	require.ErrorAs(t, err, &nl)
	assert.Equal(t, "10.0.0.2:7000", nl.Leader)
}

func TestMutexOverGRPC(t *testing.T) {
	backend := table.NewMemory(nil)
	_, err := backend.CreateTable(context.Background(), "locks", "")
	require.NoError(t, err)

	c := startServer(t, backend)
	ctx := context.Background()

	mgr, err := c.Mutexes(ctx, mutex.Config{Table: "locks", Owner: "worker-a"})
	require.NoError(t, err)

	created, err := mgr.Create(ctx, "job-1", mutex.CreateOptions{})
	require.NoError(t, err)
	require.NotNil(t, created)

	h, err := mgr.Acquire(ctx, mutex.AcquireOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "job-1", h.Key)

	none, err := mgr.Acquire(ctx, mutex.AcquireOptions{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	assert.Nil(t, none, "held lock must not be handed out twice")

	released, err := mgr.Release(ctx, h, mutex.WriteOptions{})
	require.NoError(t, err)
	require.NotNil(t, released)

	stale, err := mgr.Update(ctx, h, mutex.WriteOptions{})
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestMutualExclusionOverGRPC(t *testing.T) {
	backend := table.NewMemory(nil)
	_, err := backend.CreateTable(context.Background(), "locks", "")
	require.NoError(t, err)

	c := startServer(t, backend)
	ctx := context.Background()

	setup, err := c.Mutexes(ctx, mutex.Config{Table: "locks"})
	require.NoError(t, err)
	_, err = setup.Create(ctx, "shared", mutex.CreateOptions{})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr, err := c.Mutexes(ctx, mutex.Config{Table: "locks"})
			if !assert.NoError(t, err) {
				return
			}
			h, err := mgr.Acquire(ctx, mutex.AcquireOptions{LockID: "shared", Timeout: 200 * time.Millisecond})
			assert.NoError(t, err)
			if h != nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestDialRequiresAddress(t *testing.T) {
	_, _, err := Dial(context.Background(), "", mutex.Config{Table: "locks"})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}
