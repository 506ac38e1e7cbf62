package table

import (
	"encoding/json"
	"testing"

	"github.com/pixperk/rowlock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestApplyPutIfAbsent(t *testing.T) {
	req := types.PutRequest{
		Value:     types.Row{Key: "job-1", Score: 0, Owner: strPtr("worker-a")},
		Mode:      types.PutIfAbsent,
		ReturnRow: true,
	}

	next, res, written := ApplyPut(nil, req, "v1")
	require.True(t, written)
	assert.Equal(t, "v1", res.Version)
	assert.Equal(t, "v1", next.Version)
	assert.Equal(t, "worker-a", *next.Row.Owner)

	// second create loses and sees the existing row
	_, res, written = ApplyPut(&next, req, "v2")
	assert.False(t, written)
	assert.False(t, res.Written())
	assert.Equal(t, "v1", res.ExistingVersion)
	require.NotNil(t, res.ExistingValue)
	assert.Equal(t, "job-1", res.ExistingValue.Key)
}

func TestApplyPutIfPresentMatchesVersion(t *testing.T) {
	current := &types.VersionedRow{
		Row:     types.Row{Key: "job-1", Score: 0, Owner: strPtr("worker-a"), Body: json.RawMessage(`{"n":1}`)},
		Version: "v1",
	}

	// stale token
	_, res, written := ApplyPut(current, types.PutRequest{
		Value:        types.Row{Key: "job-1", Score: 42},
		Mode:         types.PutIfPresent,
		MatchVersion: "v0",
	}, "v2")
	assert.False(t, written)
	assert.Equal(t, "v1", res.ExistingVersion)
	assert.Nil(t, res.ExistingValue, "row only returned on request")

	// matching token, partial write keeps owner and body
	next, res, written := ApplyPut(current, types.PutRequest{
		Value:        types.Row{Key: "job-1", Score: 42},
		Mode:         types.PutIfPresent,
		MatchVersion: "v1",
	}, "v2")
	require.True(t, written)
	assert.Equal(t, "v2", res.Version)
	assert.Equal(t, int64(42), next.Row.Score)
	assert.Equal(t, "worker-a", *next.Row.Owner)
	assert.JSONEq(t, `{"n":1}`, string(next.Row.Body))
}

func TestApplyPutIfPresentOnMissingRow(t *testing.T) {
	_, res, written := ApplyPut(nil, types.PutRequest{
		Value: types.Row{Key: "ghost", Score: 1},
		Mode:  types.PutIfPresent,
	}, "v1")

	assert.False(t, written)
	assert.Empty(t, res.ExistingVersion)
}

func TestApplyPutDoesNotAliasInput(t *testing.T) {
	body := json.RawMessage(`{"n":1}`)
	next, _, written := ApplyPut(nil, types.PutRequest{
		Value: types.Row{Key: "job-1", Body: body},
		Mode:  types.PutIfAbsent,
	}, "v1")
	require.True(t, written)

	body[2] = 'x'
	assert.JSONEq(t, `{"n":1}`, string(next.Row.Body))
}

func TestValidatePut(t *testing.T) {
	assert.ErrorIs(t, ValidatePut(types.PutRequest{Mode: types.PutIfAbsent}), types.ErrInvalidKey)
	assert.ErrorIs(t, ValidatePut(types.PutRequest{Value: types.Row{Key: "k"}}), types.ErrInvalidRequest)
	assert.NoError(t, ValidatePut(types.PutRequest{Value: types.Row{Key: "k"}, Mode: types.PutIfPresent}))
}
