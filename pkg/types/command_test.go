package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// owner and body presence must survive the log encoding, nil means "keep"
func TestPutRowCmdKeepsFieldPresence(t *testing.T) {
	owner := ""
	cmd := PutRowCmd{
		TableID: "tbl-1",
		Request: PutRequest{
			Value:        Row{Key: "job-1", Score: ScoreDeleted, Owner: &owner},
			Mode:         PutIfPresent,
			MatchVersion: "v1",
		},
		NewVersion: "v2",
	}

	data, err := EncodeCommand(cmd)
	require.NoError(t, err)

	decoded, err := DecodeCommand(data)
	require.NoError(t, err)

	got, ok := decoded.(PutRowCmd)
	require.True(t, ok, "expected PutRowCmd")
	assert.Equal(t, int64(-1), got.Request.Value.Score)
	require.NotNil(t, got.Request.Value.Owner, "empty owner is still present")
	assert.Equal(t, "", *got.Request.Value.Owner)
	assert.Nil(t, got.Request.Value.Body, "absent body stays absent")
	assert.Equal(t, PutIfPresent, got.Request.Mode)
	assert.Equal(t, "v1", got.Request.MatchVersion)
	assert.Equal(t, "v2", got.NewVersion)
	assert.False(t, got.Request.ReturnRow)
}

func TestPutRowCmdBody(t *testing.T) {
	cmd := PutRowCmd{
		TableID: "tbl-1",
		Request: PutRequest{
			Value:     Row{Key: "job-1", Body: json.RawMessage(`{"shard":3}`)},
			Mode:      PutIfAbsent,
			ReturnRow: true,
		},
		NewVersion: "v1",
	}

	data, err := EncodeCommand(cmd)
	require.NoError(t, err)
	decoded, err := DecodeCommand(data)
	require.NoError(t, err)

	assert.Equal(t, cmd, decoded)
}

func TestCreateTableCmdEncoding(t *testing.T) {
	cmd := CreateTableCmd{Table: TableInfo{ID: "tbl-1", Name: "locks", Scope: "prod"}}

	data, err := EncodeCommand(cmd)
	require.NoError(t, err)
	decoded, err := DecodeCommand(data)
	require.NoError(t, err)

	assert.Equal(t, cmd, decoded)
}

func TestDecodeUnknownCommand(t *testing.T) {
	_, err := DecodeCommand([]byte{0x08, 0x63}) // type = 99
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeCommand([]byte{0x0a})
	assert.Error(t, err)
}
