package types

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// type of FSM command
type CommandType uint

const (
	CommandTypeCreateTable CommandType = iota + 1
	CommandTypePutRow
)

// interface all FSM commands implement
type Command interface {
	Type() CommandType
}

// registers a table
type CreateTableCmd struct {
	Table TableInfo
}

func (c CreateTableCmd) Type() CommandType { return CommandTypeCreateTable }

// conditional row write
// NewVersion is stamped by the leader so every replica assigns the same token
type PutRowCmd struct {
	TableID    string
	Request    PutRequest
	NewVersion string
}

func (c PutRowCmd) Type() CommandType { return CommandTypePutRow }

// field numbers of the log entry encoding
const (
	fieldType         protowire.Number = 1
	fieldTableID      protowire.Number = 2
	fieldTableName    protowire.Number = 3
	fieldTableScope   protowire.Number = 4
	fieldKey          protowire.Number = 5
	fieldScore        protowire.Number = 6
	fieldOwner        protowire.Number = 7
	fieldBody         protowire.Number = 8
	fieldMode         protowire.Number = 9
	fieldMatchVersion protowire.Number = 10
	fieldReturnRow    protowire.Number = 11
	fieldNewVersion   protowire.Number = 12
)

// serializes a command into a raft log entry
// optional fields (owner, body) are only emitted when present so presence survives the round trip
func EncodeCommand(cmd Command) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cmd.Type()))

	switch c := cmd.(type) {
	case CreateTableCmd:
		b = appendString(b, fieldTableID, c.Table.ID)
		b = appendString(b, fieldTableName, c.Table.Name)
		b = appendString(b, fieldTableScope, c.Table.Scope)
	case PutRowCmd:
		req := c.Request
		b = appendString(b, fieldTableID, c.TableID)
		b = appendString(b, fieldKey, req.Value.Key)
		b = protowire.AppendTag(b, fieldScore, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(req.Value.Score))
		if req.Value.Owner != nil {
			b = protowire.AppendTag(b, fieldOwner, protowire.BytesType)
			b = protowire.AppendString(b, *req.Value.Owner)
		}
		if req.Value.Body != nil {
			b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
			b = protowire.AppendBytes(b, req.Value.Body)
		}
		b = protowire.AppendTag(b, fieldMode, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(req.Mode))
		b = appendString(b, fieldMatchVersion, req.MatchVersion)
		if req.ReturnRow {
			b = protowire.AppendTag(b, fieldReturnRow, protowire.VarintType)
			b = protowire.AppendVarint(b, 1)
		}
		b = appendString(b, fieldNewVersion, c.NewVersion)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return b, nil
}

// empty strings are skipped, the decoder treats a missing string as ""
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// parses a raft log entry back into a command
func DecodeCommand(data []byte) (Command, error) {
	var (
		typ   CommandType
		table TableInfo
		put   PutRowCmd
	)

	for len(data) > 0 {
		num, wtyp, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("decode command tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch wtyp {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("decode command field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldType:
				typ = CommandType(v)
			case fieldScore:
				put.Request.Value.Score = protowire.DecodeZigZag(v)
			case fieldMode:
				put.Request.Mode = PutMode(v)
			case fieldReturnRow:
				put.Request.ReturnRow = v != 0
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("decode command field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldTableID:
				table.ID = string(v)
				put.TableID = string(v)
			case fieldTableName:
				table.Name = string(v)
			case fieldTableScope:
				table.Scope = string(v)
			case fieldKey:
				put.Request.Value.Key = string(v)
			case fieldOwner:
				owner := string(v)
				put.Request.Value.Owner = &owner
			case fieldBody:
				put.Request.Value.Body = append(json.RawMessage{}, v...)
			case fieldMatchVersion:
				put.Request.MatchVersion = string(v)
			case fieldNewVersion:
				put.NewVersion = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, wtyp, data)
			if n < 0 {
				return nil, fmt.Errorf("decode command field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	switch typ {
	case CommandTypeCreateTable:
		return CreateTableCmd{Table: table}, nil
	case CommandTypePutRow:
		return put, nil
	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnknownCommand, typ)
	}
}
