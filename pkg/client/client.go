// Package client talks to a rowlock table server over gRPC.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	pb "github.com/pixperk/rowlock/api/v1"
	"github.com/pixperk/rowlock/pkg/server"
	"github.com/pixperk/rowlock/pkg/types"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const DefaultRequestTimeout = 5 * time.Second

type Config struct {
	Addr string

	// RequestTimeout bounds every call that carries no deadline of its own.
	RequestTimeout time.Duration

	// DialOptions are appended after the default insecure credentials.
	DialOptions []grpc.DialOption
}

// Client is a remote table. It satisfies table.Backend, so a mutex manager can
// run on top of it unchanged.
type Client struct {
	addr    string
	timeout time.Duration
	conn    *grpc.ClientConn
	client  pb.TableServiceClient
}

func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	return New(Config{Addr: addr, DialOptions: opts})
}

func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: server address required", types.ErrInvalidRequest)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &Client{
		addr:    cfg.Addr,
		timeout: cfg.RequestTimeout,
		conn:    conn,
		client:  pb.NewTableServiceClient(conn),
	}, nil
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) GetTable(ctx context.Context, nameOrID string) (types.TableInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.GetTable(ctx, &pb.GetTableRequest{NameOrID: nameOrID})
	if err != nil {
		return types.TableInfo{}, fromGRPCError(err)
	}
	return resp.Table, nil
}

func (c *Client) CreateTable(ctx context.Context, name, scope string) (types.TableInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.CreateTable(ctx, &pb.CreateTableRequest{Name: name, Scope: scope})
	if err != nil {
		return types.TableInfo{}, fromGRPCError(err)
	}
	return resp.Table, nil
}

func (c *Client) GetRow(ctx context.Context, tableID, key string) (*types.Row, string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.GetRow(ctx, &pb.GetRowRequest{TableID: tableID, Key: key})
	if err != nil {
		return nil, "", fromGRPCError(err)
	}
	return resp.Row, resp.Version, nil
}

func (c *Client) PutRow(ctx context.Context, tableID string, req types.PutRequest) (types.PutResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.PutRow(ctx, &pb.PutRowRequest{TableID: tableID, Request: req})
	if err != nil {
		return types.PutResult{}, fromGRPCError(err)
	}
	return resp.Result, nil
}

func (c *Client) Scan(ctx context.Context, tableID string, q types.ScanQuery) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Scan(ctx, &pb.ScanRequest{TableID: tableID, Query: q})
	if err != nil {
		return nil, fromGRPCError(err)
	}
	return resp.Keys, nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// maps status errors back onto the domain sentinels so callers can use errors.Is
func fromGRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if ei, ok := d.(*errdetails.ErrorInfo); ok && ei.GetDomain() == server.ErrorDomain {
			info = ei
			break
		}
	}

	if info != nil {
		switch info.GetReason() {
		case server.ReasonNotLeader:
			return &types.NotLeaderError{Leader: info.GetMetadata()[server.MetadataLeader]}
		case server.ReasonTableNotFound:
			return fmt.Errorf("%w: %s", types.ErrTableNotFound, st.Message())
		case server.ReasonTableExists:
			return fmt.Errorf("%w: %s", types.ErrTableExists, st.Message())
		case server.ReasonInvalid:
			return fmt.Errorf("%w: %s", types.ErrInvalidRequest, st.Message())
		}
	}

	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", types.ErrTableNotFound, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", types.ErrTableExists, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", types.ErrInvalidRequest, st.Message())
	case codes.DeadlineExceeded:
		return errors.Join(context.DeadlineExceeded, err)
	case codes.Canceled:
		return errors.Join(context.Canceled, err)
	}
	return err
}
