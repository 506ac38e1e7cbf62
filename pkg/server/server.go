package server

import (
	"context"

	"github.com/hashicorp/go-hclog"
	pb "github.com/pixperk/rowlock/api/v1"
	"github.com/pixperk/rowlock/pkg/metrics"
	"github.com/pixperk/rowlock/pkg/table"
	"github.com/pixperk/rowlock/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	pb.UnimplementedTableServiceServer
	backend table.Backend
	logger  hclog.Logger
}

// wraps a table backend (memory, bolt or a raft node) into a gRPC server
func NewServer(backend table.Backend, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		backend: backend,
		logger:  logger.Named("server"),
	}
}

func (s *Server) GetTable(ctx context.Context, req *pb.GetTableRequest) (*pb.GetTableResponse, error) {
	if req.NameOrID == "" {
		return nil, status.Error(codes.InvalidArgument, "name_or_id required")
	}

	info, err := s.backend.GetTable(ctx, req.NameOrID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &pb.GetTableResponse{Table: info}, nil
}

func (s *Server) CreateTable(ctx context.Context, req *pb.CreateTableRequest) (*pb.CreateTableResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name required")
	}

	info, err := s.backend.CreateTable(ctx, req.Name, req.Scope)
	if err != nil {
		return nil, toGRPCError(err)
	}
	s.logger.Info("table created", "name", info.Name, "id", info.ID)
	return &pb.CreateTableResponse{Table: info}, nil
}

func (s *Server) GetRow(ctx context.Context, req *pb.GetRowRequest) (*pb.GetRowResponse, error) {
	if req.TableID == "" || req.Key == "" {
		return nil, status.Error(codes.InvalidArgument, "table_id and key required")
	}

	row, version, err := s.backend.GetRow(ctx, req.TableID, req.Key)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &pb.GetRowResponse{Row: row, Version: version}, nil
}

func (s *Server) PutRow(ctx context.Context, req *pb.PutRowRequest) (*pb.PutRowResponse, error) {
	if req.TableID == "" {
		return nil, status.Error(codes.InvalidArgument, "table_id required")
	}

	mode := req.Request.Mode.String()
	res, err := s.backend.PutRow(ctx, req.TableID, req.Request)
	if err != nil {
		metrics.TablePutTotal.WithLabelValues(mode, "error").Inc()
		return nil, toGRPCError(err)
	}

	outcome := "miss"
	if res.Written() {
		outcome = "written"
	}
	metrics.TablePutTotal.WithLabelValues(mode, outcome).Inc()
	s.logger.Trace("put row", "table", req.TableID, "key", req.Request.Value.Key, "mode", mode, "outcome", outcome)

	return &pb.PutRowResponse{Result: res}, nil
}

func (s *Server) Scan(ctx context.Context, req *pb.ScanRequest) (*pb.ScanResponse, error) {
	if req.TableID == "" {
		return nil, status.Error(codes.InvalidArgument, "table_id required")
	}
	if req.Query.Consistency == types.Absolute {
		s.logger.Trace("absolute scan served from local state", "table", req.TableID)
	}

	keys, err := s.backend.Scan(ctx, req.TableID, req.Query)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &pb.ScanResponse{Keys: keys}, nil
}
