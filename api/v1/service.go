package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "rowlock.v1.TableService"

const (
	TableService_GetTable_FullMethodName    = "/" + ServiceName + "/GetTable"
	TableService_CreateTable_FullMethodName = "/" + ServiceName + "/CreateTable"
	TableService_GetRow_FullMethodName      = "/" + ServiceName + "/GetRow"
	TableService_PutRow_FullMethodName      = "/" + ServiceName + "/PutRow"
	TableService_Scan_FullMethodName        = "/" + ServiceName + "/Scan"
)

// TableServiceServer is the server API for the table service.
type TableServiceServer interface {
	GetTable(context.Context, *GetTableRequest) (*GetTableResponse, error)
	CreateTable(context.Context, *CreateTableRequest) (*CreateTableResponse, error)
	GetRow(context.Context, *GetRowRequest) (*GetRowResponse, error)
	PutRow(context.Context, *PutRowRequest) (*PutRowResponse, error)
	Scan(context.Context, *ScanRequest) (*ScanResponse, error)
}

// UnimplementedTableServiceServer can be embedded to have forward compatible implementations.
type UnimplementedTableServiceServer struct{}

func (UnimplementedTableServiceServer) GetTable(context.Context, *GetTableRequest) (*GetTableResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTable not implemented")
}
func (UnimplementedTableServiceServer) CreateTable(context.Context, *CreateTableRequest) (*CreateTableResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateTable not implemented")
}
func (UnimplementedTableServiceServer) GetRow(context.Context, *GetRowRequest) (*GetRowResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetRow not implemented")
}
func (UnimplementedTableServiceServer) PutRow(context.Context, *PutRowRequest) (*PutRowResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PutRow not implemented")
}
func (UnimplementedTableServiceServer) Scan(context.Context, *ScanRequest) (*ScanResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Scan not implemented")
}

func RegisterTableServiceServer(s grpc.ServiceRegistrar, srv TableServiceServer) {
	s.RegisterService(&TableService_ServiceDesc, srv)
}

// unaryHandler adapts a typed method to grpc's handler signature
func unaryHandler[Req, Resp any](fullMethod string, call func(TableServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TableServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TableServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var TableService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TableServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetTable",
			Handler:    unaryHandler(TableService_GetTable_FullMethodName, TableServiceServer.GetTable),
		},
		{
			MethodName: "CreateTable",
			Handler:    unaryHandler(TableService_CreateTable_FullMethodName, TableServiceServer.CreateTable),
		},
		{
			MethodName: "GetRow",
			Handler:    unaryHandler(TableService_GetRow_FullMethodName, TableServiceServer.GetRow),
		},
		{
			MethodName: "PutRow",
			Handler:    unaryHandler(TableService_PutRow_FullMethodName, TableServiceServer.PutRow),
		},
		{
			MethodName: "Scan",
			Handler:    unaryHandler(TableService_Scan_FullMethodName, TableServiceServer.Scan),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/v1/service.go",
}

// TableServiceClient is the client API for the table service.
type TableServiceClient interface {
	GetTable(ctx context.Context, in *GetTableRequest, opts ...grpc.CallOption) (*GetTableResponse, error)
	CreateTable(ctx context.Context, in *CreateTableRequest, opts ...grpc.CallOption) (*CreateTableResponse, error)
	GetRow(ctx context.Context, in *GetRowRequest, opts ...grpc.CallOption) (*GetRowResponse, error)
	PutRow(ctx context.Context, in *PutRowRequest, opts ...grpc.CallOption) (*PutRowResponse, error)
	Scan(ctx context.Context, in *ScanRequest, opts ...grpc.CallOption) (*ScanResponse, error)
}

type tableServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTableServiceClient(cc grpc.ClientConnInterface) TableServiceClient {
	return &tableServiceClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tableServiceClient) GetTable(ctx context.Context, in *GetTableRequest, opts ...grpc.CallOption) (*GetTableResponse, error) {
	return invoke[GetTableResponse](ctx, c.cc, TableService_GetTable_FullMethodName, in, opts)
}

func (c *tableServiceClient) CreateTable(ctx context.Context, in *CreateTableRequest, opts ...grpc.CallOption) (*CreateTableResponse, error) {
	return invoke[CreateTableResponse](ctx, c.cc, TableService_CreateTable_FullMethodName, in, opts)
}

func (c *tableServiceClient) GetRow(ctx context.Context, in *GetRowRequest, opts ...grpc.CallOption) (*GetRowResponse, error) {
	return invoke[GetRowResponse](ctx, c.cc, TableService_GetRow_FullMethodName, in, opts)
}

func (c *tableServiceClient) PutRow(ctx context.Context, in *PutRowRequest, opts ...grpc.CallOption) (*PutRowResponse, error) {
	return invoke[PutRowResponse](ctx, c.cc, TableService_PutRow_FullMethodName, in, opts)
}

func (c *tableServiceClient) Scan(ctx context.Context, in *ScanRequest, opts ...grpc.CallOption) (*ScanResponse, error) {
	return invoke[ScanResponse](ctx, c.cc, TableService_Scan_FullMethodName, in, opts)
}
