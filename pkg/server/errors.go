package server

import (
	"errors"

	"github.com/pixperk/rowlock/pkg/types"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errdetails domain and reasons attached to table service errors
const (
	ErrorDomain = "rowlock"

	ReasonNotLeader     = "NOT_LEADER"
	ReasonTableNotFound = "TABLE_NOT_FOUND"
	ReasonTableExists   = "TABLE_EXISTS"
	ReasonInvalid       = "INVALID_REQUEST"

	// metadata key carrying the leader address
	MetadataLeader = "leader"
)

// converts domain errors to gRPC status errors
// lost races never get here: they are regular responses
func toGRPCError(err error) error {
	if err == nil {
		return nil
	}

	var notLeader *types.NotLeaderError
	switch {
	case errors.As(err, &notLeader):
		return withReason(codes.Unavailable, err, ReasonNotLeader, map[string]string{
			MetadataLeader: notLeader.Leader,
		})

	case errors.Is(err, types.ErrTableNotFound):
		return withReason(codes.NotFound, err, ReasonTableNotFound, nil)

	case errors.Is(err, types.ErrTableExists):
		return withReason(codes.AlreadyExists, err, ReasonTableExists, nil)

	case errors.Is(err, types.ErrInvalidKey), errors.Is(err, types.ErrInvalidRequest):
		return withReason(codes.InvalidArgument, err, ReasonInvalid, nil)

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func withReason(code codes.Code, err error, reason string, meta map[string]string) error {
	st := status.New(code, err.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   reason,
		Domain:   ErrorDomain,
		Metadata: meta,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}
