package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// httpStatus maps an engine error onto an HTTP status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, model.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// grpcCode maps an engine error onto a gRPC status code.
func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return codes.FailedPrecondition
	case errors.Is(err, model.ErrInvalidParameter):
		return codes.InvalidArgument
	case errors.Is(err, model.ErrConcurrentModification):
		return codes.Aborted
	case errors.Is(err, model.ErrArithmeticOverflow):
		return codes.OutOfRange
	default:
		return codes.Internal
	}
}

// toStatus converts an engine error into a gRPC status error. Internal
// errors are not echoed to the caller.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := grpcCode(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(code, err.Error())
}

// toStruct encodes v as JSON and decodes it into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}

// fromStruct decodes a protobuf Struct into v through its JSON form.
// A nil Struct leaves v untouched.
func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("convert request: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
