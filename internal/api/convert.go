package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/pipeline-rca/internal/utils"
)

// ToStruct converts a JSON-serialisable domain value into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("convert struct: %w", err)
	}
	return out, nil
}

// FromStruct decodes a protobuf Struct into a domain value using its JSON tags.
func FromStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return nil
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return &utils.MalformedInputError{Field: "request", Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &utils.MalformedInputError{Field: "request", Err: err}
	}
	return nil
}

// StatusFor maps domain error kinds onto gRPC status codes.
func StatusFor(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case utils.IsValidation(err), utils.IsMalformed(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case utils.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
