// Package rpcerr defines the closed, stable error-code taxonomy surfaced
// to RPC clients, and the Error type that carries a code plus the
// request id it occurred under.
package rpcerr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Code is one of the fixed RPC error codes. The numeric values and their
// meaning are part of the wire contract and must never be renumbered.
type Code uint8

const (
	InvalidRpcVersionError Code = 100
	InvalidRpcMethodError  Code = 101
	JsonDecodeError        Code = 102
	InternalError          Code = 103
	FetchFailed            Code = 104
	NotFound               Code = 105
	ModerationFailed       Code = 106
	UnsupportedImageType   Code = 107
	UnsupportedUriScheme   Code = 108
	InvalidUri             Code = 109
	InvalidOrBlockedHost   Code = 110
	TimedOut               Code = 111
	ImageResizeError       Code = 112
	RpcPayloadTooBigError  Code = 113
)

var reasons = map[Code]string{
	InvalidRpcVersionError: "Invalid RPC version",
	InvalidRpcMethodError:  "Invalid RPC method",
	JsonDecodeError:        "Invalid JSON supplied",
	InternalError:          "Internal Error",
	FetchFailed:            "Fetch Failed",
	NotFound:               "Image not found",
	ModerationFailed:       "Image moderation failed",
	UnsupportedImageType:   "Image type unsupported",
	UnsupportedUriScheme:   "Uri scheme unsupported",
	InvalidUri:             "Invalid Uri",
	InvalidOrBlockedHost:   "Invalid or blocked host",
	TimedOut:               "Timed out",
	ImageResizeError:       "Image resize failed",
	RpcPayloadTooBigError:  "RPC payload too big",
}

// Reason returns the stable human-readable reason string for c.
func (c Code) Reason() string {
	if r, ok := reasons[c]; ok {
		return r
	}
	return "Unknown error"
}

// Error is a classified RPC-facing error, always tagged with the
// request id it occurred under so a client can correlate it with logs.
type Error struct {
	Code      Code
	RequestID uuid.UUID
	Cause     error
}

func New(code Code, requestID uuid.UUID, cause error) *Error {
	return &Error{Code: code, RequestID: requestID, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (code=%d, request_id=%s): %v", e.Code.Reason(), e.Code, e.RequestID, e.Cause)
	}
	return fmt.Sprintf("%s (code=%d, request_id=%s)", e.Code.Reason(), e.Code, e.RequestID)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AsCode extracts the Code carried by err, falling back to InternalError
// when err is not (or does not wrap) an *Error.
func AsCode(err error) Code {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return InternalError
}
