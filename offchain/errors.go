package offchain

import (
	"errors"
	"fmt"
)

var (
	ErrDispatchMiss     = errors.New("method not found")
	ErrHandlerFault     = errors.New("handler fault")
	ErrInvalidParams    = errors.New("invalid params")
	ErrSelectorConflict = errors.New("selector already registered")
	ErrRegistrySealed   = errors.New("registry is sealed")
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeHandlerFault is returned when a handler reports a domain error
	CodeHandlerFault = -32000
)

// RPCError is the error object of a JSON-RPC response. It unwraps to one of
// the sentinel errors above so callers can use errors.Is.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	kind error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	return e.kind
}

func newRPCError(kind error, code int, format string, args ...interface{}) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...), kind: kind}
}
