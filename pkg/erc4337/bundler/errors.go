package bundler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// invalidNonceCode is the entry point failure code for a stale or reused nonce
const invalidNonceCode = "AA25"

// RPCError is an error object returned by the bundler. Message carries the
// revert reason (e.g. "AA25 invalid account nonce").
type RPCError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("bundler error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("bundler error %d: %s", e.Code, e.Message)
}

// wrapRPCError turns a JSON-RPC error object into an *RPCError and leaves
// transport errors untouched.
func wrapRPCError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}

	out := &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		out.Data = dataErr.ErrorData()
	}
	return out
}

// IsRejection reports whether err is a bundler-side rejection as opposed to a
// transport failure.
func IsRejection(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// IsNonceConflict reports whether the bundler rejected the operation because
// of its nonce.
func IsNonceConflict(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(rpcErr.Message, invalidNonceCode)
}
