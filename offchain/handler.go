package offchain

import (
	"context"
	"encoding/json"
)

// Handler is one off-chain capability. Params names the positional arguments
// in order; a request with keyed params is reordered by it before Call.
type Handler interface {
	Params() []string
	Call(ctx context.Context, params []json.RawMessage) (interface{}, error)
}

type funcHandler struct {
	params []string
	fn     func(ctx context.Context, params []json.RawMessage) (interface{}, error)
}

func (h *funcHandler) Params() []string { return h.params }

func (h *funcHandler) Call(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	return h.fn(ctx, params)
}

// HandlerFunc adapts a plain function to a Handler
func HandlerFunc(params []string, fn func(ctx context.Context, params []json.RawMessage) (interface{}, error)) Handler {
	return &funcHandler{params: params, fn: fn}
}
