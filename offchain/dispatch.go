package offchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

// DispatchMetrics is implemented by *metrics.HybridComputeMetrics
type DispatchMetrics interface {
	IncDispatch(selector, outcome string)
	ObserveDispatchLatency(selector string, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncDispatch(string, string)                   {}
func (noopMetrics) ObserveDispatchLatency(string, time.Duration) {}

const (
	outcomeOK    = "ok"
	outcomeMiss  = "miss"
	outcomeFault = "fault"
)

// Dispatcher routes a method key to its registered handler. It keeps no state
// between requests and never changes the registry.
type Dispatcher struct {
	registry *Registry
	metrics  DispatchMetrics
	logger   logger.Logger
}

func NewDispatcher(registry *Registry, m DispatchMetrics, log logger.Logger) *Dispatcher {
	if m == nil {
		m = noopMetrics{}
	}
	return &Dispatcher{registry: registry, metrics: m, logger: logger.Component(log, "dispatch")}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch looks up methodKey and invokes its handler with params, which may
// be absent, a JSON array or a JSON object keyed by the handler's parameter
// names. A miss never invokes anything. Handler errors and panics come back
// as an *RPCError wrapping ErrHandlerFault.
func (d *Dispatcher) Dispatch(ctx context.Context, methodKey string, params json.RawMessage) (interface{}, *RPCError) {
	entry, ok := d.registry.Lookup(methodKey)
	if !ok {
		d.metrics.IncDispatch("unknown", outcomeMiss)
		d.logger.Debug("dispatch miss", "method", methodKey)
		return nil, newRPCError(ErrDispatchMiss, CodeMethodNotFound, "method %q not found", methodKey)
	}

	selector := entry.Selector.Hex()

	args, err := positional(params, entry.Handler.Params())
	if err != nil {
		d.metrics.IncDispatch(selector, outcomeFault)
		return nil, newRPCError(ErrInvalidParams, CodeInvalidParams, "%s: %v", entry.Signature, err)
	}

	start := time.Now()
	result, rpcErr := d.invoke(ctx, entry, args)
	d.metrics.ObserveDispatchLatency(selector, time.Since(start))

	if rpcErr != nil {
		d.metrics.IncDispatch(selector, outcomeFault)
		d.logger.Warn("handler fault", "selector", selector, "signature", entry.Signature, "error", rpcErr.Message)
		return nil, rpcErr
	}

	d.metrics.IncDispatch(selector, outcomeOK)
	return result, nil
}

func (d *Dispatcher) invoke(ctx context.Context, entry *Entry, args []json.RawMessage) (result interface{}, rpcErr *RPCError) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked", "signature", entry.Signature, "panic", r)
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("component", "dispatch")
				scope.SetTag("selector", entry.Selector.Hex())
				scope.SetContext("handler", map[string]interface{}{
					"signature": entry.Signature,
					"stack":     string(debug.Stack()),
				})
				sentry.CaptureException(fmt.Errorf("handler %s panicked: %v", entry.Signature, r))
			})
			result = nil
			rpcErr = newRPCError(ErrHandlerFault, CodeInternalError, "%s panicked: %v", entry.Signature, r)
		}
	}()

	res, err := entry.Handler.Call(ctx, args)
	if err != nil {
		return nil, newRPCError(ErrHandlerFault, CodeHandlerFault, "%s: %v", entry.Signature, err)
	}
	return res, nil
}

// positional turns raw params into an ordered argument list
func positional(params json.RawMessage, names []string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []json.RawMessage{}, nil
	}

	switch trimmed[0] {
	case '[':
		var args []json.RawMessage
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, err
		}
		return args, nil
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, err
		}
		args := make([]json.RawMessage, 0, len(names))
		for _, name := range names {
			v, ok := keyed[name]
			if !ok {
				return nil, fmt.Errorf("missing param %q", name)
			}
			args = append(args, v)
		}
		if len(keyed) != len(names) {
			return nil, fmt.Errorf("expected params %v", names)
		}
		return args, nil
	}

	return nil, fmt.Errorf("params must be an array or an object")
}
