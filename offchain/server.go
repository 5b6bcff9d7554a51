package offchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

// RPCPaths are equivalent JSON-RPC endpoints
var RPCPaths = []string{"/", "/hc"}

const maxBodyBytes = 1 << 20

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type resultResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result"`
	ID      json.RawMessage `json:"id"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   *RPCError       `json:"error"`
	ID      json.RawMessage `json:"id"`
}

var nullID = json.RawMessage("null")

func failure(id json.RawMessage, err *RPCError) *errorResponse {
	if len(id) == 0 {
		id = nullID
	}
	return &errorResponse{JSONRPC: "2.0", Error: err, ID: id}
}

type Server struct {
	echo       *echo.Echo
	dispatcher *Dispatcher
	logger     logger.Logger
}

type serverOptions struct {
	sentry bool
}

type ServerOption func(*serverOptions)

// WithSentry reports panics that escape a request to sentry. sentry.Init must
// have been called already.
func WithSentry() ServerOption {
	return func(o *serverOptions) {
		o.sentry = true
	}
}

// NewServer wires the JSON-RPC endpoints, GET /up and, when gatherer is not
// nil, GET /metrics.
func NewServer(dispatcher *Dispatcher, gatherer prometheus.Gatherer, log logger.Logger, opts ...ServerOption) *Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		echo:       echo.New(),
		dispatcher: dispatcher,
		logger:     logger.EnsureLogger(log),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	// Register Sentry before Recover so panics are reported
	if o.sentry {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	for _, path := range RPCPaths {
		e.POST(path, s.handleRPC)
	}

	e.GET("/up", func(c echo.Context) error {
		if dispatcher.Registry().Sealed() {
			return c.String(http.StatusOK, "up")
		}
		return c.String(http.StatusServiceUnavailable, "pending...")
	})

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler exposes the router, mostly for httptest
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is cancelled. The registry is sealed first.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.dispatcher.Registry().Seal()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("off-chain server listening", "address", addr, "handlers", s.dispatcher.Registry().Len())
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) handleRPC(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusOK, failure(nil, newRPCError(nil, CodeParseError, "failed to read body: %v", err)))
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		return s.handleBatch(c, body)
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusOK, failure(nil, newRPCError(nil, CodeParseError, "parse error: %v", err)))
	}

	resp := s.serve(c.Request().Context(), &req)
	if resp == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBatch(c echo.Context, body []byte) error {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		return c.JSON(http.StatusOK, failure(nil, newRPCError(nil, CodeParseError, "parse error: %v", err)))
	}
	if len(batch) == 0 {
		return c.JSON(http.StatusOK, failure(nil, newRPCError(nil, CodeInvalidRequest, "empty batch")))
	}

	out := make([]interface{}, 0, len(batch))
	for _, raw := range batch {
		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			out = append(out, failure(nil, newRPCError(nil, CodeInvalidRequest, "invalid request: %v", err)))
			continue
		}
		if resp := s.serve(c.Request().Context(), &req); resp != nil {
			out = append(out, resp)
		}
	}

	if len(out) == 0 {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, out)
}

// serve answers one request. Notifications (no id) get no response.
func (s *Server) serve(ctx context.Context, req *request) interface{} {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return failure(req.ID, newRPCError(nil, CodeInvalidRequest, "invalid request"))
	}

	result, rpcErr := s.dispatcher.Dispatch(ctx, req.Method, req.Params)
	if len(req.ID) == 0 {
		return nil
	}
	if rpcErr != nil {
		return failure(req.ID, rpcErr)
	}
	return &resultResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
}
