package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/counterlog/pkg/counter"
	"github.com/fluxorio/counterlog/pkg/observability/prometheus"
	"github.com/fluxorio/counterlog/pkg/registry"
)

const requestIDHeader = "X-Request-ID"

const defaultRequestTimeout = 5 * time.Second

// server is the HTTP front end over a registry.
type server struct {
	mgr     *registry.Manager
	metrics *prometheus.Metrics
	scrape  fasthttp.RequestHandler
	logger  *slog.Logger

	// requestTimeout bounds the engine and store work behind one request.
	requestTimeout time.Duration
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Value     *int64 `json:"value,omitempty"`
	RequestID string `json:"request_id"`
}

type valueBody struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// counterCall handles a request for one named counter. opCtx is the
// context engine and store calls run under; the RequestCtx is only valid
// inside its handler and is never passed below it.
type counterCall func(opCtx context.Context, ctx *fasthttp.RequestCtx, name string)

// handler returns the full request pipeline: request id, panic recovery,
// metrics and routing.
func (s *server) handler() fasthttp.RequestHandler {
	r := s.routes()
	return s.withRequestID(s.withRecovery(s.metrics.FastHTTPMetricsMiddleware(r.label, r.serve)))
}

func (s *server) routes() *router {
	r := &router{
		notFound: func(ctx *fasthttp.RequestCtx) {
			s.writeError(ctx, fasthttp.StatusNotFound, "not_found", "no such route")
		},
		notAllowed: s.methodNotAllowed,
	}
	r.GET("/live", func(ctx *fasthttp.RequestCtx, _ map[string]string) {
		s.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "up"})
	})
	r.GET("/metrics", func(ctx *fasthttp.RequestCtx, _ map[string]string) {
		s.scrape(ctx)
	})
	r.GET("/counters", func(ctx *fasthttp.RequestCtx, _ map[string]string) {
		s.writeJSON(ctx, fasthttp.StatusOK, map[string][]string{"counters": s.mgr.Names()})
	})
	r.GET("/counters/:name", s.forCounter(s.get))
	r.DELETE("/counters/:name", s.forCounter(s.remove))
	r.POST("/counters/:name/incr", s.forCounter(s.adjust(false)))
	r.POST("/counters/:name/decr", s.forCounter(s.adjust(true)))
	r.POST("/counters/:name/reset", s.forCounter(s.reset))
	r.POST("/counters/:name/flush", s.forCounter(s.flush))
	return r
}

// forCounter validates the :name parameter and runs call under a context
// bounded by requestTimeout.
func (s *server) forCounter(call counterCall) routeHandler {
	return func(ctx *fasthttp.RequestCtx, params map[string]string) {
		name := params["name"]
		if !counter.ValidName(name) {
			s.writeError(ctx, fasthttp.StatusBadRequest, "invalid_name", fmt.Sprintf("invalid counter name %q", name))
			return
		}
		timeout := s.requestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		opCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		call(opCtx, ctx, name)
	}
}

func (s *server) withRequestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.SetUserValue(requestIDHeader, id)
		ctx.Response.Header.Set(requestIDHeader, id)
		next(ctx)
	}
}

func (s *server) withRecovery(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panic",
					"request_id", requestID(ctx), "method", string(ctx.Method()), "path", string(ctx.Path()), "panic", r)
				s.writeJSON(ctx, fasthttp.StatusInternalServerError, errorBody{
					Error:     "internal_server_error",
					Message:   "Internal Server Error",
					RequestID: requestID(ctx),
				})
			}
		}()
		next(ctx)
	}
}

func (s *server) get(opCtx context.Context, ctx *fasthttp.RequestCtx, name string) {
	c, err := s.mgr.Open(opCtx, name)
	if err != nil {
		s.writeCounterError(ctx, err, nil)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, c.Stats())
}

func (s *server) remove(opCtx context.Context, ctx *fasthttp.RequestCtx, name string) {
	if err := s.mgr.Remove(opCtx, name); err != nil {
		s.writeCounterError(ctx, err, nil)
		return
	}
	s.metrics.Forget(name)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

// adjust increments (or decrements) by ?delta=N, which defaults to 1.
func (s *server) adjust(decrement bool) counterCall {
	return func(opCtx context.Context, ctx *fasthttp.RequestCtx, name string) {
		delta := int64(1)
		if raw := ctx.QueryArgs().Peek("delta"); len(raw) > 0 {
			d, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				s.writeError(ctx, fasthttp.StatusBadRequest, "invalid_delta", fmt.Sprintf("delta %q is not an integer", raw))
				return
			}
			delta = d
		}
		c, err := s.mgr.Open(opCtx, name)
		if err != nil {
			s.writeCounterError(ctx, err, nil)
			return
		}
		var value int64
		if decrement {
			value, err = c.Decrement(opCtx, delta)
		} else {
			value, err = c.Increment(opCtx, delta)
		}
		if err != nil {
			s.writeCounterError(ctx, err, &value)
			return
		}
		s.writeJSON(ctx, fasthttp.StatusOK, valueBody{Name: name, Value: value})
	}
}

func (s *server) reset(opCtx context.Context, ctx *fasthttp.RequestCtx, name string) {
	raw := ctx.QueryArgs().Peek("value")
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "invalid_value", fmt.Sprintf("value %q is not an integer", raw))
		return
	}
	c, err := s.mgr.Open(opCtx, name)
	if err != nil {
		s.writeCounterError(ctx, err, nil)
		return
	}
	if err := c.Reset(opCtx, v); err != nil {
		s.writeCounterError(ctx, err, nil)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, valueBody{Name: name, Value: c.Value()})
}

func (s *server) flush(opCtx context.Context, ctx *fasthttp.RequestCtx, name string) {
	c, err := s.mgr.Open(opCtx, name)
	if err != nil {
		s.writeCounterError(ctx, err, nil)
		return
	}
	if err := c.Flush(opCtx); err != nil {
		s.writeCounterError(ctx, err, nil)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, c.Stats())
}

// writeCounterError maps engine error codes to HTTP statuses. value is set
// when the operation moved the counter before failing.
func (s *server) writeCounterError(ctx *fasthttp.RequestCtx, err error, value *int64) {
	status := fasthttp.StatusInternalServerError
	code := "internal_error"

	var cerr *counter.Error
	switch {
	case errors.As(err, &cerr):
		code = strings.ToLower(string(cerr.Code))
		switch cerr.Code {
		case counter.CodeStoreUnavailable, counter.CodeNotReady, counter.CodeClosed:
			status = fasthttp.StatusServiceUnavailable
			value = nil
		case counter.CodeConfigInvalid, counter.CodeInvalidDelta:
			status = fasthttp.StatusBadRequest
			value = nil
		}
	case errors.Is(err, registry.ErrClosed):
		status = fasthttp.StatusServiceUnavailable
		code = "shutting_down"
	}

	s.logger.Error("counter request failed",
		"request_id", requestID(ctx), "path", string(ctx.Path()), "code", code, "error", err)
	s.writeJSON(ctx, status, errorBody{
		Error:     code,
		Message:   err.Error(),
		Value:     value,
		RequestID: requestID(ctx),
	})
}

func (s *server) writeError(ctx *fasthttp.RequestCtx, status int, code, msg string) {
	s.writeJSON(ctx, status, errorBody{Error: code, Message: msg, RequestID: requestID(ctx)})
}

func (s *server) methodNotAllowed(ctx *fasthttp.RequestCtx) {
	s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", string(ctx.Method())+" not allowed")
}

func (s *server) writeJSON(ctx *fasthttp.RequestCtx, status int, body interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(body); err != nil {
		s.logger.Error("encode response", "request_id", requestID(ctx), "error", err)
	}
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue(requestIDHeader).(string); ok {
		return id
	}
	return "unknown"
}
