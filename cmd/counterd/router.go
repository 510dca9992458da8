package main

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// routeHandler serves a matched route. params holds the ":param" segments.
type routeHandler func(ctx *fasthttp.RequestCtx, params map[string]string)

type route struct {
	method  string
	pattern string
	handler routeHandler
}

// router matches method and "/a/:param/b" patterns segment by segment.
// Routes are registered before serving and never change afterwards.
type router struct {
	routes     []route
	notFound   fasthttp.RequestHandler
	notAllowed fasthttp.RequestHandler
}

func (r *router) GET(pattern string, h routeHandler)    { r.handle(fasthttp.MethodGet, pattern, h) }
func (r *router) POST(pattern string, h routeHandler)   { r.handle(fasthttp.MethodPost, pattern, h) }
func (r *router) DELETE(pattern string, h routeHandler) { r.handle(fasthttp.MethodDelete, pattern, h) }

func (r *router) handle(method, pattern string, h routeHandler) {
	r.routes = append(r.routes, route{method: method, pattern: pattern, handler: h})
}

// serve dispatches ctx. A path registered only under other methods gets
// notAllowed; an unknown path gets notFound.
func (r *router) serve(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	pathKnown := false
	for _, rt := range r.routes {
		params, ok := matchPath(rt.pattern, path)
		if !ok {
			continue
		}
		if rt.method == method {
			rt.handler(ctx, params)
			return
		}
		pathKnown = true
	}
	if pathKnown {
		r.notAllowed(ctx)
		return
	}
	r.notFound(ctx)
}

// label returns the pattern matching the request path, so metric labels
// carry "/counters/:name" instead of every counter name.
func (r *router) label(ctx *fasthttp.RequestCtx) string {
	path := string(ctx.Path())
	for _, rt := range r.routes {
		if _, ok := matchPath(rt.pattern, path); ok {
			return rt.pattern
		}
	}
	return "other"
}

func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")
	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	var params map[string]string
	for i, part := range patternParts {
		if name, ok := strings.CutPrefix(part, ":"); ok {
			if pathParts[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[name] = pathParts[i]
			continue
		}
		if part != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}
