// Package dispatchapi is the request surface of the dispatch engine: an
// ordered table of (method, pattern, handler) entries served in-process and,
// through ServeHTTP, over a real listener.
package dispatchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/transport"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleClient  Role = "client"
	RoleManager Role = "manager"
	RoleDriver  Role = "driver"
)

// Identity is the caller parsed from the bearer token.
type Identity struct {
	Role Role
	ID   int64
}

type Request struct {
	Method  string
	URL     string
	Path    string
	Params  map[string]string
	Query   url.Values
	Headers map[string]string
	Body    json.RawMessage
	Auth    *Identity
}

type Response struct {
	Status int
	Body   any
}

type HandlerFunc func(ctx context.Context, req *Request) (Response, error)

// Middleware runs before the handler. A non-nil response short-circuits the chain.
type Middleware func(ctx context.Context, req *Request) *Response

type route struct {
	method      string
	segments    []string
	handler     HandlerFunc
	middlewares []Middleware
}

type Router struct {
	routes      []route
	middlewares []Middleware
}

func NewRouter() *Router {
	return &Router{}
}

// Use appends a middleware that runs for every matched route.
func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

// Handle registers a route. Patterns are slash separated; a ":name" segment
// captures one non-empty path segment. Earlier registrations win.
func (r *Router) Handle(method, pattern string, h HandlerFunc, mws ...Middleware) {
	r.routes = append(r.routes, route{
		method:      strings.ToUpper(method),
		segments:    splitPath(pattern),
		handler:     h,
		middlewares: mws,
	})
}

func (r *Router) Get(pattern string, h HandlerFunc)  { r.Handle(http.MethodGet, pattern, h) }
func (r *Router) Post(pattern string, h HandlerFunc) { r.Handle(http.MethodPost, pattern, h) }

// Group registers routes under a common prefix with extra middlewares.
type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

func (r *Router) Group(prefix string, mws ...Middleware) *Group {
	return &Group{router: r, prefix: strings.TrimSuffix(prefix, "/"), middlewares: mws}
}

func (g *Group) Get(pattern string, h HandlerFunc) {
	g.router.Handle(http.MethodGet, g.prefix+pattern, h, g.middlewares...)
}

func (g *Group) Post(pattern string, h HandlerFunc) {
	g.router.Handle(http.MethodPost, g.prefix+pattern, h, g.middlewares...)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (rt route) match(method string, segments []string) (map[string]string, bool) {
	if rt.method != method || len(rt.segments) != len(segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, s := range rt.segments {
		if strings.HasPrefix(s, ":") {
			if segments[i] == "" {
				return nil, false
			}
			params[s[1:]] = segments[i]
			continue
		}
		if s != segments[i] {
			return nil, false
		}
	}
	return params, true
}

// Dispatch routes one request. It never returns an error: failures become
// responses, and a panicking handler becomes a 500 carrying the panic value.
func (r *Router) Dispatch(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) (resp Response) {
	started := time.Now()
	method = strings.ToUpper(method)

	u, err := url.Parse(rawURL)
	if err != nil {
		return Response{Status: http.StatusBadRequest, Body: errorBody(err)}
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("handler panicked", "method", method, "path", u.Path, "panic", fmt.Sprint(p))
			resp = Response{Status: http.StatusInternalServerError, Body: fmt.Sprint(p)}
		}
		slog.Info("request",
			"id", RequestIDFromContext(ctx),
			"method", method,
			"path", u.Path,
			"status", resp.Status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}()

	segments := splitPath(u.Path)
	for _, rt := range r.routes {
		params, ok := rt.match(method, segments)
		if !ok {
			continue
		}
		req := &Request{
			Method:  method,
			URL:     rawURL,
			Path:    u.Path,
			Params:  params,
			Query:   u.Query(),
			Headers: lowerKeys(headers),
			Body:    body,
		}
		for _, mw := range r.middlewares {
			if out := mw(ctx, req); out != nil {
				return *out
			}
		}
		for _, mw := range rt.middlewares {
			if out := mw(ctx, req); out != nil {
				return *out
			}
		}
		out, err := rt.handler(ctx, req)
		if err != nil {
			return FromError(err)
		}
		if out.Status == 0 {
			out.Status = http.StatusOK
		}
		return out
	}
	return Response{Status: http.StatusNotFound}
}

// Serve is Dispatch with the response body encoded as JSON.
func (r *Router) Serve(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) (int, []byte) {
	resp := r.Dispatch(ctx, method, rawURL, headers, body)
	if resp.Body == nil {
		return resp.Status, nil
	}
	b, err := json.Marshal(resp.Body)
	if err != nil {
		b, _ = json.Marshal(errors.Wrap(err, "encode response").Error())
		return http.StatusInternalServerError, b
	}
	return resp.Status, b
}

// ServeMessage answers one request arriving over the transport bus.
func (r *Router) ServeMessage(ctx context.Context, m transport.Message) transport.Reply {
	status, body := r.Serve(WithRequestID(ctx, m.ID), m.Method, m.URL, m.Headers, m.Body)
	return transport.Reply{Status: status, Body: body}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}

	status, out := r.Serve(req.Context(), req.Method, req.URL.RequestURI(), headers, body)
	if out != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = w.Write(out)
}

func lowerKeys(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}

type ErrorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func errorBody(err error) ErrorBody {
	return ErrorBody{OK: false, Error: err.Error()}
}

// FromError maps the error kinds of internal/errs to statuses. Anything
// unclassified is a 500 with the stringified error.
func FromError(err error) Response {
	switch errs.KindOf(err) {
	case errs.ErrInvalid:
		return Response{Status: http.StatusBadRequest, Body: errorBody(err)}
	case errs.ErrForbidden:
		return Response{Status: http.StatusForbidden, Body: errorBody(err)}
	case errs.ErrNotFound:
		return Response{Status: http.StatusNotFound, Body: errorBody(err)}
	case errs.ErrNotApplied:
		return Response{Status: http.StatusConflict, Body: errorBody(err)}
	case errs.ErrUpstream:
		return Response{Status: http.StatusBadGateway, Body: errorBody(err)}
	}
	return Response{Status: http.StatusInternalServerError, Body: err.Error()}
}

var bearerRe = regexp.MustCompile(`^Bearer\s+(client|manager|driver):(\d+)$`)

// Authenticate parses "Bearer role:id" into req.Auth and rejects anything else with 403.
func Authenticate(ctx context.Context, req *Request) *Response {
	m := bearerRe.FindStringSubmatch(req.Headers["authorization"])
	if m == nil {
		return &Response{Status: http.StatusForbidden}
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return &Response{Status: http.StatusForbidden}
	}
	req.Auth = &Identity{Role: Role(m[1]), ID: id}
	return nil
}

// RequireRole lets through only callers authenticated with one of roles.
func RequireRole(roles ...Role) Middleware {
	return func(ctx context.Context, req *Request) *Response {
		if req.Auth != nil {
			for _, r := range roles {
				if req.Auth.Role == r {
					return nil
				}
			}
		}
		return &Response{Status: http.StatusForbidden}
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx with the correlation id of the message being served.
func WithRequestID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) uint64 {
	id, _ := ctx.Value(requestIDKey{}).(uint64)
	return id
}
