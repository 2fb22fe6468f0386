package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Well-known extension keys written by the pipeline.
const (
	ExtClientID  = "client_id"
	ExtRouteID   = "route_id"
	ExtRequestID = "request_id"
)

// Request is the inbound request as seen by the pipeline.
//
// Copies made by WithContext and WithParams share the body and the extension
// map with the original, so metadata attached by one middleware is visible to
// every link of the same request.
type Request struct {
	Method     string
	Path       string
	Segments   []string
	Query      Query
	Header     http.Header
	RemoteAddr string

	ctx    context.Context
	body   *lazyBody
	params map[string]string
	ext    *extensions
}

type lazyBody struct {
	once sync.Once
	src  io.Reader
	data []byte
	err  error
}

func (b *lazyBody) read() ([]byte, error) {
	b.once.Do(func() {
		if b.src == nil {
			return
		}
		b.data, b.err = io.ReadAll(b.src)
		if c, ok := b.src.(io.Closer); ok {
			_ = c.Close()
		}
		b.src = nil
	})
	return b.data, b.err
}

type extensions struct {
	mutex  sync.RWMutex
	values map[string]any
}

// NewRequest builds a request for target, which is a path with an optional
// query string ("/users/7?verbose=1"). A nil body is treated as empty.
func NewRequest(method, target string, body io.Reader) *Request {
	path, rawQuery, _ := strings.Cut(target, "?")
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}

	return newRequest(context.Background(), method, path, ParseQuery(rawQuery), make(http.Header), body)
}

func newRequest(ctx context.Context, method, path string, query Query, header http.Header, body io.Reader) *Request {
	segments := SplitPath(path)

	return &Request{
		Method:   strings.ToUpper(method),
		Path:     JoinPath(segments),
		Segments: segments,
		Query:    query,
		Header:   header,
		ctx:      ctx,
		body:     &lazyBody{src: body},
		ext:      &extensions{values: make(map[string]any)},
	}
}

// SplitPath splits a path into its non-empty segments.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// JoinPath is the inverse of SplitPath and yields the normalised path.
func JoinPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// Context returns the request context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r carrying ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	clone := *r
	clone.ctx = ctx
	return &clone
}

// WithParams returns a shallow copy of r carrying the given path parameters.
func (r *Request) WithParams(params map[string]string) *Request {
	clone := *r
	clone.params = params
	return &clone
}

// Param returns a path parameter bound by the dispatcher.
func (r *Request) Param(name string) (string, bool) {
	v, ok := r.params[name]
	return v, ok
}

// Params returns a copy of all bound path parameters.
func (r *Request) Params() map[string]string {
	out := make(map[string]string, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// Body materialises the body on first use. Every later call returns the same
// bytes and error.
func (r *Request) Body() ([]byte, error) {
	if r.body == nil {
		return nil, nil
	}
	return r.body.read()
}

// BodyReader returns a fresh reader over the materialised body.
func (r *Request) BodyReader() (io.Reader, error) {
	data, err := r.Body()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Set attaches metadata to the request.
func (r *Request) Set(key string, value any) {
	r.ext.mutex.Lock()
	defer r.ext.mutex.Unlock()
	r.ext.values[key] = value
}

// Get reads metadata attached with Set.
func (r *Request) Get(key string) (any, bool) {
	r.ext.mutex.RLock()
	defer r.ext.mutex.RUnlock()
	v, ok := r.ext.values[key]
	return v, ok
}

// GetString reads string metadata, returning "" when absent or not a string.
func (r *Request) GetString(key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

// Cookies parses the Cookie header.
func (r *Request) Cookies() []*http.Cookie {
	return (&http.Request{Header: r.Header}).Cookies()
}

// Cookie returns the named cookie or http.ErrNoCookie.
func (r *Request) Cookie(name string) (*http.Cookie, error) {
	return (&http.Request{Header: r.Header}).Cookie(name)
}
