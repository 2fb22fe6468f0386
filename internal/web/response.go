package web

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Response is produced by a handler, a short-circuiting middleware or the
// cache. It must not be mutated after it has been returned.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	Cacheable bool

	// ShortCircuit marks responses produced by a guard instead of the handler.
	ShortCircuit bool
	// Cause is the error the response was rendered from, if any.
	Cause error
}

func NewResponse(status int, body []byte) *Response {
	return &Response{
		Status: status,
		Header: make(http.Header),
		Body:   body,
	}
}

// Text builds a text/plain response.
func Text(status int, body string) *Response {
	resp := NewResponse(status, []byte(body))
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}

// Bytes builds a response with an explicit content type.
func Bytes(status int, contentType string, body []byte) *Response {
	resp := NewResponse(status, body)
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	return resp
}

// JSON encodes v as the response body. Encoding failures yield a 500.
func JSON(status int, v any) *Response {
	payload, err := json.Marshal(v)
	if err != nil {
		return ErrorResponse(err)
	}
	resp := NewResponse(status, payload)
	resp.Header.Set("Content-Type", "application/json")
	return resp
}

func NoContent() *Response {
	return NewResponse(http.StatusNoContent, nil)
}

// Redirect builds a redirect with a Location header.
func Redirect(status int, location string) *Response {
	resp := NewResponse(status, nil)
	resp.Header.Set("Location", location)
	return resp
}

func MovedPermanently(location string) *Response {
	return Redirect(http.StatusMovedPermanently, location)
}

func Found(location string) *Response {
	return Redirect(http.StatusFound, location)
}

func SeeOther(location string) *Response {
	return Redirect(http.StatusSeeOther, location)
}

func TemporaryRedirect(location string) *Response {
	return Redirect(http.StatusTemporaryRedirect, location)
}

func PermanentRedirect(location string) *Response {
	return Redirect(http.StatusPermanentRedirect, location)
}

// Clone deep-copies the response so the copy can be changed freely.
func (r *Response) Clone() *Response {
	clone := *r
	clone.Header = r.Header.Clone()
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	if r.Body != nil {
		clone.Body = make([]byte, len(r.Body))
		copy(clone.Body, r.Body)
	}
	return &clone
}

// WithHeader returns a copy with header key set to value.
func (r *Response) WithHeader(key, value string) *Response {
	clone := r.Clone()
	clone.Header.Set(key, value)
	return clone
}

// WithStatus returns a copy with a different status code.
func (r *Response) WithStatus(status int) *Response {
	clone := r.Clone()
	clone.Status = status
	return clone
}

// WithCacheable returns a copy with the cacheability flag set.
func (r *Response) WithCacheable(cacheable bool) *Response {
	clone := r.Clone()
	clone.Cacheable = cacheable
	return clone
}

// ContentLength is the body length rendered for the Content-Length header.
func (r *Response) ContentLength() string {
	return strconv.Itoa(len(r.Body))
}

// Outcome classifies a finished response for logs and metrics.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeShortCircuit Outcome = "short_circuit"
	OutcomeClientError  Outcome = "client_error"
	OutcomeHandlerError Outcome = "handler_error"
)

// Classify keeps policy denials apart from handler failures.
func Classify(resp *Response) Outcome {
	switch {
	case resp == nil:
		return OutcomeHandlerError
	case resp.ShortCircuit || IsPolicyDenial(resp.Cause):
		return OutcomeShortCircuit
	case resp.Status >= http.StatusInternalServerError:
		return OutcomeHandlerError
	case resp.Status >= http.StatusBadRequest:
		return OutcomeClientError
	default:
		return OutcomeOK
	}
}
