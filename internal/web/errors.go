package web

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error kinds recognised across the pipeline. Use errors.Is to test for them.
var (
	ErrRouteConflict       = errors.New("route conflict")
	ErrNotFound            = errors.New("not found")
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrExtraction          = errors.New("extraction failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrCircuitOpen         = errors.New("circuit open")
	ErrNoAvailableUpstream = errors.New("no available upstream")
	ErrCacheComputeFailed  = errors.New("cache compute failed")
	ErrTimeout             = errors.New("handler timeout")
	ErrUpstream            = errors.New("upstream failure")
	ErrNoResponse          = errors.New("handler returned no response")
)

// Detailer is implemented by errors that carry structured context which should
// be rendered into the error body, such as the field an extractor looked for.
type Detailer interface {
	Details() map[string]string
}

// StatusFor maps an error to the HTTP status the pipeline answers with.
func StatusFor(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrExtraction):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrNoAvailableUpstream):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns a stable snake_case name for the error kind, used in error
// bodies, log attributes and metric labels.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRouteConflict):
		return "route_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMethodNotAllowed):
		return "method_not_allowed"
	case errors.Is(err, ErrExtraction):
		return "extraction_error"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrNoAvailableUpstream):
		return "no_available_upstream"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstream):
		return "upstream_failure"
	case errors.Is(err, ErrCacheComputeFailed):
		return "cache_compute_failed"
	default:
		return "internal_error"
	}
}

// IsPolicyDenial reports whether err is an intentional refusal by a
// resilience policy rather than a fault.
func IsPolicyDenial(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrNoAvailableUpstream)
}

// ErrorResponse renders err as a structured JSON error response. Internal
// errors do not leak their message to the client.
func ErrorResponse(err error) *Response {
	status := StatusFor(err)
	body := map[string]string{
		"error": KindOf(err),
	}

	if status < http.StatusInternalServerError || IsPolicyDenial(err) {
		body["message"] = err.Error()
	} else {
		body["message"] = http.StatusText(status)
	}

	var d Detailer
	if errors.As(err, &d) {
		for k, v := range d.Details() {
			body[k] = v
		}
	}

	payload, mErr := json.Marshal(body)
	if mErr != nil {
		payload = []byte(`{"error":"internal_error"}`)
	}

	resp := NewResponse(status, payload)
	resp.Header.Set("Content-Type", "application/json")
	resp.Cause = err
	resp.ShortCircuit = IsPolicyDenial(err)
	return resp
}
