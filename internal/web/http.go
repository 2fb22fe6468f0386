package web

import (
	"net/http"
)

// Dispatcher is anything that turns a Request into a Response.
type Dispatcher interface {
	Dispatch(req *Request) *Response
}

// FromHTTP converts an inbound net/http request. The body is not read until a
// handler asks for it.
func FromHTTP(r *http.Request) *Request {
	req := newRequest(r.Context(), r.Method, r.URL.Path, ParseQuery(r.URL.RawQuery), r.Header.Clone(), r.Body)
	req.RemoteAddr = r.RemoteAddr
	return req
}

// WriteHTTP serialises resp onto w.
func WriteHTTP(w http.ResponseWriter, resp *Response) error {
	header := w.Header()
	for k, vs := range resp.Header {
		header[k] = append([]string(nil), vs...)
	}
	if header.Get("Content-Length") == "" {
		header.Set("Content-Length", resp.ContentLength())
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if len(resp.Body) == 0 {
		return nil
	}
	_, err := w.Write(resp.Body)
	return err
}

// Adapter exposes a Dispatcher as an http.Handler.
func Adapter(d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = WriteHTTP(w, d.Dispatch(FromHTTP(r)))
	})
}
