package middleware

import (
	"github.com/google/uuid"

	"github.com/angeloszaimis/routekit/internal/web"
)

const RequestIDHeader = "X-Request-Id"

// RequestID reuses an inbound X-Request-Id or assigns a new UUID, stores it
// under web.ExtRequestID and echoes it on the response.
func RequestID() Middleware {
	return func(next web.Handler) web.Handler {
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			id := req.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			req.Set(web.ExtRequestID, id)

			resp, err := next.Handle(req)
			switch {
			case err != nil:
				resp = web.ErrorResponse(err)
			case resp == nil:
				resp = web.ErrorResponse(web.ErrNoResponse)
			}
			return resp.WithHeader(RequestIDHeader, id), nil
		})
	}
}
