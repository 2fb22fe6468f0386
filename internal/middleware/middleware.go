package middleware

import (
	"github.com/angeloszaimis/routekit/internal/web"
)

type Middleware func(next web.Handler) web.Handler

// Chain composes mws so that mws[0] is outermost. The composition happens
// once; the returned Middleware only wraps.
func Chain(mws ...Middleware) Middleware {
	mws = append([]Middleware(nil), mws...)
	return func(next web.Handler) web.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				next = mws[i](next)
			}
		}
		return next
	}
}

// Apply wraps h with mws, mws[0] outermost.
func Apply(h web.Handler, mws ...Middleware) web.Handler {
	return Chain(mws...)(h)
}

// Decision is what a before hook returns: either continue with a (possibly
// replaced) request or answer immediately.
type Decision struct {
	req  *web.Request
	resp *web.Response
}

func Continue(req *web.Request) Decision {
	return Decision{req: req}
}

// ShortCircuit answers with resp. Inner links and the handler do not run.
func ShortCircuit(resp *web.Response) Decision {
	if resp == nil {
		resp = web.NoContent()
	}
	resp = resp.Clone()
	resp.ShortCircuit = true
	return Decision{resp: resp}
}

func (d Decision) ShortCircuited() bool {
	return d.resp != nil
}

type (
	BeforeFunc func(req *web.Request) Decision
	// AfterFunc may replace the response. Returning nil keeps it.
	AfterFunc func(req *web.Request, resp *web.Response) *web.Response
)

// Hooks is a named before/after pair.
//
// When Before short-circuits, this link's After is skipped but the After of
// every outer link still runs. An error from an inner link is rendered with
// web.ErrorResponse before After sees it, so After always has a response.
type Hooks struct {
	Name   string
	Before BeforeFunc
	After  AfterFunc
}

func (h Hooks) Middleware() Middleware {
	return func(next web.Handler) web.Handler {
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			if h.Before != nil {
				d := h.Before(req)
				if d.ShortCircuited() {
					return d.resp, nil
				}
				if d.req != nil {
					req = d.req
				}
			}

			resp, err := next.Handle(req)
			switch {
			case err != nil:
				resp = web.ErrorResponse(err)
			case resp == nil:
				resp = web.ErrorResponse(web.ErrNoResponse)
			}

			if h.After != nil {
				if replaced := h.After(req, resp); replaced != nil {
					resp = replaced
				}
			}
			return resp, nil
		})
	}
}
