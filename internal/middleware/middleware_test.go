package middleware_test

import (
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/middleware"
	"github.com/angeloszaimis/routekit/internal/web"
)

var _ = Describe("Chain", func() {
	var trace []string

	tracing := func(name string) middleware.Middleware {
		return func(next web.Handler) web.Handler {
			return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
				trace = append(trace, name+".in")
				resp, err := next.Handle(req)
				trace = append(trace, name+".out")
				return resp, err
			})
		}
	}

	BeforeEach(func() {
		trace = nil
	})

	It("should run links outer to inner and unwind in reverse", func() {
		h := middleware.Apply(web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			trace = append(trace, "handler")
			return web.NoContent(), nil
		}), tracing("a"), tracing("b"), nil, tracing("c"))

		_, err := h.Handle(web.NewRequest(http.MethodGet, "/", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(trace).To(Equal([]string{"a.in", "b.in", "c.in", "handler", "c.out", "b.out", "a.out"}))
	})

	It("should return the handler unchanged for an empty chain", func() {
		resp, err := middleware.Chain()(okHandler("plain")).Handle(web.NewRequest(http.MethodGet, "/", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(resp.Body)).To(Equal("plain"))
	})
})

var _ = Describe("Hooks", func() {
	var trace []string

	hooks := func(name string, deny bool) middleware.Middleware {
		return middleware.Hooks{
			Name: name,
			Before: func(req *web.Request) middleware.Decision {
				trace = append(trace, name+".before")
				if deny {
					return middleware.ShortCircuit(web.Text(http.StatusForbidden, "denied by "+name))
				}
				return middleware.Continue(req)
			},
			After: func(req *web.Request, resp *web.Response) *web.Response {
				trace = append(trace, name+".after")
				return resp.WithHeader("X-After-"+name, "1")
			},
		}.Middleware()
	}

	BeforeEach(func() {
		trace = nil
	})

	It("should run before hooks in order and after hooks in reverse", func() {
		h := middleware.Apply(okHandler("ok"), hooks("outer", false), hooks("inner", false))
		resp, err := h.Handle(web.NewRequest(http.MethodGet, "/", nil))

		Expect(err).NotTo(HaveOccurred())
		Expect(trace).To(Equal([]string{"outer.before", "inner.before", "inner.after", "outer.after"}))
		Expect(resp.Header.Get("X-After-inner")).To(Equal("1"))
		Expect(resp.Header.Get("X-After-outer")).To(Equal("1"))
	})

	It("should skip inner links and its own after on short-circuit", func() {
		called := false
		handler := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			called = true
			return web.NoContent(), nil
		})

		h := middleware.Apply(handler, hooks("outer", false), hooks("guard", true), hooks("inner", false))
		resp, err := h.Handle(web.NewRequest(http.MethodGet, "/", nil))

		Expect(err).NotTo(HaveOccurred())
		Expect(called).To(BeFalse())
		Expect(trace).To(Equal([]string{"outer.before", "guard.before", "outer.after"}))
		Expect(resp.Status).To(Equal(http.StatusForbidden))
		Expect(resp.ShortCircuit).To(BeTrue())
		Expect(resp.Header.Get("X-After-guard")).To(BeEmpty())
	})

	It("should hand after hooks an error response instead of an error", func() {
		var seen *web.Response
		failing := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			return nil, errors.New("boom")
		})
		h := middleware.Apply(failing, middleware.Hooks{
			After: func(req *web.Request, resp *web.Response) *web.Response {
				seen = resp
				return nil
			},
		}.Middleware())

		resp, err := h.Handle(web.NewRequest(http.MethodGet, "/", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeIdenticalTo(resp))
		Expect(resp.Status).To(Equal(http.StatusInternalServerError))
		Expect(resp.Cause).To(MatchError("boom"))
	})

	It("should let before replace the request", func() {
		h := middleware.Apply(web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			return web.Text(http.StatusOK, req.GetString("user")), nil
		}), middleware.Hooks{
			Before: func(req *web.Request) middleware.Decision {
				req.Set("user", "ada")
				return middleware.Continue(req)
			},
		}.Middleware())

		resp, err := h.Handle(web.NewRequest(http.MethodGet, "/", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(resp.Body)).To(Equal("ada"))
	})
})

var _ = Describe("Hooks without a response", func() {
	It("should hand After an error response instead of nil", func() {
		var seen *web.Response
		mw := middleware.Hooks{
			Name: "observe",
			After: func(req *web.Request, resp *web.Response) *web.Response {
				seen = resp
				return nil
			},
		}.Middleware()

		empty := web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			return nil, nil
		})
		resp, err := mw(empty).Handle(web.NewRequest(http.MethodGet, "/", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).NotTo(BeNil())
		Expect(resp.Status).To(Equal(http.StatusInternalServerError))
	})
})
