package router_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/extract"
	"github.com/angeloszaimis/routekit/internal/middleware"
	"github.com/angeloszaimis/routekit/internal/router"
	"github.com/angeloszaimis/routekit/internal/web"
)

func named(name string) web.Handler {
	return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
		return web.JSON(http.StatusOK, map[string]any{"route": name, "params": req.Params()}), nil
	})
}

func dispatch(r *router.Router, method, target string) *web.Response {
	return r.Dispatch(web.NewRequest(method, target, nil))
}

func decode(resp *web.Response) map[string]any {
	out := map[string]any{}
	Expect(json.Unmarshal(resp.Body, &out)).To(Succeed())
	return out
}

var _ = Describe("Router", func() {
	var r *router.Router

	BeforeEach(func() {
		r = router.New(nil)
	})

	Describe("Register", func() {
		It("should reject identical method and pattern", func() {
			Expect(r.Register(http.MethodGet, "/users/{id}", named("a"))).To(Succeed())
			err := r.Register(http.MethodGet, "/users/{name}", named("b"))
			Expect(err).To(MatchError(web.ErrRouteConflict))
		})

		It("should allow the same pattern under another method", func() {
			Expect(r.Register(http.MethodGet, "/users/{id}", named("a"))).To(Succeed())
			Expect(r.Register(http.MethodDelete, "/users/{id}", named("b"))).To(Succeed())
		})

		DescribeTable("should reject malformed patterns",
			func(pattern string) {
				Expect(r.Register(http.MethodGet, pattern, named("x"))).To(MatchError(router.ErrInvalidPattern))
			},
			Entry("relative", "users"),
			Entry("unclosed", "/users/{id"),
			Entry("stray brace", "/us}ers"),
			Entry("empty name", "/users/{}"),
			Entry("bad name", "/users/{user-id}"),
			Entry("repeated name", "/a/{id}/b/{id}"),
			Entry("catch-all not last", "/files/{path...}/meta"),
		)

		It("should refuse registration after the first dispatch", func() {
			Expect(r.Register(http.MethodGet, "/a", named("a"))).To(Succeed())
			dispatch(r, http.MethodGet, "/a")
			Expect(r.Register(http.MethodGet, "/b", named("b"))).To(MatchError(router.ErrRouterFrozen))
		})

		It("should list routes in registration order", func() {
			Expect(r.Register(http.MethodGet, "/b", named("b"))).To(Succeed())
			Expect(r.Register(http.MethodPost, "/a", named("a"))).To(Succeed())
			Expect(r.Routes()).To(Equal([]router.RouteInfo{
				{ID: "GET /b", Method: http.MethodGet, Pattern: "/b"},
				{ID: "POST /a", Method: http.MethodPost, Pattern: "/a"},
			}))
		})
	})

	Describe("Dispatch", func() {
		BeforeEach(func() {
			Expect(r.Register(http.MethodGet, "/users/{id}", named("param"))).To(Succeed())
			Expect(r.Register(http.MethodGet, "/users/me", named("literal"))).To(Succeed())
			Expect(r.Register(http.MethodGet, "/users/{id}/posts/{post}", named("nested"))).To(Succeed())
			Expect(r.Register(http.MethodGet, "/{section}/{id}", named("generic"))).To(Succeed())
			Expect(r.Register(http.MethodGet, "/files/{path...}", named("files"))).To(Succeed())
			Expect(r.Register(http.MethodGet, "/files/{dir}/index", named("index"))).To(Succeed())
			Expect(r.Register(http.MethodPost, "/users", named("create"))).To(Succeed())
			Expect(r.Register(http.MethodGet, "/", named("root"))).To(Succeed())
		})

		It("should prefer the literal route over a parameterised sibling", func() {
			Expect(decode(dispatch(r, http.MethodGet, "/users/me"))["route"]).To(Equal("literal"))
		})

		It("should bind parameters", func() {
			body := decode(dispatch(r, http.MethodGet, "/users/42/posts/7"))
			Expect(body["route"]).To(Equal("nested"))
			Expect(body["params"]).To(Equal(map[string]any{"id": "42", "post": "7"}))
		})

		It("should rank by literal count then declaration order", func() {
			Expect(decode(dispatch(r, http.MethodGet, "/users/42"))["route"]).To(Equal("param"))
			Expect(decode(dispatch(r, http.MethodGet, "/posts/42"))["route"]).To(Equal("generic"))
		})

		It("should capture the rest of the path with a catch-all", func() {
			body := decode(dispatch(r, http.MethodGet, "/files/a/b/c.txt"))
			Expect(body["route"]).To(Equal("files"))
			Expect(body["params"]).To(Equal(map[string]any{"path": "a/b/c.txt"}))
		})

		It("should prefer a non catch-all route with equal literals", func() {
			Expect(decode(dispatch(r, http.MethodGet, "/files/docs/index"))["route"]).To(Equal("index"))
		})

		It("should not match a catch-all against nothing", func() {
			Expect(decode(dispatch(r, http.MethodGet, "/files"))["route"]).To(BeNil())
		})

		It("should normalise slashes", func() {
			Expect(decode(dispatch(r, http.MethodGet, "//users//me/"))["route"]).To(Equal("literal"))
			Expect(decode(dispatch(r, http.MethodGet, "/"))["route"]).To(Equal("root"))
		})

		It("should answer 404 when nothing matches", func() {
			resp := dispatch(r, http.MethodGet, "/a/b/c")
			Expect(resp.Status).To(Equal(http.StatusNotFound))
			Expect(decode(resp)["error"]).To(Equal("not_found"))
		})

		It("should answer 405 with Allow when another method matches", func() {
			resp := dispatch(r, http.MethodDelete, "/users")
			Expect(resp.Status).To(Equal(http.StatusMethodNotAllowed))
			Expect(resp.Header.Get("Allow")).To(Equal("POST"))

			resp = dispatch(r, http.MethodPut, "/users/me")
			Expect(resp.Header.Get("Allow")).To(Equal("GET, HEAD"))
		})

		It("should serve HEAD from the GET route without a body", func() {
			get := dispatch(r, http.MethodGet, "/users/me")
			head := dispatch(r, http.MethodHead, "/users/me")

			Expect(head.Status).To(Equal(http.StatusOK))
			Expect(head.Body).To(BeEmpty())
			Expect(head.Header.Get("Content-Length")).To(Equal(get.ContentLength()))
			Expect(head.Header.Get("Content-Type")).To(Equal("application/json"))
		})

		It("should be safe for concurrent dispatch", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(dispatch(r, http.MethodGet, "/users/me").Status).To(Equal(http.StatusOK))
				}()
			}
			wg.Wait()
		})
	})

	Describe("Handler errors", func() {
		It("should render extraction errors as structured 400s", func() {
			h := extract.With(extract.PathInt("id"), func(req *web.Request, id int) (*web.Response, error) {
				return web.JSON(http.StatusOK, id), nil
			})
			Expect(r.Register(http.MethodGet, "/items/{id}", h)).To(Succeed())

			resp := dispatch(r, http.MethodGet, "/items/abc")
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			body := decode(resp)
			Expect(body["error"]).To(Equal("extraction_error"))
			Expect(body["field"]).To(Equal("id"))
		})

		It("should recover panics into a 500", func() {
			Expect(r.Register(http.MethodGet, "/boom", web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
				panic("kaboom")
			}))).To(Succeed())

			resp := dispatch(r, http.MethodGet, "/boom")
			Expect(resp.Status).To(Equal(http.StatusInternalServerError))
			Expect(string(resp.Body)).NotTo(ContainSubstring("kaboom"))
		})

		It("should treat a missing response as an internal error", func() {
			Expect(r.Register(http.MethodGet, "/nil", web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
				return nil, nil
			}))).To(Succeed())
			Expect(dispatch(r, http.MethodGet, "/nil").Status).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Middleware", func() {
		It("should run the route's chain around the handler with the route id set", func() {
			var seen string
			tag := middleware.Hooks{
				Before: func(req *web.Request) middleware.Decision {
					seen = req.GetString(web.ExtRouteID)
					return middleware.Continue(req)
				},
				After: func(req *web.Request, resp *web.Response) *web.Response {
					return resp.WithHeader("X-Chain", "yes")
				},
			}.Middleware()

			Expect(r.Register(http.MethodGet, "/orders/{id}", named("orders"), tag)).To(Succeed())

			resp := dispatch(r, http.MethodGet, "/orders/9")
			Expect(seen).To(Equal("GET /orders/{id}"))
			Expect(resp.Header.Get("X-Chain")).To(Equal("yes"))
		})
	})

	Describe("ServeHTTP", func() {
		It("should serve through net/http", func() {
			Expect(r.Register(http.MethodPost, "/echo", web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
				body, err := req.Body()
				if err != nil {
					return nil, err
				}
				return web.Bytes(http.StatusCreated, "text/plain", body), nil
			}))).To(Succeed())

			srv := httptest.NewServer(r)
			defer srv.Close()

			res, err := http.Post(srv.URL+"/echo", "text/plain", strings.NewReader("hello"))
			Expect(err).NotTo(HaveOccurred())
			defer res.Body.Close()

			body, _ := io.ReadAll(res.Body)
			Expect(res.StatusCode).To(Equal(http.StatusCreated))
			Expect(string(body)).To(Equal("hello"))
		})
	})
})
