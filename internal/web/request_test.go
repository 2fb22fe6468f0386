package web_test

import (
	"context"
	"net/http"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/web"
)

var _ = Describe("Request", func() {
	Describe("NewRequest", func() {
		It("should normalise the path into segments", func() {
			req := web.NewRequest("get", "//users//42/", nil)
			Expect(req.Method).To(Equal(http.MethodGet))
			Expect(req.Path).To(Equal("/users/42"))
			Expect(req.Segments).To(Equal([]string{"users", "42"}))
		})

		It("should treat the root path as zero segments", func() {
			req := web.NewRequest(http.MethodGet, "/", nil)
			Expect(req.Path).To(Equal("/"))
			Expect(req.Segments).To(BeEmpty())
		})

		It("should parse the query string", func() {
			req := web.NewRequest(http.MethodGet, "/search?q=go&tag=a&tag=b", nil)
			Expect(req.Query.Get("q")).To(Equal("go"))
			Expect(req.Query.Values("tag")).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("Body", func() {
		It("should materialise the body once and return the same bytes", func() {
			req := web.NewRequest(http.MethodPost, "/", strings.NewReader("payload"))

			first, err := req.Body()
			Expect(err).NotTo(HaveOccurred())
			second, err := req.Body()
			Expect(err).NotTo(HaveOccurred())

			Expect(string(first)).To(Equal("payload"))
			Expect(second).To(Equal(first))
		})

		It("should be safe for concurrent readers", func() {
			req := web.NewRequest(http.MethodPost, "/", strings.NewReader("shared"))

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					b, err := req.Body()
					Expect(err).NotTo(HaveOccurred())
					Expect(string(b)).To(Equal("shared"))
				}()
			}
			wg.Wait()
		})

		It("should return an empty body for nil readers", func() {
			req := web.NewRequest(http.MethodGet, "/", nil)
			b, err := req.Body()
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(BeEmpty())
		})
	})

	Describe("Extensions", func() {
		It("should share metadata with derived copies", func() {
			req := web.NewRequest(http.MethodGet, "/", nil)
			derived := req.WithContext(context.Background())

			derived.Set(web.ExtClientID, "client-1")
			Expect(req.GetString(web.ExtClientID)).To(Equal("client-1"))
		})

		It("should return empty string for missing keys", func() {
			req := web.NewRequest(http.MethodGet, "/", nil)
			Expect(req.GetString("missing")).To(BeEmpty())
		})
	})

	Describe("Params", func() {
		It("should not leak parameters into the original request", func() {
			req := web.NewRequest(http.MethodGet, "/users/7", nil)
			bound := req.WithParams(map[string]string{"id": "7"})

			v, ok := bound.Param("id")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("7"))

			_, ok = req.Param("id")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Cookies", func() {
		It("should parse the cookie header", func() {
			req := web.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Cookie", "session=abc; theme=dark")

			c, err := req.Cookie("theme")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Value).To(Equal("dark"))
			Expect(req.Cookies()).To(HaveLen(2))
		})
	})
})
