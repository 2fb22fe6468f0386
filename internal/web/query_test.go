package web_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/web"
)

var _ = Describe("Query", func() {
	It("should keep keys in first-insertion order", func() {
		q := web.ParseQuery("b=1&a=2&b=3&c=")
		Expect(q.Keys()).To(Equal([]string{"b", "a", "c"}))
		Expect(q.Values("b")).To(Equal([]string{"1", "3"}))
	})

	It("should distinguish empty values from missing keys", func() {
		q := web.ParseQuery("flag=")
		Expect(q.Has("flag")).To(BeTrue())
		Expect(q.Get("flag")).To(BeEmpty())
		Expect(q.Has("other")).To(BeFalse())
	})

	It("should unescape keys and values", func() {
		q := web.ParseQuery("name=J%C3%BCrgen+M&x%20y=1")
		Expect(q.Get("name")).To(Equal("Jürgen M"))
		Expect(q.Get("x y")).To(Equal("1"))
	})

	It("should keep invalid escapes verbatim", func() {
		q := web.ParseQuery("bad=%zz")
		Expect(q.Get("bad")).To(Equal("%zz"))
	})

	It("should encode back in order", func() {
		q := web.ParseQuery("z=1&a=2&z=3")
		Expect(q.Encode()).To(Equal("z=1&z=3&a=2"))
	})

	It("should return copies from Values", func() {
		q := web.ParseQuery("a=1")
		vs := q.Values("a")
		vs[0] = "changed"
		Expect(q.Get("a")).To(Equal("1"))
	})
})
