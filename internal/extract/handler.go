package extract

import (
	"github.com/angeloszaimis/routekit/internal/web"
)

// With adapts a function taking one extracted value into a web.Handler. An
// extraction failure is returned as the handler error and fn is not called.
func With[A any](a Extractor[A], fn func(req *web.Request, a A) (*web.Response, error)) web.Handler {
	return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
		va, err := a(req)
		if err != nil {
			return nil, err
		}
		return fn(req, va)
	})
}

// With2 is With for two extracted values, evaluated left to right.
func With2[A, B any](a Extractor[A], b Extractor[B], fn func(req *web.Request, a A, b B) (*web.Response, error)) web.Handler {
	return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
		va, err := a(req)
		if err != nil {
			return nil, err
		}
		vb, err := b(req)
		if err != nil {
			return nil, err
		}
		return fn(req, va, vb)
	})
}
