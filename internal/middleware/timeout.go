package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angeloszaimis/routekit/internal/web"
)

// Timeout bounds how long inner links may take. On expiry the request fails
// with web.ErrTimeout; the inner links see a cancelled context and their late
// result is dropped.
func Timeout(d time.Duration) Middleware {
	return func(next web.Handler) web.Handler {
		if d <= 0 {
			return next
		}
		return web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
			ctx, cancel := context.WithTimeout(req.Context(), d)
			defer cancel()

			type result struct {
				resp *web.Response
				err  error
			}
			ch := make(chan result, 1)

			go func() {
				defer func() {
					if r := recover(); r != nil {
						ch <- result{err: fmt.Errorf("panic: %v", r)}
					}
				}()
				resp, err := next.Handle(req.WithContext(ctx))
				ch <- result{resp: resp, err: err}
			}()

			select {
			case res := <-ch:
				return res.resp, res.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, fmt.Errorf("%w: no response within %s", web.ErrTimeout, d)
				}
				return nil, ctx.Err()
			}
		})
	}
}
