package ratelimit

import (
	"net"
	"strings"

	"github.com/angeloszaimis/routekit/internal/web"
)

// KeyFunc identifies the client a request is charged to.
type KeyFunc func(req *web.Request) string

// ClientKey resolves the client identity in order: an identity already
// attached to the request, the configured header, the first X-Forwarded-For
// hop when trusted, then the remote host.
func ClientKey(keyHeader string, trustForwardedFor bool) KeyFunc {
	return func(req *web.Request) string {
		if id := req.GetString(web.ExtClientID); id != "" {
			return id
		}

		if keyHeader != "" {
			if v := strings.TrimSpace(req.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustForwardedFor {
			if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		addr := strings.TrimSpace(req.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return "unknown"
	}
}
