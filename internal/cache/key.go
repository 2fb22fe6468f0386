package cache

import (
	"net/url"
	"sort"
	"strings"

	"github.com/angeloszaimis/routekit/internal/web"
)

// Keyer derives cache keys from requests. The key is the method, the
// normalised path, the sorted query subset and the values of the vary headers.
type Keyer struct {
	// VaryHeaders are folded into the key by lower-cased name.
	VaryHeaders []string
	// QueryKeys restricts which query parameters take part. Empty means all.
	QueryKeys []string
}

func NewKeyer(varyHeaders, queryKeys []string) Keyer {
	vary := make([]string, 0, len(varyHeaders))
	for _, h := range varyHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			vary = append(vary, h)
		}
	}
	sort.Strings(vary)

	return Keyer{
		VaryHeaders: vary,
		QueryKeys:   append([]string(nil), queryKeys...),
	}
}

func (k Keyer) Key(req *web.Request) string {
	var b strings.Builder

	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.Path)

	keys := k.QueryKeys
	if len(keys) == 0 {
		keys = req.Query.Keys()
	} else {
		keys = append([]string(nil), keys...)
	}
	sort.Strings(keys)

	sep := byte('?')
	for _, name := range keys {
		for _, v := range req.Query.Values(name) {
			b.WriteByte(sep)
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
			sep = '&'
		}
	}

	for _, h := range k.VaryHeaders {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(h))
		b.WriteByte('=')
		b.WriteString(strings.Join(req.Header.Values(h), ","))
	}

	return b.String()
}
