package web

import (
	"net/url"
	"strings"
)

// Query is an ordered multi-map of query parameters. Keys keep the order in
// which they first appeared and each key keeps its values in insertion order.
type Query struct {
	keys   []string
	values map[string][]string
}

// ParseQuery parses a raw query string. Pairs whose escapes are invalid are
// kept verbatim instead of being dropped.
func ParseQuery(raw string) Query {
	var q Query

	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}

		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}

		q.Add(key, value)
	}

	return q
}

// Add appends a value for key.
func (q *Query) Add(key, value string) {
	if q.values == nil {
		q.values = make(map[string][]string)
	}
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = append(q.values[key], value)
}

// Get returns the first value for key, or "" when absent.
func (q Query) Get(key string) string {
	if vs := q.values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has reports whether key is present, even with an empty value.
func (q Query) Has(key string) bool {
	_, ok := q.values[key]
	return ok
}

// Values returns a copy of every value recorded for key.
func (q Query) Values(key string) []string {
	vs := q.values[key]
	if vs == nil {
		return nil
	}
	out := make([]string, len(vs))
	copy(out, vs)
	return out
}

// Keys returns the keys in first-insertion order.
func (q Query) Keys() []string {
	out := make([]string, len(q.keys))
	copy(out, q.keys)
	return out
}

func (q Query) Len() int {
	return len(q.keys)
}

// Encode renders the query back into its wire form, keeping key order.
func (q Query) Encode() string {
	var b strings.Builder
	for _, k := range q.keys {
		for _, v := range q.values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
