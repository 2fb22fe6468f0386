package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/angeloszaimis/routekit/internal/web"
)

var ErrInvalidPattern = errors.New("invalid route pattern")

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segCatchAll
)

type segment struct {
	kind  segmentKind
	value string // literal text or parameter name
}

type pattern struct {
	raw      string
	segments []segment
	literals int
	catchAll bool
}

func parsePattern(raw string) (*pattern, error) {
	if !strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, raw)
	}

	parts := web.SplitPath(raw)
	p := &pattern{raw: raw, segments: make([]segment, 0, len(parts))}
	seen := make(map[string]struct{}, len(parts))

	for i, part := range parts {
		if !strings.HasPrefix(part, "{") {
			if strings.ContainsAny(part, "{}") {
				return nil, fmt.Errorf("%w: %q has a stray brace in %q", ErrInvalidPattern, raw, part)
			}
			p.segments = append(p.segments, segment{kind: segLiteral, value: part})
			p.literals++
			continue
		}

		if !strings.HasSuffix(part, "}") {
			return nil, fmt.Errorf("%w: %q has an unclosed parameter %q", ErrInvalidPattern, raw, part)
		}
		name := part[1 : len(part)-1]
		kind := segParam
		if rest, ok := strings.CutSuffix(name, "..."); ok {
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w: %q catch-all must be the last segment", ErrInvalidPattern, raw)
			}
			name, kind = rest, segCatchAll
			p.catchAll = true
		}
		if !validName(name) {
			return nil, fmt.Errorf("%w: %q has a bad parameter name %q", ErrInvalidPattern, raw, name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q repeats parameter %q", ErrInvalidPattern, raw, name)
		}
		seen[name] = struct{}{}
		p.segments = append(p.segments, segment{kind: kind, value: name})
	}

	return p, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// shape identifies a pattern regardless of its parameter names, so /u/{id}
// and /u/{name} collide.
func (p *pattern) shape() string {
	var b strings.Builder
	for _, s := range p.segments {
		b.WriteByte('/')
		switch s.kind {
		case segLiteral:
			b.WriteString(s.value)
		case segParam:
			b.WriteString("{}")
		case segCatchAll:
			b.WriteString("{...}")
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// match returns the captured parameters when path fits the pattern.
func (p *pattern) match(path []string) (map[string]string, bool) {
	if p.catchAll {
		if len(path) < len(p.segments) {
			return nil, false
		}
	} else if len(path) != len(p.segments) {
		return nil, false
	}

	var params map[string]string
	for i, s := range p.segments {
		switch s.kind {
		case segLiteral:
			if path[i] != s.value {
				return nil, false
			}
		case segParam:
			if params == nil {
				params = make(map[string]string, len(p.segments))
			}
			params[s.value] = path[i]
		case segCatchAll:
			if params == nil {
				params = make(map[string]string, len(p.segments))
			}
			params[s.value] = strings.Join(path[i:], "/")
		}
	}
	return params, true
}
