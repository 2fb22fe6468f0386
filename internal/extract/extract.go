package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/routekit/internal/web"
)

// Extractor derives a typed value from a request. Extractors never mutate the
// request, so calling one twice yields the same result.
type Extractor[T any] func(req *web.Request) (T, error)

func PathString(name string) Extractor[string] {
	return func(req *web.Request) (string, error) {
		v, ok := req.Param(name)
		if !ok {
			return "", missing(SourcePath, name, "string")
		}
		return v, nil
	}
}

func PathInt(name string) Extractor[int] {
	return func(req *web.Request) (int, error) {
		v, ok := req.Param(name)
		if !ok {
			return 0, missing(SourcePath, name, "integer")
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, mismatch(SourcePath, name, "integer", err)
		}
		return n, nil
	}
}

func QueryString(name string) Extractor[string] {
	return func(req *web.Request) (string, error) {
		if !req.Query.Has(name) {
			return "", missing(SourceQuery, name, "string")
		}
		return req.Query.Get(name), nil
	}
}

// QueryStringOr never fails; def is returned when the parameter is absent.
func QueryStringOr(name, def string) Extractor[string] {
	return func(req *web.Request) (string, error) {
		if !req.Query.Has(name) {
			return def, nil
		}
		return req.Query.Get(name), nil
	}
}

func QueryInt(name string) Extractor[int] {
	return func(req *web.Request) (int, error) {
		if !req.Query.Has(name) {
			return 0, missing(SourceQuery, name, "integer")
		}
		n, err := strconv.Atoi(req.Query.Get(name))
		if err != nil {
			return 0, mismatch(SourceQuery, name, "integer", err)
		}
		return n, nil
	}
}

// QueryIntOr returns def when the parameter is absent but still rejects
// values that are present and not integers.
func QueryIntOr(name string, def int) Extractor[int] {
	return func(req *web.Request) (int, error) {
		if !req.Query.Has(name) {
			return def, nil
		}
		return QueryInt(name)(req)
	}
}

// QueryBool treats a bare flag ("?verbose") as true.
func QueryBool(name string) Extractor[bool] {
	return func(req *web.Request) (bool, error) {
		if !req.Query.Has(name) {
			return false, nil
		}
		raw := req.Query.Get(name)
		if raw == "" {
			return true, nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return false, mismatch(SourceQuery, name, "boolean", err)
		}
		return b, nil
	}
}

// Header extracts a required header.
func Header(name string) Extractor[string] {
	return func(req *web.Request) (string, error) {
		v := strings.TrimSpace(req.Header.Get(name))
		if v == "" {
			return "", missing(SourceHeader, http.CanonicalHeaderKey(name), "string")
		}
		return v, nil
	}
}

func Cookie(name string) Extractor[string] {
	return func(req *web.Request) (string, error) {
		c, err := req.Cookie(name)
		if err != nil {
			return "", missing(SourceCookie, name, "string")
		}
		return c.Value, nil
	}
}

// Bytes returns the raw body.
func Bytes() Extractor[[]byte] {
	return func(req *web.Request) ([]byte, error) {
		b, err := req.Body()
		if err != nil {
			return nil, &ExtractionError{Kind: MalformedBody, Source: SourceBody, Err: err}
		}
		return b, nil
	}
}

// JSON decodes the body into a fresh T on every call.
func JSON[T any]() Extractor[T] {
	return func(req *web.Request) (T, error) {
		var out T

		b, err := req.Body()
		if err != nil {
			return out, &ExtractionError{Kind: MalformedBody, Source: SourceBody, Expected: "json", Err: err}
		}
		if len(bytes.TrimSpace(b)) == 0 {
			return out, missing(SourceBody, "", "json")
		}

		if err := json.Unmarshal(b, &out); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return out, mismatch(SourceBody, typeErr.Field, typeErr.Type.String(), err)
			}
			return out, &ExtractionError{Kind: MalformedBody, Source: SourceBody, Expected: "json", Err: err}
		}

		return out, nil
	}
}

// Validated decodes a JSON body and runs its ozzo-validation rules.
func Validated[T validation.Validatable]() Extractor[T] {
	decode := JSON[T]()
	return func(req *web.Request) (T, error) {
		v, err := decode(req)
		if err != nil {
			return v, err
		}
		if err := v.Validate(); err != nil {
			return v, &ExtractionError{Kind: InvalidValue, Source: SourceBody, Expected: "valid payload", Err: err}
		}
		return v, nil
	}
}

// Form parses an application/x-www-form-urlencoded body.
func Form() Extractor[url.Values] {
	return func(req *web.Request) (url.Values, error) {
		mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/x-www-form-urlencoded" {
			return nil, mismatch(SourceBody, "", "application/x-www-form-urlencoded", err)
		}

		b, err := req.Body()
		if err != nil {
			return nil, &ExtractionError{Kind: MalformedBody, Source: SourceBody, Err: err}
		}

		values, err := url.ParseQuery(string(b))
		if err != nil {
			return nil, &ExtractionError{Kind: MalformedBody, Source: SourceBody, Expected: "form", Err: err}
		}
		return values, nil
	}
}
