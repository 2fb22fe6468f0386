package extract

import (
	"fmt"
	"net/http"

	"github.com/angeloszaimis/routekit/internal/web"
)

// Kind classifies why an extraction failed.
type Kind string

const (
	MissingField  Kind = "missing_field"
	TypeMismatch  Kind = "type_mismatch"
	MalformedBody Kind = "malformed_body"
	InvalidValue  Kind = "invalid_value"
)

// Source names the part of the request an extractor reads.
type Source string

const (
	SourcePath   Source = "path"
	SourceQuery  Source = "query"
	SourceHeader Source = "header"
	SourceBody   Source = "body"
	SourceCookie Source = "cookie"
)

// ExtractionError carries enough context for the pipeline to answer with a
// structured 4xx response without involving the handler.
type ExtractionError struct {
	Kind     Kind
	Source   Source
	Field    string
	Expected string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Source, e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" %q", e.Field)
	}
	if e.Expected != "" {
		msg += ": expected " + e.Expected
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the web.ErrExtraction kind and the underlying cause.
func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{web.ErrExtraction}
	}
	return []error{web.ErrExtraction, e.Err}
}

func (e *ExtractionError) Details() map[string]string {
	d := map[string]string{
		"kind":   string(e.Kind),
		"source": string(e.Source),
	}
	if e.Field != "" {
		d["field"] = e.Field
	}
	if e.Expected != "" {
		d["expected"] = e.Expected
	}
	return d
}

// StatusCode answers 422 for values that parsed but failed validation.
func (e *ExtractionError) StatusCode() int {
	if e.Kind == InvalidValue {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func missing(src Source, field, expected string) error {
	return &ExtractionError{Kind: MissingField, Source: src, Field: field, Expected: expected}
}

func mismatch(src Source, field, expected string, err error) error {
	return &ExtractionError{Kind: TypeMismatch, Source: src, Field: field, Expected: expected, Err: err}
}
