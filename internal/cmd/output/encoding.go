package output

import (
	"encoding/json"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

var _ Handler[any] = (*EncodingHandler[any])(nil)

// EncodingHandler serializes results and errors with a structured encoder (JSON or YAML).
// Payloads are wrapped under "result", "results" or "error".
type EncodingHandler[T any] struct {
	out    io.Writer
	encode func(w io.Writer, v any) error
}

// NewJSONHandler writes JSON indented by indentSpaces; zero writes compact JSON.
func NewJSONHandler[T any](w io.Writer, indentSpaces int) *EncodingHandler[T] {
	indent := strings.Repeat(" ", indentSpaces)
	return &EncodingHandler[T]{
		out: w,
		encode: func(w io.Writer, v any) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", indent)
			return enc.Encode(v)
		},
	}
}

// NewYAMLHandler writes YAML with nested nodes indented by indentSpaces.
func NewYAMLHandler[T any](w io.Writer, indentSpaces int) *EncodingHandler[T] {
	return &EncodingHandler[T]{
		out: w,
		encode: func(w io.Writer, v any) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(indentSpaces)
			if err := enc.Encode(v); err != nil {
				_ = enc.Close()
				return err
			}
			return enc.Close()
		},
	}
}

func (h *EncodingHandler[T]) Writer() io.Writer {
	return h.out
}

func (h *EncodingHandler[T]) HandleResult(item T) error {
	return h.encode(h.out, ResultPayload[T]{Result: item})
}

func (h *EncodingHandler[T]) HandleResults(items ...T) error {
	return h.encode(h.out, ResultsPayload[T]{Results: items})
}

func (h *EncodingHandler[T]) HandleError(err error) error {
	return h.encode(h.out, ErrorPayload{Error: err.Error()})
}
