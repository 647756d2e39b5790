// Package output renders command results as text, JSON or YAML.
package output

import "io"

// Handler renders values of type T, or an error, in one output format.
type Handler[T any] interface {
	Writer() io.Writer
	HandleResult(item T) error
	HandleResults(items ...T) error
	HandleError(err error) error
}

// Printer lays out items for text output. Header and Footer bracket the items
// and receive the item count.
type Printer[T any] interface {
	Header(w io.Writer, count int)
	Item(w io.Writer, elem T) error
	Footer(w io.Writer, count int)
}

// ResultsPayload wraps several values under "results".
type ResultsPayload[T any] struct {
	Results []T `json:"results" yaml:"results"`
}

// ResultPayload wraps one value under "result".
type ResultPayload[T any] struct {
	Result T `json:"result" yaml:"result"`
}

// ErrorPayload carries an error message under "error".
type ErrorPayload struct {
	Error string `json:"error" yaml:"error"`
}
