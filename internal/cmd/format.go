package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/mozilla-ai/healthd/internal/cmd/output"
)

// OutputFormat selects how a command renders its results. It implements pflag.Value.
type OutputFormat string

// OutputFormats is a set of formats, printed comma separated.
type OutputFormats []OutputFormat

const (
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
	FormatText OutputFormat = "text"
)

// AllowedOutputFormats returns the supported formats in lexical order.
func AllowedOutputFormats() OutputFormats {
	formats := OutputFormats{FormatText, FormatJSON, FormatYAML}
	slices.Sort(formats)
	return formats
}

func (f *OutputFormats) String() string {
	names := make([]string, 0, len(*f))
	for _, of := range *f {
		names = append(names, of.String())
	}
	return strings.Join(names, ", ")
}

func (f *OutputFormat) String() string {
	return strings.ToLower(string(*f))
}

// Set accepts any supported format name, ignoring case and surrounding space.
func (f *OutputFormat) Set(v string) error {
	allowed := AllowedOutputFormats()
	candidate := OutputFormat(strings.ToLower(strings.TrimSpace(v)))
	if !slices.Contains(allowed, candidate) {
		return fmt.Errorf("invalid format '%s', must be one of %v", candidate, allowed.String())
	}
	*f = candidate
	return nil
}

func (f *OutputFormat) Type() string {
	return "format"
}

// NewOutputHandler returns the handler rendering results of type T in format f.
// The printer is only used for text output.
func NewOutputHandler[T any](f OutputFormat, w io.Writer, p output.Printer[T]) (output.Handler[T], error) {
	const indent = 2

	switch f {
	case FormatJSON:
		return output.NewJSONHandler[T](w, indent), nil
	case FormatYAML:
		return output.NewYAMLHandler[T](w, indent), nil
	case FormatText:
		if p == nil {
			return nil, fmt.Errorf("text output requires a printer")
		}
		return output.NewTextHandler(w, p), nil
	}
	return nil, fmt.Errorf("unsupported output format '%s'", f)
}
