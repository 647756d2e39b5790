package output

import (
	"fmt"
	"io"
)

var _ Handler[any] = (*TextHandler[any])(nil)

// TextHandler lays items out with a Printer. An empty result prints a single notice line.
type TextHandler[T any] struct {
	out     io.Writer
	printer Printer[T]
}

func NewTextHandler[T any](w io.Writer, p Printer[T]) *TextHandler[T] {
	return &TextHandler[T]{out: w, printer: p}
}

func (h *TextHandler[T]) Writer() io.Writer {
	return h.out
}

func (h *TextHandler[T]) HandleResult(item T) error {
	return h.HandleResults(item)
}

func (h *TextHandler[T]) HandleResults(items ...T) error {
	n := len(items)
	if n == 0 {
		_, err := io.WriteString(h.out, "No items found\n")
		return err
	}

	h.printer.Header(h.out, n)
	for _, it := range items {
		if err := h.printer.Item(h.out, it); err != nil {
			return err
		}
	}
	h.printer.Footer(h.out, n)
	return nil
}

func (h *TextHandler[T]) HandleError(err error) error {
	_, werr := fmt.Fprintf(h.out, "Error: %s\n", err)
	return werr
}
