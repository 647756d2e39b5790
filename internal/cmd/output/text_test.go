package output

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type samplePrinter struct {
	fail bool
}

func (p samplePrinter) Header(w io.Writer, count int) {
	_, _ = fmt.Fprintf(w, "%d items\n", count)
}

func (p samplePrinter) Item(w io.Writer, elem testSample) error {
	if p.fail {
		return errors.New("cannot print")
	}
	_, err := fmt.Fprintf(w, "- %d %s\n", elem.ID, elem.Name)
	return err
}

func (p samplePrinter) Footer(w io.Writer, _ int) {
	_, _ = io.WriteString(w, "done\n")
}

func TestTextHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		printer samplePrinter
		items   []testSample
		want    string
		wantErr string
	}{
		{
			name:  "items",
			items: []testSample{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}},
			want:  "2 items\n- 1 Alice\n- 2 Bob\ndone\n",
		},
		{
			name: "no items",
			want: "No items found\n",
		},
		{
			name:    "printer failure",
			printer: samplePrinter{fail: true},
			items:   []testSample{{ID: 1, Name: "Alice"}},
			wantErr: "cannot print",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			buf := &bytes.Buffer{}
			h := NewTextHandler[testSample](buf, tc.printer)

			err := h.HandleResults(tc.items...)
			if tc.wantErr != "" {
				require.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, buf.String())
		})
	}
}

func TestTextHandler_HandleError(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	h := NewTextHandler[testSample](buf, samplePrinter{})

	require.NoError(t, h.HandleError(errors.New("boom")))
	require.Equal(t, "Error: boom\n", buf.String())
}
