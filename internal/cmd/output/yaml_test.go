package output

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestYAMLHandler_HandleResults(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	h := NewYAMLHandler[testSample](buf, 2)
	require.Equal(t, buf, h.Writer())

	err := h.HandleResults(testSample{ID: 1, Name: "Alice"}, testSample{ID: 2, Name: "Bob"})
	require.NoError(t, err)

	expected := `results:
  - id: 1
    name: Alice
  - id: 2
    name: Bob
`
	require.Equal(t, expected, buf.String())
}

func TestYAMLHandler_HandleResult(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	h := NewYAMLHandler[testSample](buf, 2)

	require.NoError(t, h.HandleResult(testSample{ID: 3, Name: "cache"}))
	require.Equal(t, "result:\n  id: 3\n  name: cache\n", buf.String())
}

func TestYAMLHandler_HandleError(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	h := NewYAMLHandler[testSample](buf, 2)

	require.NoError(t, h.HandleError(errors.New("boom")))
	require.Equal(t, "error: boom\n", buf.String())
}
