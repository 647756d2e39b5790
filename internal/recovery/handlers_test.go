package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mozilla-ai/healthd/internal/domain"
)

type fakeResetter struct {
	calls int
	err   error
}

func (f *fakeResetter) Reset(_ context.Context) error {
	f.calls++
	return f.err
}

func TestPoolResetHandler(t *testing.T) {
	t.Parallel()

	ok := &fakeResetter{}
	h, err := NewPoolResetHandler(ok)
	require.NoError(t, err)
	require.NoError(t, h.Recover(context.Background(), dbHealth()))
	require.Equal(t, 1, ok.calls)

	failing := &fakeResetter{err: errors.New("connect refused")}
	h, err = NewPoolResetHandler(failing)
	require.NoError(t, err)
	require.ErrorContains(t, h.Recover(context.Background(), dbHealth()), "resetting connection pool: connect refused")

	_, err = NewPoolResetHandler(nil)
	require.Error(t, err)
}

func TestCommandHandler(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}

	tests := []struct {
		name    string
		script  string
		env     map[string]string
		errText string
	}{
		{
			name:   "component is described through the environment",
			script: `test "$HEALTHD_COMPONENT_ID" = db && test "$HEALTHD_COMPONENT_STATUS" = critical && test "$EXTRA" = yes`,
			env:    map[string]string{"EXTRA": "yes"},
		},
		{
			name:    "failure includes output",
			script:  `echo "service refused to restart"; exit 3`,
			errText: "service refused to restart",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, err := NewCommandHandler("sh", []string{"-c", tc.script}, tc.env, "")
			require.NoError(t, err)

			err = h.Recover(context.Background(), dbHealth())
			if tc.errText == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.errText)
		})
	}
}

func TestNewCommandHandler_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewCommandHandler("  ", nil, nil, "")
	require.Error(t, err)
}

func TestHTTPHandler(t *testing.T) {
	t.Parallel()

	requests := make(chan remediationRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body remediationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		requests <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	h, err := NewHTTPHandler(srv.URL+"/flush", "", map[string]string{"X-Token": "secret"}, srv.Client())
	require.NoError(t, err)

	health := domain.ComponentHealth{
		ID:        "cache",
		Type:      domain.ComponentTypeCache,
		Status:    domain.StatusDown,
		LastError: "ping: i/o timeout",
	}
	require.NoError(t, h.Recover(context.Background(), health))

	got := <-requests
	require.Equal(t, "cache", got.ComponentID)
	require.Equal(t, domain.ComponentTypeCache, got.ComponentType)
	require.Equal(t, domain.StatusDown, got.Status)
	require.Equal(t, "ping: i/o timeout", got.LastError)
}

func TestHTTPHandler_Non2xxFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "flush disabled", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	h, err := NewHTTPHandler(srv.URL, http.MethodPut, nil, srv.Client())
	require.NoError(t, err)

	err = h.Recover(context.Background(), dbHealth())
	require.ErrorContains(t, err, "returned 503: flush disabled")
}

func TestNewHTTPHandler_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPHandler("ftp://example.com", "", nil, nil)
	require.Error(t, err)
}
