package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func backend(t *testing.T, keysStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/getmsg/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"MESSAGE":"Welcome ` + r.URL.Query().Get("msg") + `"}`))
	})
	mux.HandleFunc("/api/keys", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(keysStatus)
		_, _ = w.Write([]byte(`{"MESSAGE":"Keys received: ` + in["acckey"] + ` and ` + in["seckey"] + `"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunPasses(t *testing.T) {
	srv := backend(t, http.StatusOK)
	var out bytes.Buffer

	require.NoError(t, run([]string{"--base-url", srv.URL, "--timeout", "2s"}, noEnv, &out))
	assert.Contains(t, out.String(), "PASS get message")
	assert.Contains(t, out.String(), "PASS post keys")
	assert.Contains(t, out.String(), "All 2 checks passed against "+srv.URL)
}

func TestRunBaseURLFromPort(t *testing.T) {
	srv := backend(t, http.StatusOK)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	lookup := func(key string) (string, bool) {
		if key == "PORT" {
			return u.Port(), true
		}
		return "", false
	}
	var out bytes.Buffer

	require.NoError(t, run(nil, lookup, &out))
	assert.Contains(t, out.String(), "against http://localhost:"+u.Port())
}

func TestRunReportsFailedChecks(t *testing.T) {
	srv := backend(t, http.StatusInternalServerError)
	var out bytes.Buffer

	err := run([]string{"--base-url", srv.URL}, noEnv, &out)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 checks failed", err.Error())
	assert.Contains(t, out.String(), "PASS get message")
	assert.True(t, strings.Contains(out.String(), "FAIL post keys"), out.String())
}

func TestRunRequiresBaseURL(t *testing.T) {
	err := run(nil, noEnv, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL is required")
}
