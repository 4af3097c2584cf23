package network

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(nil)
	require.NotNil(t, client)
	assert.Equal(t, DefaultRequestTimeout, client.Timeout)
}

func TestSelfSignedAccepted(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := NewDefaultClientConfig()
	strict := NewClient(cfg)
	_, err := strict.Get(srv.URL)
	require.Error(t, err, "self-signed cert must be rejected by default")

	cfg = NewDefaultClientConfig()
	cfg.IgnoreTLSErrors = true
	lenient := NewClient(cfg)
	resp, err := lenient.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
