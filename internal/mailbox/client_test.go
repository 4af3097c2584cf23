package mailbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bizmint-cli/internal/config"
	"github.com/xkilldash9x/bizmint-cli/internal/network"
)

func newTestClient(t *testing.T, handler http.Handler, domains ...string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.MailConfig{
		APIBase:        srv.URL,
		AdminKey:       "test-key",
		Domains:        domains,
		SourceSentinel: "noreply@signup.example.com",
		PollInterval:   10 * time.Millisecond,
	}
	return NewClient(cfg, network.NewClient(nil), zap.NewNop()), srv
}

func TestAllocateGeneratedPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate-email", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"success":true,"data":{"email":"fresh@box.example.com"}}`))
	})

	client, _ := newTestClient(t, mux)
	email, err := client.Allocate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "fresh@box.example.com", email)
}

func TestAllocateFallsBackToAdmin(t *testing.T) {
	var adminHit atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate-email", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"quota exceeded"}`))
	})
	mux.HandleFunc("/admin/new_address", func(w http.ResponseWriter, r *http.Request) {
		adminHit.Store(true)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-admin-auth"))
		w.Write([]byte(`{"address":"xj29ab31ke@box.example.com"}`))
	})

	client, _ := newTestClient(t, mux, "box.example.com")
	email, err := client.Allocate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "xj29ab31ke@box.example.com", email)
	assert.True(t, adminHit.Load())
}

func TestAllocateBothPathsExhausted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	// No configured domains, so the admin fallback is unusable too.
	client, _ := newTestClient(t, mux)
	_, err := client.Allocate(context.Background(), "")
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestAllocateNotConfigured(t *testing.T) {
	client := NewClient(config.MailConfig{}, network.NewClient(nil), zap.NewNop())
	_, err := client.Allocate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAwaitCodeIgnoresBaselineMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/emails", func(w http.ResponseWriter, r *http.Request) {
		// The newest message never changes: id stays at the baseline.
		w.Write([]byte(`{"emails":[{"id":"m1","body":"your code is 482913"}]}`))
	})
	mux.HandleFunc("/admin/mails", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	client, _ := newTestClient(t, mux)
	_, err := client.AwaitCode(context.Background(), "a@box.example.com", 100*time.Millisecond, "m1")
	assert.ErrorIs(t, err, ErrCodeTimeout)
}

func TestAwaitCodeReturnsNewMessage(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/emails", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a@box.example.com", r.URL.Query().Get("email"))
		if polls.Add(1) <= 2 {
			// First fetch establishes the baseline, second still sees it.
			w.Write([]byte(`{"data":{"emails":[{"id":"m1","html":"<strong>OLDOLD</strong>"}]}}`))
			return
		}
		w.Write([]byte(`{"data":{"emails":[{"id":"m2","html":"<p>noise</p><strong>AB12C9</strong>"}]}}`))
	})
	mux.HandleFunc("/admin/mails", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	client, _ := newTestClient(t, mux)
	code, err := client.AwaitCode(context.Background(), "a@box.example.com", 2*time.Second, "")
	require.NoError(t, err)
	assert.Equal(t, "AB12C9", code)
}

func TestAwaitCodeAdminFeedPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"emails":[]}`))
	})
	mux.HandleFunc("/admin/mails", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-admin-auth"))
		w.Write([]byte(`{"results":[
			{"address":"other@box.example.com","source":"noreply@signup.example.com","metadata":"{\"ai_extract\":{\"result\":\"WRONG1\"}}"},
			{"address":"a@box.example.com","source":"spam@elsewhere.com","metadata":"{\"ai_extract\":{\"result\":\"WRONG2\"}}"},
			{"address":"a@box.example.com","source":"noreply@signup.example.com","metadata":"{\"ai_extract\":{\"result\":\"QQ12WW\"}}"}
		]}`))
	})

	client, _ := newTestClient(t, mux)
	code, err := client.AwaitCode(context.Background(), "a@box.example.com", 2*time.Second, "none")
	require.NoError(t, err)
	assert.Equal(t, "QQ12WW", code)
}

func TestPoolFIFO(t *testing.T) {
	pool := NewPool("first@x.com", "second@x.com")
	pool.Push("third@x.com")
	assert.Equal(t, 3, pool.Len())

	for _, want := range []string{"first@x.com", "second@x.com", "third@x.com"} {
		got, ok := pool.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := pool.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, pool.Len())
}
