package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	t.Cleanup(s.Close)
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func testServerSequence(t *testing.T, statuses []int, headers []http.Header, bodyOK any) *ipv4Server {
	t.Helper()
	var idx int32
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		if st >= 200 && st < 300 {
			w.WriteHeader(st)
			_ = json.NewEncoder(w).Encode(bodyOK)
			return
		}
		w.WriteHeader(st)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "upstream says no"}})
	}))
}

func okBody(content string) map[string]any {
	return map[string]any{
		"id": "chatcmpl-1",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
	}
}

func testRequest() GenerateRequest {
	return GenerateRequest{
		Model:    "gemini-2.5-flash",
		Messages: []Message{{Role: "user", Content: "hello"}},
	}
}

func TestGenerateSuccess(t *testing.T) {
	srv := testServerSequence(t, []int{200}, nil, okBody("hi there"))
	c := NewClient("key", srv.URL, 5*time.Second, 1, time.Millisecond, time.Millisecond)

	resp, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content())
	assert.Equal(t, 17, resp.Usage.TotalTokens)
}

func TestGenerateRetriesServerError(t *testing.T) {
	srv := testServerSequence(t, []int{500, 200}, nil, okBody("recovered"))
	c := NewClient("key", srv.URL, 5*time.Second, 3, time.Millisecond, 5*time.Millisecond)

	resp, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content())
}

func TestGenerateRateLimitHonorsRetryAfter(t *testing.T) {
	headers := []http.Header{{"Retry-After": []string{"0"}}, nil}
	srv := testServerSequence(t, []int{429, 200}, headers, okBody("after wait"))
	c := NewClient("key", srv.URL, 5*time.Second, 3, time.Millisecond, 5*time.Millisecond)

	resp, err := c.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "after wait", resp.Content())
}

func TestGenerateAuthErrorNotRetried(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad key"}})
	}))
	c := NewClient("key", srv.URL, 5*time.Second, 3, time.Millisecond, 5*time.Millisecond)

	_, err := c.Generate(context.Background(), testRequest())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateExhaustsRetries(t *testing.T) {
	srv := testServerSequence(t, []int{503, 503, 503}, nil, nil)
	c := NewClient("key", srv.URL, 5*time.Second, 3, time.Millisecond, 5*time.Millisecond)

	_, err := c.Generate(context.Background(), testRequest())
	var srvErr *ServerError
	require.ErrorAs(t, err, &srvErr)
}

func TestGenerateRequiresKeyAndModel(t *testing.T) {
	c := NewClient("", "http://127.0.0.1:1", time.Second, 1, time.Millisecond, time.Millisecond)
	_, err := c.Generate(context.Background(), testRequest())
	assert.Error(t, err)

	c = NewClient("key", "http://127.0.0.1:1", time.Second, 1, time.Millisecond, time.Millisecond)
	_, err = c.Generate(context.Background(), GenerateRequest{})
	assert.Error(t, err)
}

func TestGenerateRespectsContextCancel(t *testing.T) {
	srv := testServerSequence(t, []int{500}, nil, nil)
	c := NewClient("key", srv.URL, 5*time.Second, 5, 50*time.Millisecond, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Generate(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaGenerateSuccess(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "local answer"},
			"done":              true,
			"prompt_eval_count": 8,
			"eval_count":        4,
		})
	}))
	c := NewOllamaClient(srv.URL, 5*time.Second, 1, time.Millisecond, time.Millisecond)

	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model:    "llama3.2",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local answer", resp.Content())
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestOllamaModelNotFound(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model not pulled"})
	}))
	c := NewOllamaClient(srv.URL, 5*time.Second, 2, time.Millisecond, time.Millisecond)

	_, err := c.Generate(context.Background(), GenerateRequest{
		Model:    "missing",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	var nf *ModelNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestOllamaUnreachable(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:1", 200*time.Millisecond, 1, time.Millisecond, time.Millisecond)
	_, err := c.Generate(context.Background(), GenerateRequest{
		Model:    "llama3.2",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
}

func TestRuntimeRegistry(t *testing.T) {
	for _, name := range []string{ProviderGemini, ProviderOpenRouter, ProviderOllama} {
		rt, ok := NewRuntime(name, RuntimeConfig{APIKey: "k"})
		assert.True(t, ok, name)
		assert.NotNil(t, rt, name)
	}
	_, ok := NewRuntime("nope", RuntimeConfig{})
	assert.False(t, ok)
}
