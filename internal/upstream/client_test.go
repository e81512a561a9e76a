package upstream

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/logging"
	"github.com/Davincible/toolbridge/internal/providers"
)

func newTestClient(attempts int, timeout time.Duration) *Client {
	return NewClient(Options{Attempts: attempts, Timeout: timeout}, logging.Discard())
}

func openAIProvider(url string) providers.Provider {
	return providers.Provider{
		Name:    "test",
		BaseURL: url,
		APIKey:  "sk-test",
		Headers: map[string]string{"X-Org": "acme"},
		Format:  config.FormatOpenAI,
	}
}

func writeChat(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func TestSend_OpenAI(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "acme", r.Header.Get("X-Org"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeChat(w, "Hello there")
	}))
	defer srv.Close()

	topP := 0.9
	text, err := newTestClient(1, time.Second).Send(context.Background(), openAIProvider(srv.URL+"/v1"), Call{
		Model:       "gpt-test",
		Prompt:      "User: hi\nAssistant:",
		Temperature: 0.7,
		TopP:        &topP,
		MaxTokens:   100,
		Stop:        []string{"User:"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)

	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, 0.7, got["temperature"])
	assert.Equal(t, 0.9, got["top_p"])
	assert.Equal(t, float64(100), got["max_tokens"])
	assert.Equal(t, []any{"User:"}, got["stop"])
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "User: hi\nAssistant:"}}, got["messages"])
}

func TestSend_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(3, time.Second).Send(context.Background(), openAIProvider(srv.URL), Call{Model: "m", Prompt: "p"})
	require.Error(t, err)

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.Attempts)
	assert.Equal(t, "test", retryErr.Provider)
	assert.Equal(t, int32(3), hits.Load())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestSend_SucceedsAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		case 2:
			_, _ = w.Write([]byte("not json"))
		default:
			writeChat(w, "third time lucky")
		}
	}))
	defer srv.Close()

	text, err := newTestClient(3, time.Second).Send(context.Background(), openAIProvider(srv.URL), Call{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", text)
	assert.Equal(t, int32(3), hits.Load())
}

func TestSend_EmptyCompletionIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeChat(w, "  ")
	}))
	defer srv.Close()

	_, err := newTestClient(2, time.Second).Send(context.Background(), openAIProvider(srv.URL), Call{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSend_TimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestClient(2, 50*time.Millisecond).Send(context.Background(), openAIProvider(srv.URL), Call{Model: "m", Prompt: "p"})
	require.Error(t, err)

	var retryErr *RetryError
	assert.ErrorAs(t, err, &retryErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), hits.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestSend_ParentCancelStopsRetrying(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Options{Attempts: 5, Timeout: time.Second, Backoff: FixedBackoff{Delay: time.Minute}}, logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, openAIProvider(srv.URL), Call{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var retryErr *RetryError
	assert.False(t, errors.As(err, &retryErr), "cancellation is not an exhausted retry")
	assert.Equal(t, int32(1), hits.Load())
}

func TestSend_DecompressesBodies(t *testing.T) {
	payload := `{"choices":[{"message":{"content":"compressed hello"}}]}`

	testCases := []struct {
		name     string
		encoding string
		write    func(w http.ResponseWriter)
	}{
		{
			name:     "brotli",
			encoding: "br",
			write: func(w http.ResponseWriter) {
				bw := brotli.NewWriter(w)
				_, _ = bw.Write([]byte(payload))
				_ = bw.Close()
			},
		},
		{
			name:     "gzip",
			encoding: "gzip",
			write: func(w http.ResponseWriter) {
				gw := gzip.NewWriter(w)
				_, _ = gw.Write([]byte(payload))
				_ = gw.Close()
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), tc.encoding)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Content-Encoding", tc.encoding)
				tc.write(w)
			}))
			defer srv.Close()

			text, err := newTestClient(1, time.Second).Send(context.Background(), openAIProvider(srv.URL), Call{Model: "m", Prompt: "p"})
			require.NoError(t, err)
			assert.Equal(t, "compressed hello", text)
		})
	}
}

func TestSend_Completion(t *testing.T) {
	testCases := []struct {
		name         string
		responsePath string
		contentType  string
		body         string
		expected     string
	}{
		{"openai legacy", "", "application/json", `{"choices":[{"text":"from choices"}]}`, "from choices"},
		{"completion key", "", "application/json", `{"completion":"from completion"}`, "from completion"},
		{"content key", "", "application/json", `{"content":"from content"}`, "from content"},
		{"response key", "", "application/json", `{"response":"from response"}`, "from response"},
		{"custom path", "data.outputs.0.generated", "application/json", `{"data":{"outputs":[{"generated":"custom"}]}}`, "custom"},
		{"plain text", "", "text/plain; charset=utf-8", "just text", "just text"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/completions", r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := providers.Provider{Name: "local", BaseURL: srv.URL, Format: config.FormatCompletion, ResponsePath: tc.responsePath}
			text, err := newTestClient(1, time.Second).Send(context.Background(), p, Call{Model: "llama", Prompt: "User: hi"})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, text)
			assert.Equal(t, "User: hi", got["prompt"])
			assert.Equal(t, "llama", got["model"])
		})
	}
}

func TestExtractCompletion_Errors(t *testing.T) {
	_, err := extractCompletion([]byte("{"), "")
	assert.Error(t, err)

	_, err = extractCompletion([]byte(`{"other":"x"}`), "")
	assert.Error(t, err)

	_, err = extractCompletion([]byte(`{"choices":[{"text":5}]}`), "choices.0.text")
	assert.Error(t, err, "non-string values are rejected")
}

func TestSend_Anthropic(t *testing.T) {
	var gotKey, gotHeader string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		gotKey = r.Header.Get("X-Api-Key")
		gotHeader = r.Header.Get("X-Org")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1",
			"type":"message",
			"role":"assistant",
			"model":"claude-test",
			"content":[{"type":"text","text":"Hello "},{"type":"text","text":"from Claude"}],
			"stop_reason":"end_turn",
			"stop_sequence":"",
			"usage":{"input_tokens":5,"output_tokens":3}
		}`))
	}))
	defer srv.Close()

	p := providers.Provider{
		Name:    "anthropic",
		BaseURL: srv.URL,
		APIKey:  "ant-key",
		Headers: map[string]string{"X-Org": "acme"},
		Format:  config.FormatAnthropic,
	}
	text, err := newTestClient(1, 5*time.Second).Send(context.Background(), p, Call{Model: "claude-test", Prompt: "hi", Temperature: 0.7, MaxTokens: 64})
	require.NoError(t, err)

	assert.Equal(t, "Hello from Claude", text)
	assert.Equal(t, "ant-key", gotKey)
	assert.Equal(t, "acme", gotHeader)
	assert.Equal(t, "claude-test", got["model"])
	assert.Equal(t, float64(64), got["max_tokens"])
}

func TestSend_UnknownFormat(t *testing.T) {
	_, err := newTestClient(1, time.Second).Send(context.Background(), providers.Provider{Name: "x", Format: "grpc"}, Call{})
	assert.ErrorContains(t, err, "unknown wire format")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, FixedBackoff{Delay: time.Second}.Next(3))

	b := ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(10))

	jittered := ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.5}
	for i := 0; i < 20; i++ {
		d := jittered.Next(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 3, opts.Attempts)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, FixedBackoff{Delay: time.Second}, opts.Backoff)

	cfg.RetryBackoff = config.BackoffExponential
	_, ok := OptionsFromConfig(cfg).Backoff.(ExponentialBackoff)
	assert.True(t, ok)
}
