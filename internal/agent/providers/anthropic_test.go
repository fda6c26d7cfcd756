package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reun10n/kuro/internal/agent"
)

// anthropicRecoveryStream is a minimal successful Messages SSE response
// carrying one text delta.
const anthropicRecoveryStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","stop_reason":null,"usage":{"input_tokens":1,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"recovered"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_stop
data: {"type":"message_stop"}

`

func newAnthropicTestProvider(t *testing.T, baseURL string, maxRetries int) *AnthropicProvider {
	t.Helper()
	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAnthropicRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Error("missing API key should be rejected")
	}
}

func TestAnthropicRetriesStreamCreation(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(529)
			fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, anthropicRecoveryStream)
	}))
	defer srv.Close()
	p := newAnthropicTestProvider(t, srv.URL, 2)

	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	var text string
	var done bool
	for _, c := range drain(t, ch) {
		if c.Error != nil {
			t.Fatalf("chunk error after retry: %v", c.Error)
		}
		text += c.Text
		done = done || c.Done
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("server saw %d requests, want the overloaded attempt plus one retry", got)
	}
	if text != "recovered" {
		t.Errorf("text = %q", text)
	}
	if !done {
		t.Error("stream never signalled Done")
	}
}

func TestAnthropicFatalErrorNoRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()
	p := newAnthropicTestProvider(t, srv.URL, 3)

	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	chunks := drain(t, ch)
	if len(chunks) != 1 || chunks[0].Error == nil {
		t.Fatalf("chunks = %+v, want a single error chunk", chunks)
	}
	var pe *agent.ProviderError
	if !errors.As(chunks[0].Error, &pe) {
		t.Fatalf("error = %T, want *agent.ProviderError", chunks[0].Error)
	}
	if pe.Reason != agent.FailAuth {
		t.Errorf("Reason = %s, want %s", pe.Reason, agent.FailAuth)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want no retries for an auth failure", got)
	}
}
