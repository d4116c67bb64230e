package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func newTestWhisper(t *testing.T, handler http.HandlerFunc) *Whisper {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"

	w := NewWhisperWithConfig(config, "whisper-1")
	w.sleep = func(time.Duration) {}
	return w
}

func TestWhisperTranscribe(t *testing.T) {
	w := newTestWhisper(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"text": " hello from chunk "})
	})

	got, err := w.Transcribe(context.Background(), []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Text != "hello from chunk" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if got.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", got.Confidence)
	}
}

func TestWhisperRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	w := newTestWhisper(t, func(rw http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(rw, "upstream busy", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"text": "second try"})
	})

	got, err := w.Transcribe(context.Background(), []byte{0x01})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Text != "second try" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestWhisperGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	w := newTestWhisper(t, func(rw http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(rw, "nope", http.StatusInternalServerError)
	})

	if _, err := w.Transcribe(context.Background(), []byte{0x01}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestWhisperEmptyChunkIsNoop(t *testing.T) {
	w := newTestWhisper(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for empty chunk")
	})

	got, err := w.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Text != "" {
		t.Fatalf("expected empty result, got %q", got.Text)
	}
}
