package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Whisper transcribes chunks through the OpenAI audio transcription API.
// The endpoint reports no per-request confidence, so results carry zero.
type Whisper struct {
	client *openai.Client
	model  string
	sleep  func(time.Duration)
}

func NewWhisper(apiKey, model string) *Whisper {
	return NewWhisperWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewWhisperWithConfig(config openai.ClientConfig, model string) *Whisper {
	if strings.TrimSpace(model) == "" {
		model = "whisper-1"
	}

	return &Whisper{
		client: openai.NewClientWithConfig(config),
		model:  model,
		sleep:  time.Sleep,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte) (Result, error) {
	if len(audio) == 0 {
		return Result{}, nil
	}

	req := openai.AudioRequest{
		Model:    w.model,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(audio),
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second}
	var lastErr error
	for attempt := 0; attempt <= len(backoff); attempt++ {
		resp, err := w.client.CreateTranscription(ctx, req)
		if err == nil {
			return Result{Text: strings.TrimSpace(resp.Text)}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff) {
			w.sleep(backoff[attempt])
			req.Reader = bytes.NewReader(audio)
		}
	}

	return Result{}, fmt.Errorf("whisper transcription failed after retries: %w", lastErr)
}
