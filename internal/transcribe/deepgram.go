package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	listenapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// Deepgram transcribes chunks through the Deepgram prerecorded REST API.
type Deepgram struct {
	client *listenapi.Client
	model  string
}

func NewDeepgram(apiKey, model string) *Deepgram {
	if strings.TrimSpace(model) == "" {
		model = "nova-2"
	}

	rest := listen.NewREST(apiKey, &interfaces.ClientOptions{})
	return &Deepgram{
		client: listenapi.New(rest),
		model:  model,
	}
}

func (d *Deepgram) Transcribe(ctx context.Context, audio []byte) (Result, error) {
	if len(audio) == 0 {
		return Result{}, nil
	}

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Punctuate:   true,
		SmartFormat: true,
	}

	resp, err := d.client.FromStream(ctx, bytes.NewReader(audio), options)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram transcription: %w", err)
	}

	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return Result{}, errors.New("deepgram transcription: empty response")
	}

	alt := resp.Results.Channels[0].Alternatives[0]
	return Result{
		Text:       strings.TrimSpace(alt.Transcript),
		Confidence: alt.Confidence,
	}, nil
}
