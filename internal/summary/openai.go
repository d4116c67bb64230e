package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You summarize meeting transcripts. Respond with a JSON object " +
	`containing "summary" (a concise paragraph), "key_points", "action_items" and ` +
	`"decisions" (arrays of short strings, empty if none apply).`

// OpenAI generates structured summaries through the chat completions API in
// JSON mode. Transcripts under 20 words produce an empty summary without an
// API call.
type OpenAI struct {
	client *openai.Client
	model  string
	sleep  func(time.Duration)
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAIWithConfig(config openai.ClientConfig, model string) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
		sleep:  time.Sleep,
	}
}

func (s *OpenAI) Summarize(ctx context.Context, transcript string) (Result, error) {
	if len(strings.Fields(transcript)) < 20 {
		return Result{}, nil
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := 0; attempt < len(backoff); attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return Result{}, nil
			}
			return parseResult(resp.Choices[0].Message.Content)
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			s.sleep(backoff[attempt])
		}
	}

	return Result{}, fmt.Errorf("openai summary failed after retries: %w", lastErr)
}

func parseResult(content string) (Result, error) {
	var res Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &res); err != nil {
		return Result{}, fmt.Errorf("parse summary response: %w", err)
	}
	res.Summary = strings.TrimSpace(res.Summary)
	return res, nil
}
