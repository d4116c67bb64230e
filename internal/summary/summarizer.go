// Package summary turns a full session transcript into a structured
// meeting summary.
package summary

import "context"

// Result is the structured output of summarizing one session transcript.
type Result struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
	Decisions   []string `json:"decisions"`
}

// Generator produces a structured summary from concatenated transcript text.
type Generator interface {
	Summarize(ctx context.Context, transcript string) (Result, error)
}
