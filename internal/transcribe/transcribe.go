// Package transcribe provides pluggable speech-to-text backends for
// transcribing individual audio chunks.
package transcribe

import "context"

// Result is the outcome of transcribing one audio chunk. Confidence is in
// [0, 1]; backends that do not report one leave it at zero.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber turns a raw audio chunk into text. Implementations must be
// safe for concurrent use — the pipeline dispatches one call per in-flight
// chunk.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Result, error)
}
