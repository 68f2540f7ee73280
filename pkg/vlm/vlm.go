// Package vlm is the vision-language backend client. It speaks the
// OpenAI-compatible chat completions API, which covers Ollama (LLaVA and
// friends), vLLM, and the hosted providers, and answers one question about
// one camera frame per call.
package vlm

import "context"

// Answer is the backend's response to one query.
type Answer struct {
	Text      string
	Model     string
	LatencyMs int64
}

// Provider is the narrow surface the arbitration engine consumes.
type Provider interface {
	// Ask sends one question about one JPEG frame and blocks until the
	// backend answers, the context ends, or the configured timeout fires.
	Ask(ctx context.Context, query string, jpeg []byte) (*Answer, error)

	// Health checks backend connectivity.
	Health(ctx context.Context) error

	// Close releases resources.
	Close() error
}
