package llm

import (
	"context"
	"time"
)

// EventKind tags one streamed synthesis event.
type EventKind string

const (
	EventChunk           EventKind = "chunk"
	EventCitations       EventKind = "citations"
	EventMetadata        EventKind = "metadata"
	EventFormattedAnswer EventKind = "formatted_answer"
	EventError           EventKind = "error"
	EventDone            EventKind = "done"
)

// Citation ties an answer fragment back to a retrieved chunk.
type Citation struct {
	Index   int    `json:"index"`
	ChunkID string `json:"chunkId"`
	Source  string `json:"source,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Event is one element of the lazy, finite synthesis stream. Exactly one
// payload field is meaningful for a given Kind.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Text      string                 `json:"text,omitempty"`
	Citations []Citation             `json:"citations,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Err       error                  `json:"-"`
}

// Request is a synthesis prompt for the model.
type Request struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Streamer produces a finite event stream for a prompt. The channel closes
// after a done or error event; cancelling ctx cancels the stream.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// Config controls the HTTP streaming client.
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}
