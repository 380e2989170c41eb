// Package llm defines the synthesis event stream contract and an HTTP
// client for a token-streaming model service. The retrieval core never
// assumes a transport beyond this interface.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lumenworks/ragcore/internal/tracing"
	"go.uber.org/zap"
)

// Client streams completions over newline-delimited JSON from
// POST <base>/generate/stream.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// No client-level timeout: the stream is long-lived and bounded by ctx.
	return &Client{cfg: cfg, http: &http.Client{}, log: logger}
}

type wireEvent struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Citations []Citation             `json:"citations,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Stream issues the request and decodes NDJSON events until done, error,
// EOF, or cancellation. The returned channel is always closed.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)

	url := fmt.Sprintf("%s/generate/stream", c.cfg.BaseURL)
	buf, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("llm stream status %d", resp.StatusCode)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var we wireEvent
			if err := json.Unmarshal(line, &we); err != nil {
				c.log.Warn("llm stream: skipping malformed event", zap.Error(err))
				continue
			}
			evt := Event{
				Kind:      EventKind(we.Type),
				Text:      we.Text,
				Citations: we.Citations,
				Metadata:  we.Metadata,
			}
			if we.Type == string(EventError) {
				evt.Err = errors.New(we.Error)
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
			if evt.Kind == EventDone || evt.Kind == EventError {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- Event{Kind: EventError, Err: err}:
			default:
			}
		}
	}()
	return out, nil
}
