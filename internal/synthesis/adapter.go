// Package synthesis turns an answerable retrieval into a streamed, cited
// answer. The guardrail decision is authoritative: a non-answerable
// retrieval is refused here, never silently synthesized.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lumenworks/ragcore/internal/llm"
	"github.com/lumenworks/ragcore/internal/metrics"
	"github.com/lumenworks/ragcore/internal/retrieval"
	"github.com/lumenworks/ragcore/internal/search"
	"go.uber.org/zap"
)

// ErrNotAnswerable is returned when synthesis is invoked against a
// retrieval the guardrail rejected.
var ErrNotAnswerable = errors.New("synthesis refused: retrieval is not answerable")

// Config controls prompt assembly.
type Config struct {
	// MaxContextChars caps each source excerpt placed in the prompt
	MaxContextChars int `mapstructure:"max_context_chars"`
	// Model override passed to the streamer
	Model string `mapstructure:"model"`
	// MaxTokens for the generated answer
	MaxTokens int `mapstructure:"max_tokens"`
}

func (c Config) withDefaults() Config {
	if c.MaxContextChars == 0 {
		c.MaxContextChars = 2000
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	return c
}

// Adapter builds the prompt, numbers citations, and relays the model's
// event stream. Results arriving here are already ACL-safe.
type Adapter struct {
	cfg      Config
	streamer llm.Streamer
	log      *zap.Logger
}

func NewAdapter(cfg Config, streamer llm.Streamer, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg.withDefaults(), streamer: streamer, log: logger}
}

// Synthesize streams a cited answer for an answerable retrieval. The
// citations event is emitted first so consumers can resolve [n] markers as
// chunks arrive; the stream always terminates with done or error, and
// cancelling ctx cancels the model stream.
func (a *Adapter) Synthesize(ctx context.Context, query string, res *retrieval.Response) (<-chan llm.Event, error) {
	if res == nil || !res.IsAnswerable {
		metrics.SynthesisStreams.WithLabelValues("refused").Inc()
		return nil, ErrNotAnswerable
	}

	citations := buildCitations(res.Results)
	prompt := a.buildPrompt(query, res.Results)

	upstream, err := a.streamer.Stream(ctx, llm.Request{
		Prompt:    prompt,
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
	})
	if err != nil {
		metrics.SynthesisStreams.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("start synthesis stream: %w", err)
	}
	metrics.SynthesisStreams.WithLabelValues("ok").Inc()

	out := make(chan llm.Event, 16)
	go func() {
		defer close(out)
		emit := func(e llm.Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(llm.Event{Kind: llm.EventCitations, Citations: citations}) {
			return
		}

		var tokens int
		sawTerminal := false
		for evt := range upstream {
			switch evt.Kind {
			case llm.EventChunk:
				tokens++
			case llm.EventCitations:
				// Model-provided citations are replaced by ours; the
				// retrieval core owns citation numbering.
				continue
			case llm.EventDone, llm.EventError:
				sawTerminal = true
			}
			if !emit(evt) {
				return
			}
			if sawTerminal {
				break
			}
		}
		if tokens > 0 {
			metrics.SynthesisTokens.Observe(float64(tokens))
		}
		if !sawTerminal {
			emit(llm.Event{
				Kind: llm.EventDone,
				Metadata: map[string]interface{}{
					"truncated": true,
				},
			})
		}
	}()
	return out, nil
}

// buildCitations numbers the results 1..N in rank order.
func buildCitations(results []search.Result) []llm.Citation {
	out := make([]llm.Citation, 0, len(results))
	for i, r := range results {
		out = append(out, llm.Citation{
			Index:   i + 1,
			ChunkID: r.ID,
			Source:  sourceOf(r),
			Snippet: snippet(r.Content, 160),
		})
	}
	return out
}

// sourceOf prefers the chunk's url, then filepath, then document id.
func sourceOf(r search.Result) string {
	if p := r.Payload; p != nil {
		if u, ok := p["url"].(string); ok && u != "" {
			return u
		}
		if f, ok := p["filepath"].(string); ok && f != "" {
			return f
		}
	}
	return r.Payload.DocID()
}

func (a *Adapter) buildPrompt(query string, results []search.Result) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the numbered sources below. ")
	b.WriteString("Cite sources inline as [n]. If the sources do not contain the answer, say so.\n\n")
	for i, r := range results {
		excerpt := r.Content
		if len(excerpt) > a.cfg.MaxContextChars {
			excerpt = excerpt[:a.cfg.MaxContextChars]
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, sourceOf(r), excerpt)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}

func snippet(content string, max int) string {
	content = strings.TrimSpace(content)
	if len(content) > max {
		content = content[:max]
	}
	return content
}
