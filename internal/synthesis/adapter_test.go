package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenworks/ragcore/internal/llm"
	"github.com/lumenworks/ragcore/internal/retrieval"
	"github.com/lumenworks/ragcore/internal/search"
	"github.com/lumenworks/ragcore/internal/vectordb"
)

// scriptStreamer replays a fixed event sequence and records the prompt.
type scriptStreamer struct {
	events []llm.Event
	err    error
	prompt string
}

func (s *scriptStreamer) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.prompt = req.Prompt
	out := make(chan llm.Event, len(s.events))
	for _, e := range s.events {
		out <- e
	}
	close(out)
	return out, nil
}

func answerableResponse(results ...search.Result) *retrieval.Response {
	return &retrieval.Response{IsAnswerable: true, Results: results}
}

func chunkResult(id, content string, payload vectordb.Payload) search.Result {
	return search.Result{ID: id, Content: content, Payload: payload}
}

func collect(t *testing.T, ch <-chan llm.Event) []llm.Event {
	t.Helper()
	var out []llm.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestSynthesizeRefusesNotAnswerable(t *testing.T) {
	a := NewAdapter(Config{}, &scriptStreamer{}, nil)

	_, err := a.Synthesize(context.Background(), "q", &retrieval.Response{IsAnswerable: false})
	assert.ErrorIs(t, err, ErrNotAnswerable)

	_, err = a.Synthesize(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNotAnswerable)
}

func TestSynthesizeCitationsFirstThenChunksThenDone(t *testing.T) {
	streamer := &scriptStreamer{events: []llm.Event{
		{Kind: llm.EventChunk, Text: "Refunds take "},
		{Kind: llm.EventChunk, Text: "30 days [1]."},
		{Kind: llm.EventDone},
	}}
	a := NewAdapter(Config{}, streamer, nil)

	res := answerableResponse(
		chunkResult("c1", "Refund policy: 30 days.", vectordb.Payload{"docId": "d1"}),
		chunkResult("c2", "Shipping info.", vectordb.Payload{"url": "https://docs/ship"}),
	)
	ch, err := a.Synthesize(context.Background(), "refund?", res)
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 4)

	require.Equal(t, llm.EventCitations, events[0].Kind)
	require.Len(t, events[0].Citations, 2)
	assert.Equal(t, 1, events[0].Citations[0].Index)
	assert.Equal(t, "c1", events[0].Citations[0].ChunkID)
	assert.Equal(t, "d1", events[0].Citations[0].Source)
	assert.Equal(t, 2, events[0].Citations[1].Index)
	assert.Equal(t, "https://docs/ship", events[0].Citations[1].Source)

	assert.Equal(t, llm.EventChunk, events[1].Kind)
	assert.Equal(t, llm.EventChunk, events[2].Kind)
	assert.Equal(t, llm.EventDone, events[3].Kind)
}

func TestSynthesizeDropsModelCitations(t *testing.T) {
	streamer := &scriptStreamer{events: []llm.Event{
		{Kind: llm.EventCitations, Citations: []llm.Citation{{Index: 9, ChunkID: "bogus"}}},
		{Kind: llm.EventChunk, Text: "answer"},
		{Kind: llm.EventDone},
	}}
	a := NewAdapter(Config{}, streamer, nil)

	ch, err := a.Synthesize(context.Background(), "q", answerableResponse(chunkResult("c1", "text", nil)))
	require.NoError(t, err)

	events := collect(t, ch)
	var citationEvents []llm.Event
	for _, e := range events {
		if e.Kind == llm.EventCitations {
			citationEvents = append(citationEvents, e)
		}
	}
	require.Len(t, citationEvents, 1)
	assert.Equal(t, "c1", citationEvents[0].Citations[0].ChunkID)
}

func TestSynthesizeGuaranteesTerminalDone(t *testing.T) {
	// Upstream drops without a terminal event.
	streamer := &scriptStreamer{events: []llm.Event{
		{Kind: llm.EventChunk, Text: "partial"},
	}}
	a := NewAdapter(Config{}, streamer, nil)

	ch, err := a.Synthesize(context.Background(), "q", answerableResponse(chunkResult("c1", "text", nil)))
	require.NoError(t, err)

	events := collect(t, ch)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, llm.EventDone, last.Kind)
	assert.Equal(t, true, last.Metadata["truncated"])
}

func TestSynthesizeForwardsUpstreamError(t *testing.T) {
	streamer := &scriptStreamer{events: []llm.Event{
		{Kind: llm.EventError, Err: errors.New("model overloaded")},
	}}
	a := NewAdapter(Config{}, streamer, nil)

	ch, err := a.Synthesize(context.Background(), "q", answerableResponse(chunkResult("c1", "text", nil)))
	require.NoError(t, err)

	events := collect(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, llm.EventError, last.Kind)
}

func TestSynthesizeStreamStartFailure(t *testing.T) {
	a := NewAdapter(Config{}, &scriptStreamer{err: errors.New("connect refused")}, nil)
	_, err := a.Synthesize(context.Background(), "q", answerableResponse(chunkResult("c1", "text", nil)))
	assert.Error(t, err)
}

func TestBuildPromptNumbersSourcesAndTruncates(t *testing.T) {
	long := strings.Repeat("x", 3000)
	streamer := &scriptStreamer{events: []llm.Event{{Kind: llm.EventDone}}}
	a := NewAdapter(Config{MaxContextChars: 100}, streamer, nil)

	ch, err := a.Synthesize(context.Background(), "the question", answerableResponse(
		chunkResult("c1", long, vectordb.Payload{"filepath": "docs/a.md"}),
		chunkResult("c2", "short", vectordb.Payload{"docId": "d2"}),
	))
	require.NoError(t, err)
	collect(t, ch)

	assert.Contains(t, streamer.prompt, "[1] docs/a.md")
	assert.Contains(t, streamer.prompt, "[2] d2")
	assert.Contains(t, streamer.prompt, "Question: the question")
	assert.NotContains(t, streamer.prompt, strings.Repeat("x", 101))
}

func TestSourceOfPreference(t *testing.T) {
	assert.Equal(t, "https://u", sourceOf(search.Result{Payload: vectordb.Payload{
		"url": "https://u", "filepath": "f", "docId": "d",
	}}))
	assert.Equal(t, "f", sourceOf(search.Result{Payload: vectordb.Payload{
		"filepath": "f", "docId": "d",
	}}))
	assert.Equal(t, "d", sourceOf(search.Result{Payload: vectordb.Payload{"docId": "d"}}))
	assert.Equal(t, "", sourceOf(search.Result{}))
}

func TestBuildCitationsSnippets(t *testing.T) {
	long := strings.Repeat("y", 500)
	cits := buildCitations([]search.Result{{ID: "c1", Content: long}})
	require.Len(t, cits, 1)
	assert.Len(t, cits[0].Snippet, 160)
}
