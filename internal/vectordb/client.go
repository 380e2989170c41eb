package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lumenworks/ragcore/internal/circuitbreaker"
	"github.com/lumenworks/ragcore/internal/metrics"
	"github.com/lumenworks/ragcore/internal/tracing"
	"go.uber.org/zap"
)

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient builds a breaker-wrapped client against one store instance.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	c := cfg
	if c.Port == 0 {
		c.Port = 6333
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: c.Timeout}
	return &Client{
		cfg:   c,
		base:  fmt.Sprintf("http://%s:%d", c.Host, c.Port),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "vectordb", logger),
		log:   logger,
	}
}

// GetConfig returns the current configuration
func (c *Client) GetConfig() Config { return c.cfg }

type queryBody struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
	Filter         *Filter   `json:"filter,omitempty"`
}

type searchResponse struct {
	Result []wirePoint `json:"result"`
	Status string      `json:"status"`
}

// queryResponse for the /points/query endpoint which nests points
type queryResponse struct {
	Result struct {
		Points []wirePoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

type wirePoint struct {
	ID      interface{} `json:"id"`
	Score   float64     `json:"score"`
	Payload Payload     `json:"payload"`
}

func (w wirePoint) toPoint() Point {
	return Point{ID: fmt.Sprintf("%v", w.ID), Score: w.Score, Payload: w.Payload}
}

func (c *Client) post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	return c.httpw.Do(req)
}

// Query performs a filtered k-NN search. Payloads are requested, vectors are
// not. Results come back in descending native-similarity order.
// Prefers the modern /points/query endpoint with a /points/search fallback
// for older stores.
func (c *Client) Query(ctx context.Context, collection string, q QueryRequest) ([]Point, error) {
	if c.cfg.ExpectedDim > 0 && len(q.Vector) != c.cfg.ExpectedDim {
		return nil, fmt.Errorf("vectordb: query vector dim %d, expected %d", len(q.Vector), c.cfg.ExpectedDim)
	}
	start := time.Now()

	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", urlQuery)
	defer span.End()

	var thr *float64
	if q.ScoreThreshold > 0 {
		thr = &q.ScoreThreshold
	}
	resp, err := c.post(ctx, urlQuery, queryBody{
		Query:          q.Vector,
		Limit:          q.Limit,
		ScoreThreshold: thr,
		WithPayload:    true,
		Filter:         q.Filter,
	})
	if err != nil {
		metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// fallback to /points/search
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
		legacy := map[string]interface{}{"vector": q.Vector, "limit": q.Limit, "with_payload": true}
		if q.ScoreThreshold > 0 {
			legacy["score_threshold"] = q.ScoreThreshold
		}
		if q.Filter != nil {
			legacy["filter"] = q.Filter
		}
		resp2, err2 := c.post(ctx, urlSearch, legacy)
		if err2 != nil {
			metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("vectordb query/search failed: %w", err2)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("vectordb status %d", resp2.StatusCode)
		}
		var sr searchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
			metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
			return nil, err
		}
		metrics.RecordVectorSearch(collection, "ok", time.Since(start).Seconds())
		return convertPoints(sr.Result), nil
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RecordVectorSearch(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordVectorSearch(collection, "ok", time.Since(start).Seconds())
	return convertPoints(qr.Result.Points), nil
}

// Scroll fetches points by filter only (no vector). Used for the lexical
// candidate set where ordering is established locally.
func (c *Client) Scroll(ctx context.Context, collection string, s ScrollRequest) ([]Point, error) {
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body := map[string]interface{}{
		"limit":        s.Limit,
		"with_payload": true,
	}
	if s.Filter != nil {
		body["filter"] = s.Filter
	}
	if s.Offset != nil {
		body["offset"] = s.Offset
	}
	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vectordb scroll status %d", resp.StatusCode)
	}
	var r struct {
		Result struct {
			Points []wirePoint `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	return convertPoints(r.Result.Points), nil
}

// Discover asks the store to search from a textual target. Optional store
// capability; callers must be prepared for a non-200.
func (c *Client) Discover(ctx context.Context, collection string, d DiscoverRequest) ([]Point, error) {
	url := fmt.Sprintf("%s/collections/%s/points/discover", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body := map[string]interface{}{
		"target":       d.Target,
		"limit":        d.Limit,
		"with_payload": true,
	}
	if d.Filter != nil {
		body["filter"] = d.Filter
	}
	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vectordb discover status %d", resp.StatusCode)
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}
	return convertPoints(sr.Result), nil
}

// Upsert inserts or updates points. Ingestion-side helper; the retrieval
// core never writes.
func (c *Client) Upsert(ctx context.Context, collection string, points []UpsertItem) (*UpsertResponse, error) {
	url := fmt.Sprintf("%s/collections/%s/points", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "PUT", url)
	defer span.End()

	buf, err := json.Marshal(map[string]interface{}{"points": points})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	resp, err := c.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vectordb upsert status %d", resp.StatusCode)
	}
	var r UpsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes points by filter. Ingestion-side helper (tombstones).
func (c *Client) Delete(ctx context.Context, collection string, filter *Filter) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	resp, err := c.post(ctx, url, map[string]interface{}{"filter": filter})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vectordb delete status %d", resp.StatusCode)
	}
	return nil
}

func convertPoints(in []wirePoint) []Point {
	out := make([]Point, 0, len(in))
	for _, w := range in {
		out = append(out, w.toPoint())
	}
	return out
}
