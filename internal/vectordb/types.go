package vectordb

import "time"

// Config controls the vector store client behavior
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Timeout for outbound HTTP calls
	Timeout time.Duration `mapstructure:"timeout"`
	// ExpectedDim validates query vectors before they go on the wire
	// (e.g. 384 for all-MiniLM-L6-v2). Zero disables the check.
	ExpectedDim int `mapstructure:"expected_dim"`
}

// Match is a payload filter leaf: exactly one of Value, Any, Text is set.
type Match struct {
	Value interface{}   `json:"value,omitempty"`
	Any   []interface{} `json:"any,omitempty"`
	Text  string        `json:"text,omitempty"`
}

// Condition matches one payload key.
type Condition struct {
	Key   string `json:"key"`
	Match Match  `json:"match"`
}

// Filter is a conjunction/disjunction tree in the store's payload filter
// grammar: all Must, at least one Should, none of MustNot.
type Filter struct {
	Must    []Condition `json:"must,omitempty"`
	Should  []Condition `json:"should,omitempty"`
	MustNot []Condition `json:"must_not,omitempty"`
}

// MatchValue builds an equality condition.
func MatchValue(key string, value interface{}) Condition {
	return Condition{Key: key, Match: Match{Value: value}}
}

// MatchAny builds a set-membership condition.
func MatchAny(key string, values ...string) Condition {
	any := make([]interface{}, len(values))
	for i, v := range values {
		any[i] = v
	}
	return Condition{Key: key, Match: Match{Any: any}}
}

// MatchText builds a full-text match condition.
func MatchText(key, text string) Condition {
	return Condition{Key: key, Match: Match{Text: text}}
}

// Payload is the stored chunk metadata. Accessors tolerate missing or
// mistyped fields and return zero values.
type Payload map[string]interface{}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Content returns the chunk text.
func (p Payload) Content() string { return p.str("content") }

// Tenant returns the owning tenant id.
func (p Payload) Tenant() string { return p.str("tenant") }

// DocID returns the parent document id.
func (p Payload) DocID() string { return p.str("docId") }

// Lang returns the chunk language, if tagged.
func (p Payload) Lang() string { return p.str("lang") }

// ACL returns the principal identifiers allowed to read the chunk.
func (p Payload) ACL() []string {
	if p == nil {
		return nil
	}
	switch v := p["acl"].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Point is a stored (id, score, payload) triple returned by search or scroll.
type Point struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score,omitempty"`
	Payload Payload `json:"payload,omitempty"`
}

// QueryRequest is a filtered k-NN search.
type QueryRequest struct {
	Vector         []float32
	Limit          int
	Filter         *Filter
	ScoreThreshold float64
}

// ScrollRequest is a filter-only page fetch.
type ScrollRequest struct {
	Filter *Filter
	Limit  int
	Offset interface{}
}

// DiscoverRequest is a text-target search used when the store should derive
// the candidate set itself (keyword fallback path).
type DiscoverRequest struct {
	Target string
	Limit  int
	Filter *Filter
}

// UpsertItem is a single point write. Not used by the retrieval core;
// kept for ingestion callers sharing the client.
type UpsertItem struct {
	ID      interface{}            `json:"id,omitempty"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertResponse captures the basic store acknowledgement.
type UpsertResponse struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}
