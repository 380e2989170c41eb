package retrieval

import (
	"errors"
	"fmt"
)

// Fatal pipeline errors surfaced to the caller. Keyword and reranker
// failures are recovered locally and never appear here.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmbeddingFailed    = errors.New("embedding failed")
	ErrVectorSearchFailed = errors.New("vector search failed")
	ErrOverallTimeout     = errors.New("overall retrieval timeout")
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("retrieval stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }
