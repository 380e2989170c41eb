package search

import (
	"context"
	"fmt"

	"github.com/lumenworks/ragcore/internal/vectordb"
	"go.uber.org/zap"
)

// VectorAdapter turns filtered k-NN hits into ranked results.
type VectorAdapter struct {
	db  *vectordb.Client
	log *zap.Logger
}

func NewVectorAdapter(db *vectordb.Client, logger *zap.Logger) *VectorAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorAdapter{db: db, log: logger}
}

// Search runs a filtered k-NN query and returns results in descending
// native-similarity order with 1-based ranks.
func (a *VectorAdapter) Search(ctx context.Context, collection string, vector []float32, limit int, filter *vectordb.Filter) ([]Result, error) {
	points, err := a.db.Query(ctx, collection, vectordb.QueryRequest{
		Vector: vector,
		Limit:  limit,
		Filter: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorSearchFailed, err)
	}
	out := make([]Result, 0, len(points))
	for i, p := range points {
		out = append(out, Result{
			ID:          p.ID,
			Payload:     p.Payload,
			Content:     p.Payload.Content(),
			Rank:        i + 1,
			Score:       p.Score,
			VectorScore: ptr(p.Score),
			SearchType:  SearchTypeVector,
		})
	}
	return out, nil
}
