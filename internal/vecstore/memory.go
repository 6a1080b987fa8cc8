package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

// MemoryStore is an in-memory Store used by tests and local development. It
// mirrors the pgvector implementation's semantics: server-side scope
// filtering, cosine similarity, atomic per-document delete, and dimension
// checks at write time.
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    map[string]*model.Chunk
	dimension int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string]*model.Chunk)}
}

func (s *MemoryStore) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", errs.ErrInvalid, chunk.ID)
		}
		if s.dimension == 0 {
			s.dimension = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %s has dimension %d, index holds %d",
				errs.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), s.dimension)
		}
	}
	for _, chunk := range chunks {
		copied := *chunk
		s.chunks[chunk.ID] = &copied
	}
	return nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, scope Scope, queryVec []float32, topK int, minScore float32) ([]Result, error) {
	_ = ctx
	if scope.CompanyID == "" {
		return nil, errs.ErrScopeViolation
	}
	if len(scope.DocumentIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	authorized := make(map[string]struct{}, len(scope.DocumentIDs))
	for _, id := range scope.DocumentIDs {
		authorized[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []Result
	for _, chunk := range s.chunks {
		if chunk.CompanyID != scope.CompanyID {
			continue
		}
		if _, ok := authorized[chunk.DocumentID]; !ok {
			continue
		}
		if scope.ModelVersion != "" && chunk.ModelVersion != scope.ModelVersion {
			continue
		}
		score := CosineSimilarity(queryVec, chunk.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, Result{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Ordinal:    chunk.Ordinal,
			Text:       chunk.Text,
			Metadata:   chunk.Metadata,
			Score:      score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
