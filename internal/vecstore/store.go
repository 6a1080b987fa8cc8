package vecstore

import (
	"context"

	"github.com/docuchat-io/docuchat/internal/model"
)

// Scope is the tenant boundary every search is filtered by. CompanyID is
// mandatory; DocumentIDs is the chatbot's authorized document set and
// ModelVersion pins results to one embedding space. Filtering happens inside
// the store implementation, never after the fact in application code.
type Scope struct {
	CompanyID    string
	DocumentIDs  []string
	ModelVersion string
}

type Result struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Text       string
	Metadata   map[string]string
	Score      float32
}

// Store persists embedded chunks and answers scoped similarity searches.
// DeleteByDocument is atomic with respect to concurrent Search calls: a
// search sees all of a document's chunks or none.
type Store interface {
	Upsert(ctx context.Context, chunks []*model.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, scope Scope, queryVec []float32, topK int, minScore float32) ([]Result, error)
	// CountByDocument reports stored chunks for invariant checks.
	CountByDocument(ctx context.Context, documentID string) (int, error)
}
