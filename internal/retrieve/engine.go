package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/ai"
	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/vecstore"
)

// Passage is one retrieved chunk with enough provenance for the caller to
// cite where an answer came from.
type Passage struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Ordinal    int
	Text       string
	Score      float32
}

type Options struct {
	TopK     int
	MinScore float32
}

const (
	defaultTopK     = 5
	defaultMinScore = 0.7
)

// Engine answers similarity queries over a chatbot's authorized documents.
// Query embeddings are cached with an expirable LRU so repeated questions
// do not burn embedding quota.
type Engine struct {
	embedder ai.IEmbedder
	store    vecstore.Store
	cache    *expirable.LRU[string, []float32]
	defaults Options
}

func New(embedder ai.IEmbedder, store vecstore.Store, cacheSize int, cacheTTL time.Duration, defaults Options) (*Engine, error) {
	if embedder == nil || store == nil {
		return nil, fmt.Errorf("retrieve: embedder and store are required")
	}
	if defaults.TopK <= 0 {
		defaults.TopK = defaultTopK
	}
	if defaults.MinScore <= 0 {
		defaults.MinScore = defaultMinScore
	}
	var cache *expirable.LRU[string, []float32]
	if cacheSize > 0 && cacheTTL > 0 {
		cache = expirable.NewLRU[string, []float32](cacheSize, nil, cacheTTL)
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		cache:    cache,
		defaults: defaults,
	}, nil
}

// Retrieve embeds the query and returns the best-scoring passages from the
// chatbot's document set, highest score first. A chatbot with no authorized
// documents or a query with no match above the threshold yields an empty
// slice, not an error.
func (e *Engine) Retrieve(ctx context.Context, bot *model.Chatbot, query string, opts Options) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", errs.ErrInvalid)
	}
	if bot == nil || bot.CompanyID == "" {
		return nil, errs.ErrScopeViolation
	}
	if len(bot.DocumentIDs) == 0 {
		return nil, nil
	}

	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = bot.TopK
	}
	if topK <= 0 {
		topK = e.defaults.TopK
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = bot.MinScore
	}
	if minScore <= 0 {
		minScore = e.defaults.MinScore
	}

	scope := vecstore.Scope{
		CompanyID:    bot.CompanyID,
		DocumentIDs:  bot.DocumentIDs,
		ModelVersion: e.embedder.ModelVersion(),
	}
	results, err := e.store.Search(ctx, scope, vec, topK, minScore)
	if err != nil {
		return nil, err
	}
	passages := make([]Passage, 0, len(results))
	for _, item := range results {
		passages = append(passages, Passage{
			ChunkID:    item.ChunkID,
			DocumentID: item.DocumentID,
			Filename:   item.Metadata["filename"],
			Ordinal:    item.Ordinal,
			Text:       item.Text,
			Score:      item.Score,
		})
	}
	logutil.GetLogger(ctx).Debug("retrieval done",
		zap.String("chatbot_id", bot.ID),
		zap.Int("passages", len(passages)),
		zap.Int("top_k", topK),
	)
	return passages, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := queryCacheKey(e.embedder.ModelVersion(), query)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			logutil.GetLogger(ctx).Debug("query embedding cache hit")
			return cloneVec(cached), nil
		}
	}
	vecs, err := e.embedder.EmbedBatch(ctx, []string{query}, ai.TaskQuery)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", errs.ErrEmbeddingUnavailable, len(vecs))
	}
	if e.cache != nil {
		e.cache.Add(key, cloneVec(vecs[0]))
	}
	return vecs[0], nil
}

func queryCacheKey(modelVersion, query string) string {
	hash := sha256.Sum256([]byte(query))
	return "query:" + modelVersion + ":" + hex.EncodeToString(hash[:])
}

func cloneVec(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
